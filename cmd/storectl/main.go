// Command storectl is a read-only operator tool: it opens a shard's
// manifest, lists the SSTs registered against each table, and prints
// compaction-relevant stats without touching the WAL or memtables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// flags shared by every subcommand.
type rootFlags struct {
	storeDir    string
	manifestDir string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "storectl",
		Short: "Inspect a hestiadb shard's manifest",
	}
	root.PersistentFlags().StringVar(&flags.storeDir, "store-dir", "", "local filesystem directory backing the shard's object store")
	root.PersistentFlags().StringVar(&flags.manifestDir, "manifest-dir", "manifest", "object-store path prefix the shard's manifest is written under")
	_ = root.MarkPersistentFlagRequired("store-dir")

	root.AddCommand(newListCmd(flags), newStatsCmd(flags), newSparklineCmd(flags))
	return root
}
