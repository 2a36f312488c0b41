package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/hestiadb/engine/internal/compaction"
	"github.com/hestiadb/engine/internal/manifest"
)

func newStatsCmd(flags *rootFlags) *cobra.Command {
	var minFiles int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-table file counts and whether a compaction is eligible",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := openManifestReadOnly(context.Background(), flags)
			if err != nil {
				return err
			}
			picker := &compaction.SizeTieredPicker{MinFilesToCompact: minFiles}
			for _, id := range m.TableIDs() {
				ts := m.TableState(id)
				_, eligible := picker.Pick(ts)
				fmt.Printf("table %d  files=%d  rows=%s  compaction_eligible=%v\n",
					id, len(ts.Files), fmt.Sprint(totalRows(ts)), eligible)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&minFiles, "min-files", 4, "file count threshold the size-tiered picker uses")
	return cmd
}

func totalRows(ts *manifest.TableState) int {
	n := 0
	for _, f := range ts.Files {
		n += f.NumRows
	}
	return n
}

func sortedFileIDs(ts *manifest.TableState) []uint64 {
	ids := maps.Keys(ts.Files)
	slices.Sort(ids)
	return ids
}
