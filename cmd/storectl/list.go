package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every SST registered against each table",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := openManifestReadOnly(context.Background(), flags)
			if err != nil {
				return err
			}
			for _, id := range m.TableIDs() {
				ts := m.TableState(id)
				fmt.Printf("table %d  flushed_sequence=%d  dropped=%v\n", id, ts.FlushedSequence, ts.Dropped)
				for _, fileID := range sortedFileIDs(ts) {
					f := ts.Files[fileID]
					fmt.Printf("  file %d  rows=%d  seq=[%d,%d]  %s\n", f.FileID, f.NumRows, f.MinSeq, f.MaxSeq, f.Path)
				}
			}
			return nil
		},
	}
}
