package main

import (
	"context"
	"fmt"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
)

func newSparklineCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sparkline",
		Short: "Render a sparkline of SST counts across every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := openManifestReadOnly(context.Background(), flags)
			if err != nil {
				return err
			}
			ids := m.TableIDs()
			if len(ids) == 0 {
				fmt.Println("no tables in manifest")
				return nil
			}
			counts := make([]float64, len(ids))
			for i, id := range ids {
				counts[i] = float64(len(m.TableState(id).Files))
			}
			fmt.Println(asciigraph.Plot(counts, asciigraph.Height(10), asciigraph.Caption("SST count per table")))
			return nil
		},
	}
}
