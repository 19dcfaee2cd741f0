package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AhmedBakrXI/GeoMap/internal/pager"
)

func historyCmd() *cobra.Command {
	var (
		pageSize int
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Fetch one bounded history snapshot",
		Long: `Fetch every history page bounded by the max_id captured on page 1 and
print a summary, or the records as JSON lines with --json.

Examples:
  geomap history
  geomap history --page-size 500 --json > snapshot.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			size := cfg.History.PageSize
			if pageSize > 0 {
				size = pageSize
			}

			p := pager.New(newHistoryClient(cfg, logger), size, logger)
			result, err := p.Run(ctx, func(ev pager.PageEvent) {
				logger.Info("page loaded",
					zap.Int("page", ev.Page),
					zap.Int("total_pages", ev.TotalPages),
					zap.Int("records", len(ev.Records)),
				)
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				for _, rec := range result.Records {
					if err := enc.Encode(rec); err != nil {
						return fmt.Errorf("writing record %d: %w", rec.ID, err)
					}
				}
				return nil
			}

			fmt.Fprintf(out, "Records:  %d\n", len(result.Records))
			fmt.Fprintf(out, "Pages:    %d\n", result.Pages)
			fmt.Fprintf(out, "Max id:   %d\n", result.SnapshotMaxID)
			return nil
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 0, "override history.page_size")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print records as JSON lines")

	return cmd
}
