package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
	"github.com/AhmedBakrXI/GeoMap/internal/session"
	"github.com/AhmedBakrXI/GeoMap/internal/window"
)

type windowOutput struct {
	Start  float64        `json:"start"`
	End    float64        `json:"end"`
	First  string         `json:"first,omitempty"`
	Last   string         `json:"last,omitempty"`
	Count  int            `json:"count"`
	Points []model.Record `json:"points"`
}

func windowCmd() *cobra.Command {
	var located bool

	cmd := &cobra.Command{
		Use:   "window START END",
		Short: "Sync once and print a time window of the point set",
		Long: `Subscribe to the live feed, backfill history, then print the points between
START and END percent of the time-ordered set as JSON.

Example:
  geomap window 0 50`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			b, err := parseBounds(args)
			if err != nil {
				return err
			}

			settled := make(chan session.State, 1)
			sess := newSession(cfg, logger, session.WithPhaseHook(func(st session.State) {
				if st.Phase == session.PhaseReady || st.Terminal() {
					select {
					case settled <- st:
					default:
					}
				}
			}))
			defer func() { _ = sess.Close() }()

			runErr := make(chan error, 1)
			go func() { runErr <- sess.Run(ctx) }()

			var st session.State
			select {
			case st = <-settled:
			case <-ctx.Done():
				return ctx.Err()
			}
			if st.Phase != session.PhaseReady {
				if err := <-runErr; err != nil {
					return err
				}
				return errors.New(st.Error)
			}

			points := sess.Window(b)
			first, last, _ := window.Range(points)
			if located {
				filtered := points[:0]
				for _, p := range points {
					if p.HasLocation() {
						filtered = append(filtered, p)
					}
				}
				points = filtered
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(windowOutput{
				Start:  b.Start,
				End:    b.End,
				First:  first,
				Last:   last,
				Count:  len(points),
				Points: points,
			}); err != nil {
				return fmt.Errorf("writing window: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&located, "located", false, "only points with both coordinates")

	return cmd
}
