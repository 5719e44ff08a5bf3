package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd(load loadFunc) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent simulation requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(load)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			summary, err := a.ledger.Summary(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println(titleStyle.Render("Recent runs"))
			for _, r := range runs {
				status := r.Status
				if r.Error != "" {
					status = errorStyle.Render(r.Status)
				}
				fmt.Printf("%s  %-6s %-8s %-40s %s\n",
					r.CreatedAt.Format(time.DateTime),
					hitLabel(r.CacheHit),
					status,
					r.CacheKey,
					r.Duration.Round(time.Millisecond),
				)
			}

			fmt.Println()
			fmt.Println(field("total", summary.Total))
			fmt.Println(field("hits", summary.Hits))
			fmt.Println(field("misses", summary.Misses))
			fmt.Println(field("failures", summary.Failures))
			fmt.Println(field("mean run", summary.MeanDuration.Round(time.Millisecond)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}
