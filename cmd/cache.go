package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached simulation results",
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List cached results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(load)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.cache.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No cached results.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%-48s %8d  %s\n", e.Key, e.Size, e.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(load)
			if err != nil {
				return err
			}
			defer a.Close()

			stats := a.cache.Stats()
			fmt.Println(titleStyle.Render("Cache"))
			fmt.Println(field("entries", stats.Entries))

			summary, err := a.ledger.Summary(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(field("hits", summary.Hits))
			fmt.Println(field("misses", summary.Misses))
			fmt.Println(field("failures", summary.Failures))
			return nil
		},
	}

	var key string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached results",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(load)
			if err != nil {
				return err
			}
			defer a.Close()

			if key != "" {
				if err := a.cache.Delete(key); err != nil {
					return err
				}
				fmt.Printf("Removed %s.\n", key)
				return nil
			}

			n, err := a.cache.Clear()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d cached results.\n", n)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&key, "key", "", "only remove this cache key")

	cmd.AddCommand(lsCmd, statsCmd, clearCmd)
	return cmd
}

func openApp(load loadFunc) (*app, error) {
	cfg, err := setupCLI(load)
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}
