package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/mascot/internal/cache"
	"github.com/mohammad-safakhou/mascot/internal/curation"
	"github.com/mohammad-safakhou/mascot/internal/registry"
)

func linksCMD(load loadFunc) *cobra.Command {
	links := &cobra.Command{
		Use:   "links",
		Short: "Inspect the link registry",
	}

	var origin string
	check := &cobra.Command{
		Use:   "check",
		Short: "Check every registry link and report the dead ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store := cache.NewMemoryStore(cache.SystemClock{})
			loader := registry.NewLoader(
				registry.NewSource(cfg.Registry, cfg.Assistant.RequestTimeout),
				store,
				registry.Options{TTL: cfg.Registry.TTL, StaleTTL: cfg.Registry.StaleTTL},
				logger,
			)
			entries, err := loader.Load(ctx, origin)
			if err != nil {
				return err
			}

			// trusted domains are skipped by the checker, so check everything
			opts := curation.LivenessOptionsFrom(cfg.Liveness)
			opts.TrustedDomains = nil
			checker := curation.NewLivenessChecker(store, opts, logger)
			urls := make([]string, len(entries))
			for i, e := range entries {
				urls[i] = e.URL
			}
			alive := checker.CheckAll(ctx, urls)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			dead := 0
			for i, e := range entries {
				state := "ok"
				if !alive[i] {
					state = "dead"
					dead++
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", state, e.ID, e.URL)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if dead > 0 {
				return fmt.Errorf("%d of %d links are dead", dead, len(entries))
			}
			return nil
		},
	}
	check.Flags().StringVar(&origin, "origin", "", "origin used to resolve a relative registry url")
	links.AddCommand(check)
	return links
}
