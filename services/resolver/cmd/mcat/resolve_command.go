package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/mcat-providers/internal/platform/logging"
	"github.com/example/mcat-providers/services/resolver/internal/config"
	"github.com/example/mcat-providers/services/resolver/internal/media"
)

func newResolveCommand(build builder, verbosity *int) *cobra.Command {
	var (
		sourceName string
		catalogID  string
		internalID string
		kind       string
		season     string
		episode    string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve streams for one title and print them as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := media.NewRef(catalogID, internalID, media.ParseKind(kind), season, episode)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logging.NewConsole(levelFor(*verbosity))
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			reg, release, err := build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			if release != nil {
				defer release()
			}

			src, ok := reg.Get(sourceName)
			if !ok {
				return fmt.Errorf("%w: unknown source %q (available: %v)", media.ErrValidation, sourceName, reg.Names())
			}
			res, err := src.ScrapeAll(cmd.Context(), ref)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", "flixhq", "Source to scrape")
	cmd.Flags().StringVar(&catalogID, "tmdb", "", "TMDB id of the title")
	cmd.Flags().StringVar(&internalID, "id", "", "Source-internal id, skips search and matching")
	cmd.Flags().StringVar(&kind, "kind", "movie", "Media kind: movie or tv")
	cmd.Flags().StringVar(&season, "season", "", "Season number (series only)")
	cmd.Flags().StringVar(&episode, "episode", "", "Episode number (series only)")
	return cmd
}
