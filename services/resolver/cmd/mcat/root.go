package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/mcat-providers/services/resolver/internal/app"
	"github.com/example/mcat-providers/services/resolver/internal/config"
	"github.com/example/mcat-providers/services/resolver/internal/source"
)

// builder assembles the source registry; the returned func releases it.
type builder func(ctx context.Context, cfg config.Config, log *zap.Logger) (source.Registry, func(), error)

func defaultBuilder(ctx context.Context, cfg config.Config, log *zap.Logger) (source.Registry, func(), error) {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return source.Registry{}, nil, err
	}
	return a.Sources, a.Close, nil
}

func newRootCommand(build builder) *cobra.Command {
	var verbosity int

	rootCmd := &cobra.Command{
		Use:           "mcat",
		Short:         "Resolve playable streams for movies and series",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")

	rootCmd.AddCommand(newResolveCommand(build, &verbosity))
	return rootCmd
}

// levelFor maps the -v count to a log level.
func levelFor(verbosity int) string {
	switch {
	case verbosity <= 0:
		return "warn"
	case verbosity == 1:
		return "info"
	}
	return "debug"
}
