package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/tayyib/internal/classifier"
	"github.com/JaimeStill/tayyib/internal/config"
)

type options struct {
	classifier classifier.Config
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "screen",
		Short:        "Halal ingredient screening",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.classifier.Provider, "provider", "", "classifier provider: openai, http")
	flags.StringVar(&opts.classifier.BaseURL, "base-url", "", "classifier endpoint base URL")
	flags.StringVar(&opts.classifier.Model, "model", "", "model name for the openai provider")
	flags.StringVar(&opts.classifier.Timeout, "timeout", "", "classifier request timeout")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log classifier activity to stderr")

	root.AddCommand(newClassifyCommand(opts))
	return root
}

// classifierConfig layers flags over the TAYYIB_CLASSIFIER_* environment.
func (o *options) classifierConfig() (*classifier.Config, error) {
	cfg := &classifier.Config{}
	if err := cfg.FinalizeOver(config.ClassifierEnv, &o.classifier); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
