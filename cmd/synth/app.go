package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/journal"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/provider"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/settings"
)

// app holds state shared by every subcommand. It is filled in by the root command's
// PersistentPreRunE.
type app struct {
	settingsPath string
	verbose      bool
	backend      backendFlags
	journalPath  string

	logger   *zap.Logger
	settings settings.Settings

	// newModel builds the text-generation backend; tests swap it for a scripted model.
	newModel func(ctx context.Context, cfg provider.Config) (synthesis.Model, error)
}

type backendFlags struct {
	provider string
	model    string
	baseURL  string
}

func newApp() *app {
	return &app{newModel: provider.New}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "synth",
		Short:         "Chunk-wise long-form text synthesis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.settingsPath, "config", "", "YAML settings file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&a.backend.provider, "provider", "", "backend: openai-responses, openai-chat, gemini or echo")
	pf.StringVar(&a.backend.model, "model", "", "model name")
	pf.StringVar(&a.backend.baseURL, "base-url", "", "API base URL for OpenAI-compatible endpoints")
	pf.StringVar(&a.journalPath, "journal", "", "SQLite run journal path")

	root.AddCommand(
		newRephraseCmd(a),
		newPlanCmd(a),
		newGenerateCmd(a),
		newSplitCmd(a),
		newRunsCmd(a),
	)
	return root
}

func (a *app) init() error {
	if a.logger == nil {
		config := zap.NewProductionConfig()
		if a.verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.logger = logger
	}

	s, err := settings.Load(a.settingsPath)
	if err != nil {
		return err
	}
	if a.backend.provider != "" {
		s.Backend.Provider = a.backend.provider
	}
	if a.backend.model != "" {
		s.Backend.Model = a.backend.model
	}
	if a.backend.baseURL != "" {
		s.Backend.BaseURL = a.backend.baseURL
	}
	if a.journalPath != "" {
		s.Journal = a.journalPath
	}
	a.settings = s
	return nil
}

func (a *app) model(ctx context.Context) (synthesis.Model, error) {
	if err := a.settings.Backend.Validate(); err != nil {
		return nil, err
	}
	return a.newModel(ctx, a.settings.Backend.Config)
}

// openJournal returns nil (and a no-op close) when no journal is configured.
func (a *app) openJournal() (*journal.Journal, func(), error) {
	if a.settings.Journal == "" {
		return nil, func() {}, nil
	}
	j, err := journal.Open(a.settings.Journal)
	if err != nil {
		return nil, nil, err
	}
	return j, func() {
		if err := j.Close(); err != nil {
			a.logger.Warn("close journal", zap.Error(err))
		}
	}, nil
}

// pipelineOptions are the options every pipeline gets: logger, tokenizer and the journal.
func (a *app) pipelineOptions(j *journal.Journal, extra ...synthesis.Option) []synthesis.Option {
	opts := []synthesis.Option{
		synthesis.WithLogger(a.logger),
		synthesis.WithTokenizer(synthesis.WhitespaceTokenizer{}),
	}
	if j != nil {
		opts = append(opts, synthesis.WithRecorder(j))
	}
	return append(opts, extra...)
}
