package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/batch"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/fileutils"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/provider"
)

func newRephraseCmd(a *app) *cobra.Command {
	cfg := defaultRephraseConfig()
	cmd := &cobra.Command{
		Use:   "rephrase",
		Short: "Rewrite a document (or a directory of .txt/.md files) chunk by chunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRephrase(cmd, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.InPath, "in", cfg.InPath, "input file or directory")
	f.StringVar(&cfg.OutPath, "out", cfg.OutPath, "output file or directory (stdout for a single file when empty)")
	f.StringVar(&cfg.Style, "style", cfg.Style, "style instruction (defaults to the configured style)")
	f.StringVar(&cfg.Verifier, "verifier", cfg.Verifier, "fidelity verifier: none, jaccard, numeric or composite")
	f.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "override chunk size")
	f.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "documents rewritten in parallel")
	f.BoolVar(&cfg.Resume, "resume", cfg.Resume, "skip inputs whose output already exists")
	f.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "echo chunks instead of calling the model")
	return cmd
}

func (a *app) runRephrase(cmd *cobra.Command, cfg RephraseConfig) error {
	if cfg.InPath == "" {
		return cfg.Validate(false)
	}
	st, err := os.Stat(cfg.InPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(st.IsDir()); err != nil {
		return err
	}

	ctx := cmd.Context()
	pcfg := a.settings.Rephrase
	if cfg.ChunkSize > 0 {
		pcfg.ChunkSize = cfg.ChunkSize
	}
	verifierName := a.settings.Verifier
	if cfg.Verifier != "" {
		verifierName = cfg.Verifier
	}
	verifier, err := synthesis.NewFidelityVerifier(verifierName, synthesis.WhitespaceTokenizer{})
	if err != nil {
		return err
	}

	var rw synthesis.Rewriter = synthesis.EchoRewriter{}
	if !cfg.DryRun && a.settings.Backend.Provider != provider.EchoProvider {
		m, err := a.model(ctx)
		if err != nil {
			return err
		}
		rw = synthesis.LLMRewriter{Model: m, Params: a.settings.Backend.GenerationParams}
	}

	j, closeJournal, err := a.openJournal()
	if err != nil {
		return err
	}
	defer closeJournal()
	opts := a.pipelineOptions(j, synthesis.WithVerifier(verifier))

	if st.IsDir() {
		inputs, err := batch.CollectInputs(cfg.InPath)
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			return fmt.Errorf("no .txt or .md files under %s", cfg.InPath)
		}
		r := batch.Runner{
			Rewriter:    rw,
			Config:      pcfg,
			Options:     opts,
			Style:       cfg.Style,
			Concurrency: cfg.Concurrency,
			Resume:      cfg.Resume,
			Progress:    cmd.ErrOrStderr(),
			Logger:      a.logger,
		}
		results, err := r.Run(ctx, batch.PlanJobs(cfg.InPath, cfg.OutPath, inputs))
		a.logger.Info("batch finished", zap.Int("documents", len(results)))
		return err
	}

	if cfg.Resume && cfg.OutPath != "" && fileutils.FileExists(cfg.OutPath) {
		fmt.Fprintf(cmd.ErrOrStderr(), "skip %s: %s exists\n", cfg.InPath, cfg.OutPath)
		return nil
	}
	raw, err := os.ReadFile(cfg.InPath)
	if err != nil {
		return err
	}
	opts = append(opts, synthesis.WithSourceName(filepath.Clean(cfg.InPath)))
	p, err := synthesis.NewRephrasePipeline(rw, pcfg, opts...)
	if err != nil {
		return err
	}
	res, err := p.RunDetailed(ctx, string(raw), cfg.Style)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d chunks\n", res.RunID, len(res.Chunks))
	if cfg.OutPath == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Text)
		return err
	}
	return fileutils.WriteTextFileAtomic(cfg.OutPath, res.Text)
}
