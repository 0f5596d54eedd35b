package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/fileutils"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/provider"
)

func bindPlanFlags(cmd *cobra.Command, cfg *PlanConfig) {
	f := cmd.Flags()
	f.StringVar(&cfg.Topic, "topic", cfg.Topic, "document topic")
	f.StringVar(&cfg.Objective, "objective", cfg.Objective, "what the document should achieve")
	f.StringVar(&cfg.Audience, "audience", cfg.Audience, "intended readers")
	f.StringVar(&cfg.Tone, "tone", cfg.Tone, "tone of voice")
	f.IntVar(&cfg.TargetLength, "target-length", cfg.TargetLength, "target total length in tokens")
}

func (c PlanConfig) request() synthesis.PlanRequest {
	return synthesis.PlanRequest{
		Topic:             c.Topic,
		Objective:         c.Objective,
		Audience:          c.Audience,
		Tone:              c.Tone,
		TargetTotalLength: c.TargetLength,
	}
}

func (a *app) generationPipeline(cmd *cobra.Command, extra ...synthesis.Option) (*synthesis.GenerationPipeline, func(), error) {
	m, err := a.model(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	j, closeJournal, err := a.openJournal()
	if err != nil {
		return nil, nil, err
	}
	cfg := a.settings.Generation
	cfg.Params = a.settings.Backend.GenerationParams
	opts := a.pipelineOptions(j, append([]synthesis.Option{
		synthesis.WithPlanSchema(provider.GenerateSchema[synthesis.GenerationPlan]()),
	}, extra...)...)
	p, err := synthesis.NewGenerationPipeline(m, cfg, opts...)
	if err != nil {
		closeJournal()
		return nil, nil, err
	}
	return p, closeJournal, nil
}

func newPlanCmd(a *app) *cobra.Command {
	cfg := defaultPlanConfig()
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Derive a section plan for a topic and write it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			p, done, err := a.generationPipeline(cmd)
			if err != nil {
				return err
			}
			defer done()
			plan, err := p.DerivePlan(cmd.Context(), cfg.request())
			if err != nil {
				return err
			}
			if cfg.OutPath == "" {
				b, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return err
			}
			return fileutils.WriteJSONFileAtomic(cfg.OutPath, plan, true)
		},
	}
	bindPlanFlags(cmd, &cfg)
	cmd.Flags().StringVar(&cfg.OutPath, "out", "", "plan JSON output path (stdout when empty)")
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	cfg := defaultGenerateConfig()
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a long-form document from a plan file or a topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd, cfg)
		},
	}
	bindPlanFlags(cmd, &cfg.Plan)
	cmd.Flags().StringVar(&cfg.PlanPath, "plan", "", "manual plan (.json, .yaml or .yml)")
	cmd.Flags().StringVar(&cfg.OutDir, "out", "", "output directory")
	return cmd
}

func (a *app) runGenerate(cmd *cobra.Command, cfg GenerateConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var in synthesis.GenerationInput
	source := cfg.Plan.Topic
	if cfg.PlanPath != "" {
		plan, err := synthesis.LoadPlanFile(cfg.PlanPath)
		if err != nil {
			return err
		}
		in.Plan = &plan
		source = cfg.PlanPath
	} else {
		req := cfg.Plan.request()
		in.Request = &req
	}

	p, done, err := a.generationPipeline(cmd, synthesis.WithSourceName(source))
	if err != nil {
		return err
	}
	defer done()

	res, err := p.Run(cmd.Context(), in)
	if err != nil {
		return err
	}

	md := synthesis.RenderMarkdown(res, synthesis.MarkdownOptions{IncludeKeyPoints: true, IncludeReport: true})
	outputs := []struct {
		name  string
		write func(path string) error
	}{
		{"document.txt", func(p string) error { return fileutils.WriteTextFileAtomic(p, res.Text) }},
		{"document.md", func(p string) error { return fileutils.WriteTextFileAtomic(p, md) }},
		{"qc_report.json", func(p string) error { return fileutils.WriteJSONFileAtomic(p, res.Report, true) }},
		{"plan.json", func(p string) error { return fileutils.WriteJSONFileAtomic(p, res.Plan, true) }},
	}
	for _, o := range outputs {
		if err := o.write(filepath.Join(cfg.OutDir, o.name)); err != nil {
			return fmt.Errorf("write %s: %w", o.name, err)
		}
	}

	a.logger.Info("generation finished",
		zap.String("run_id", res.RunID),
		zap.Int("sections", len(res.Sections)),
		zap.Bool("has_issues", res.Report.HasIssues()),
		zap.Bool("has_critical_issues", res.Report.HasCriticalIssues()))
	fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d sections written to %s\n", res.RunID, len(res.Sections), cfg.OutDir)
	return nil
}
