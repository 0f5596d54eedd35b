package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SectionOutcome is what happened to one planned section.
type SectionOutcome struct {
	Index              int           `json:"index"`
	Title              string        `json:"title"`
	Text               string        `json:"text"`
	Status             SectionStatus `json:"status"`
	Attempts           int           `json:"attempts"`
	Score              float64       `json:"score"`
	Issues             []string      `json:"issues,omitempty"`
	ConsistencyApplied bool          `json:"consistency_pass_applied"`
}

// GenerationResult is the output of a generation run.
type GenerationResult struct {
	RunID    string           `json:"run_id"`
	Status   RunStatus        `json:"status"`
	Text     string           `json:"final_text"`
	Plan     GenerationPlan   `json:"plan"`
	Sections []SectionOutcome `json:"sections"`
	State    GenerationState  `json:"final_state"`
	Report   QualityReport    `json:"qc_report"`
}

// GenerationInput selects the plan source. A manual Plan bypasses the planning call.
type GenerationInput struct {
	Plan    *GenerationPlan
	Request *PlanRequest
}

// GenerationPipeline writes a document section by section from a plan.
type GenerationPipeline struct {
	model Model
	cfg   GenerationConfig
	opts  options
}

func NewGenerationPipeline(m Model, cfg GenerationConfig, opts ...Option) (*GenerationPipeline, error) {
	if m == nil {
		return nil, errors.New("NewGenerationPipeline: model is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GenerationPipeline{model: m, cfg: cfg, opts: buildOptions(opts)}, nil
}

// DerivePlan asks the model for a plan in one call and validates the reply.
func (p *GenerationPipeline) DerivePlan(ctx context.Context, req PlanRequest) (GenerationPlan, error) {
	if ctx == nil {
		return GenerationPlan{}, errors.New("DerivePlan: ctx is nil")
	}
	if req.TargetTotalLength <= 0 {
		return GenerationPlan{}, &ConfigurationError{Field: "target_total_length", Reason: "must be > 0"}
	}
	raw, err := p.model.Generate(ctx, Request{
		Task:       TaskPlanGeneration,
		Prompt:     RenderPlanPrompt(p.cfg.PromptLanguage, req),
		Params:     p.cfg.Params,
		JSONSchema: p.opts.planSchema,
		SchemaName: "generation_plan",
	})
	if err != nil {
		return GenerationPlan{}, fmt.Errorf("DerivePlan: %w", err)
	}
	plan, err := ParsePlan(raw)
	if err != nil {
		return GenerationPlan{}, fmt.Errorf("DerivePlan: %w", err)
	}
	p.opts.logger.Info("plan derived", zap.String("topic", plan.Topic), zap.Int("sections", len(plan.Sections)))
	return plan, nil
}

// Run resolves the plan and generates every section in order. Sections that never pass the
// gate are accepted with warnings; only a section with no usable draft aborts the run.
func (p *GenerationPipeline) Run(ctx context.Context, in GenerationInput) (GenerationResult, error) {
	if ctx == nil {
		return GenerationResult{}, errors.New("GenerationPipeline: ctx is nil")
	}

	var plan GenerationPlan
	switch {
	case in.Plan != nil:
		plan = in.Plan.Normalize()
		if err := plan.Validate(); err != nil {
			return GenerationResult{}, err
		}
	case in.Request != nil:
		derived, err := p.DerivePlan(ctx, *in.Request)
		if err != nil {
			return GenerationResult{}, err
		}
		plan = derived
	default:
		return GenerationResult{}, errors.New("GenerationPipeline: need a plan or a plan request")
	}

	cfg := p.cfg
	gate := QualityGate{Config: cfg, Tokenizer: p.opts.tokenizer}
	res := GenerationResult{RunID: uuid.NewString(), Status: RunRunning, Plan: plan}
	log := p.opts.logger.With(zap.String("run_id", res.RunID), zap.String("workflow", string(WorkflowGeneration)))
	started := time.Now()

	state := NewGenerationState(plan)
	accepted := make([]string, 0, len(plan.Sections))

	for i, spec := range plan.Sections {
		log.Info("section start", zap.Int("section", i+1), zap.Int("sections", len(plan.Sections)), zap.String("title", spec.Title))

		out, verdict, err := p.generateSection(ctx, log, gate, plan, state, spec, i, accepted)
		if err != nil {
			res.Status = RunAborted
			res.Sections = append(res.Sections, out)
			uerr := &UnitError{Kind: "section", Index: i, Err: err}
			p.recordRun(ctx, res, started, len(accepted), uerr)
			return res, uerr
		}

		if cfg.ConsistencyPassEnabled && cfg.ConsistencyScope == ConsistencyPerSection {
			out, verdict = p.reconcileSection(ctx, log, gate, plan, state, spec, out, verdict, accepted, &res.Report)
		}

		if verdict.Accepted {
			out.Status = SectionAccepted
		} else {
			out.Status = SectionAcceptedWithWarnings
			warning := fmt.Sprintf("Section %d ('%s') accepted with warnings after %d attempts: %s",
				i+1, spec.Title, out.Attempts, strings.Join(verdict.Issues(), "; "))
			res.Report.SectionWarnings = append(res.Report.SectionWarnings, warning)
			log.Warn("section accepted with warnings", zap.Int("section", i+1), zap.Strings("issues", verdict.Issues()))
		}
		out.Score = verdict.Score
		out.Issues = verdict.Issues()

		state.Update(i, out.Text, spec, plan)
		state.Record(SectionRecord{
			Index:             i,
			Title:             spec.Title,
			Attempts:          out.Attempts,
			Status:            out.Status,
			Score:             out.Score,
			ConsistencyPassed: out.ConsistencyApplied,
		})
		accepted = append(accepted, out.Text)
		res.Sections = append(res.Sections, out)
		res.Report.SectionScores = append(res.Report.SectionScores, SectionScore{
			Index:    i,
			Title:    spec.Title,
			Score:    out.Score,
			Attempts: out.Attempts,
			Issues:   out.Issues,
		})

		log.Info("section accepted", zap.Int("section", i+1), zap.Float64("score", out.Score), zap.Int("attempts", out.Attempts))
		p.recordUnit(ctx, UnitRecord{
			RunID:    res.RunID,
			Workflow: WorkflowGeneration,
			Index:    i,
			Title:    spec.Title,
			Status:   string(out.Status),
			Attempts: out.Attempts,
			Score:    out.Score,
			Issues:   out.Issues,
			Output:   out.Text,
		})
	}

	res.Text = strings.Join(accepted, "\n\n")
	if cfg.ConsistencyPassEnabled && cfg.ConsistencyScope == ConsistencyDocument {
		res.Text = p.reconcileDocument(ctx, log, plan, state, res.Text, accepted, &res.Report)
	}
	gate.CheckDocument(plan, accepted, &res.Report)

	res.State = state.Snapshot()
	res.Status = RunDone
	p.recordRun(ctx, res, started, len(accepted), nil)
	return res, nil
}

// generateSection runs the draft and repair loop for one section: at most MaxSectionRetries+1
// section_generation requests. The last draft is returned even when the gate never accepts it.
func (p *GenerationPipeline) generateSection(ctx context.Context, log *zap.Logger, gate QualityGate, plan GenerationPlan, state *GenerationState, spec SectionSpec, index int, prior []string) (SectionOutcome, SectionVerdict, error) {
	cfg := p.cfg
	out := SectionOutcome{Index: index, Title: spec.Title}
	recent := RollingPrefix(prior, p.opts.tokenizer, cfg.PrefixWindowTokens)
	prompt := p.sectionPrompt(plan, state, spec, recent, index)
	log.Debug("section prompt", zap.Int("section", index+1), zap.Int("prefix_tokens", p.opts.tokenizer.Count(recent)), zap.Int("prompt_tokens", p.opts.tokenizer.Count(prompt)))

	var verdict SectionVerdict
	var lastErr error
	for retry := 0; retry <= cfg.MaxSectionRetries; retry++ {
		if err := ctx.Err(); err != nil {
			return out, verdict, err
		}
		req := prompt
		if out.Text != "" {
			req = RenderRepairPrompt(cfg.PromptLanguage, state, spec, out.Text, verdict.Issues(), retry)
		}
		out.Attempts++
		text, err := p.model.Generate(ctx, Request{Task: TaskSectionGeneration, Prompt: req, Params: cfg.Params})
		if err != nil {
			if !IsRetryable(err) {
				return out, verdict, err
			}
			lastErr = err
			log.Warn("backend error, retrying", zap.Int("section", index+1), zap.Int("attempt", out.Attempts), zap.Error(err))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			lastErr = errors.New("empty section output")
			continue
		}

		out.Text = text
		verdict = gate.CheckSection(plan, state, spec, text, prior)
		if verdict.Accepted || !verdict.Retryable {
			break
		}
		log.Debug("draft rejected", zap.Int("section", index+1), zap.Int("attempt", out.Attempts), zap.Error(verdict.Rejection(index)))
	}

	if out.Text == "" {
		if lastErr == nil {
			lastErr = errors.New("no draft produced")
		}
		return out, verdict, lastErr
	}
	return out, verdict, nil
}

// sectionPrompt picks the full or compressed prompt. Compression kicks in once the full prompt
// exceeds the trigger; a zero trigger falls back to the prefix window.
func (p *GenerationPipeline) sectionPrompt(plan GenerationPlan, state *GenerationState, spec SectionSpec, recent string, index int) string {
	cfg := p.cfg
	full := RenderSectionPrompt(cfg.PromptLanguage, plan, state, recent, spec)
	if !cfg.PromptCompressionEnabled {
		return full
	}
	trigger := cfg.CompressionTriggerTokens
	if trigger <= 0 {
		trigger = cfg.PrefixWindowTokens
	}
	if p.opts.tokenizer.Count(full) <= trigger {
		return full
	}
	return RenderSectionPromptCompressed(cfg.PromptLanguage, plan, state, spec, recent, index, cfg)
}

// reconcileSection issues one consistency_pass request for a provisionally accepted section.
// The revision replaces the draft only if it clears the edit guard, keeps every number of the
// draft and is accepted by the gate.
func (p *GenerationPipeline) reconcileSection(ctx context.Context, log *zap.Logger, gate QualityGate, plan GenerationPlan, state *GenerationState, spec SectionSpec, out SectionOutcome, verdict SectionVerdict, prior []string, report *QualityReport) (SectionOutcome, SectionVerdict) {
	revised, err := p.model.Generate(ctx, Request{
		Task:   TaskConsistencyPass,
		Prompt: RenderConsistencyPrompt(p.cfg.PromptLanguage, plan, state, out.Text, verdict.Issues()),
		Params: p.cfg.Params,
	})
	if err != nil {
		log.Warn("consistency pass failed", zap.Int("section", out.Index+1), zap.Error(err))
		report.SectionWarnings = append(report.SectionWarnings,
			fmt.Sprintf("Section %d ('%s') consistency pass failed: %v", out.Index+1, spec.Title, err))
		return out, verdict
	}

	candidate, fellBack := p.cfg.ConsistencyGuard.Apply(out.Text, revised)
	if fellBack {
		report.ConsistencyPassUsedFallback = true
		log.Debug("consistency revision rejected by edit guard", zap.Int("section", out.Index+1))
		return out, verdict
	}
	if missing := numericIssues(out.Text, candidate); len(missing) > 0 {
		for _, m := range missing {
			report.NumericFactIssues = append(report.NumericFactIssues, fmt.Sprintf("Section %d: %s", out.Index+1, m))
		}
		report.ConsistencyPassUsedFallback = true
		return out, verdict
	}

	v2 := gate.CheckSection(plan, state, spec, candidate, prior)
	if !v2.Accepted {
		log.Debug("consistency revision failed the gate", zap.Int("section", out.Index+1), zap.Float64("score", v2.Score))
		return out, verdict
	}
	out.Text = candidate
	out.ConsistencyApplied = true
	report.ConsistencyPassApplied = true
	return out, v2
}

// reconcileDocument runs a single consistency pass over the assembled text.
func (p *GenerationPipeline) reconcileDocument(ctx context.Context, log *zap.Logger, plan GenerationPlan, state *GenerationState, text string, sections []string, report *QualityReport) string {
	var findings QualityReport
	QualityGate{Config: p.cfg, Tokenizer: p.opts.tokenizer}.CheckDocument(plan, sections, &findings)
	issues := append(append(append(append([]string(nil), findings.CoverageMissing...),
		findings.TerminologyIssues...), findings.RepetitionIssues...), findings.DriftIssues...)

	revised, err := p.model.Generate(ctx, Request{
		Task:   TaskConsistencyPass,
		Prompt: RenderConsistencyPrompt(p.cfg.PromptLanguage, plan, state, text, issues),
		Params: p.cfg.Params,
	})
	if err != nil {
		log.Warn("consistency pass failed", zap.Error(err))
		report.SectionWarnings = append(report.SectionWarnings, fmt.Sprintf("Document consistency pass failed: %v", err))
		return text
	}
	candidate, fellBack := p.cfg.ConsistencyGuard.Apply(text, revised)
	if fellBack {
		report.ConsistencyPassUsedFallback = true
		return text
	}
	if missing := numericIssues(text, candidate); len(missing) > 0 {
		report.NumericFactIssues = append(report.NumericFactIssues, missing...)
		report.ConsistencyPassUsedFallback = true
		return text
	}
	report.ConsistencyPassApplied = true
	return candidate
}

func numericIssues(source, revised string) []string {
	var out []string
	for _, f := range NewNumericFactChecker(0).FindMissing(source, revised) {
		out = append(out, fmt.Sprintf("%s '%s' may be missing (was in: '...%s...')", capitalize(string(f.Type)), f.Value, f.Context))
	}
	return out
}

func (p *GenerationPipeline) recordUnit(ctx context.Context, u UnitRecord) {
	if err := p.opts.recorder.RecordUnit(ctx, u); err != nil {
		p.opts.logger.Warn("record unit failed", zap.String("run_id", u.RunID), zap.Int("unit", u.Index+1), zap.Error(err))
	}
}

func (p *GenerationPipeline) recordRun(ctx context.Context, res GenerationResult, started time.Time, units int, runErr error) {
	rec := RunRecord{
		RunID:      res.RunID,
		Workflow:   WorkflowGeneration,
		Status:     res.Status,
		Source:     p.opts.source,
		Units:      units,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if runErr != nil {
		rec.Err = runErr.Error()
	} else {
		report := res.Report
		rec.Report = &report
	}
	if rec.Source == "" {
		rec.Source = res.Plan.Topic
	}
	if err := p.opts.recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		p.opts.logger.Warn("record run failed", zap.String("run_id", res.RunID), zap.Error(err))
	}
}
