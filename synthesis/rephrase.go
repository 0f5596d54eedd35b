package synthesis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChunkStatus tracks one chunk through the rephrase loop.
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "PENDING"
	ChunkInProgress ChunkStatus = "IN_PROGRESS"
	ChunkAccepted   ChunkStatus = "ACCEPTED"
	ChunkFailed     ChunkStatus = "FAILED"
)

// RunStatus tracks a whole run.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunDone    RunStatus = "DONE"
	RunAborted RunStatus = "ABORTED"
)

// ChunkOutcome is what happened to one chunk.
type ChunkOutcome struct {
	Chunk    Chunk       `json:"chunk"`
	Output   string      `json:"output"`
	Status   ChunkStatus `json:"status"`
	Attempts int         `json:"attempts"`
	Score    float64     `json:"score"`
	Issues   []string    `json:"issues,omitempty"`
}

// RephraseResult is the detailed output of a rephrase run.
type RephraseResult struct {
	RunID  string         `json:"run_id"`
	Status RunStatus      `json:"status"`
	Text   string         `json:"text"`
	Chunks []ChunkOutcome `json:"chunks"`
}

// RephrasePipeline rewrites a document chunk by chunk, feeding each request a bounded window
// of the already accepted output.
type RephrasePipeline struct {
	rewriter Rewriter
	cfg      PipelineConfig
	opts     options
}

func NewRephrasePipeline(rw Rewriter, cfg PipelineConfig, opts ...Option) (*RephrasePipeline, error) {
	if rw == nil {
		return nil, errors.New("NewRephrasePipeline: rewriter is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RephrasePipeline{rewriter: rw, cfg: cfg, opts: buildOptions(opts)}, nil
}

// Run rewrites source and returns the stitched text.
func (p *RephrasePipeline) Run(ctx context.Context, source, style string) (string, error) {
	res, err := p.RunDetailed(ctx, source, style)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// candidate is the best-scoring rewrite seen so far for a chunk.
type candidate struct {
	text  string
	score FidelityScore
}

func (c *candidate) offer(text string, score FidelityScore) {
	if c.text == "" || score.Value > c.score.Value {
		c.text, c.score = text, score
	}
}

// RunDetailed rewrites source and reports per-chunk outcomes. A chunk that never produced a
// candidate aborts the run with a *UnitError; everything else degrades to the best candidate.
func (p *RephrasePipeline) RunDetailed(ctx context.Context, source, style string) (RephraseResult, error) {
	if ctx == nil {
		return RephraseResult{}, errors.New("RephrasePipeline: ctx is nil")
	}
	cfg := p.cfg
	tok := p.opts.tokenizer
	log := p.opts.logger
	if strings.TrimSpace(style) == "" {
		style = cfg.DefaultStyle
	}

	res := RephraseResult{RunID: uuid.NewString(), Status: RunRunning}
	started := time.Now()
	log = log.With(zap.String("run_id", res.RunID), zap.String("workflow", string(WorkflowRephrase)))

	chunks, err := Split(source, tok, cfg.SplitOptions())
	if err != nil {
		return res, err
	}
	log.Info("document split", zap.Int("chunks", len(chunks)), zap.Int("chunk_size", cfg.ChunkSize))

	res.Chunks = make([]ChunkOutcome, len(chunks))
	for i, c := range chunks {
		res.Chunks[i] = ChunkOutcome{Chunk: c, Status: ChunkPending}
	}

	anchor := GlobalAnchor(source, tok, cfg.GlobalAnchorMode, cfg.AnchorTokens)
	accepted := make([]string, 0, len(chunks))

	for i, chunk := range chunks {
		out := &res.Chunks[i]
		out.Status = ChunkInProgress
		prefix := RollingPrefix(accepted, tok, cfg.PrefixWindowTokens)
		log.Info("chunk start", zap.Int("chunk", i+1), zap.Int("chunks", len(chunks)))
		log.Debug("prefix window",
			zap.Int("chunk", i+1),
			zap.Int("prefix_tokens", tok.Count(prefix)),
			zap.Int("anchor_tokens", tok.Count(anchor)))

		best, attempts, err := p.rewriteChunk(ctx, log, chunk, len(chunks), style, anchor, prefix)
		out.Attempts = attempts
		if err != nil {
			out.Status = ChunkFailed
			res.Status = RunAborted
			uerr := &UnitError{Kind: "chunk", Index: i, Err: err}
			p.recordRun(ctx, res, started, len(accepted), uerr)
			return res, uerr
		}

		out.Output = best.text
		out.Score = best.score.Value
		out.Issues = best.score.Issues
		out.Status = ChunkAccepted
		accepted = append(accepted, best.text)

		if best.score.Value < cfg.FidelityThreshold || len(best.score.Issues) > 0 {
			log.Warn("chunk accepted with fidelity issues",
				zap.Int("chunk", i+1),
				zap.Float64("score", best.score.Value),
				zap.Strings("issues", best.score.Issues))
		}
		log.Info("chunk accepted", zap.Int("chunk", i+1), zap.Float64("score", best.score.Value), zap.Int("attempts", attempts))
		p.recordUnit(ctx, UnitRecord{
			RunID:    res.RunID,
			Workflow: WorkflowRephrase,
			Index:    i,
			Status:   string(out.Status),
			Attempts: attempts,
			Score:    out.Score,
			Issues:   out.Issues,
			Output:   out.Output,
		})
	}

	parts := make([]StitchPart, len(res.Chunks))
	for i, c := range res.Chunks {
		parts[i] = StitchPart{Text: c.Output, Separator: c.Chunk.Separator}
	}
	res.Text = Stitch(parts, tok, StitchOptions{MaxOverlapTokens: cfg.MaxStitchOverlapTokens, Match: cfg.StitchMatch})
	res.Status = RunDone
	p.recordRun(ctx, res, started, len(accepted), nil)
	return res, nil
}

// rewriteChunk runs the bounded retry loop for one chunk. It stops at the first candidate that
// meets the threshold or after MaxRetries+1 requests.
func (p *RephrasePipeline) rewriteChunk(ctx context.Context, log *zap.Logger, chunk Chunk, total int, style, anchor, prefix string) (candidate, int, error) {
	cfg := p.cfg
	var best candidate
	var lastErr error
	attempts := 0

	for retry := 0; retry <= cfg.MaxRetries; retry++ {
		if err := ctx.Err(); err != nil {
			return candidate{}, attempts, err
		}
		attempts++
		text, err := p.rewriter.Rewrite(ctx, RewriteRequest{
			StyleInstruction: style,
			GlobalAnchor:     anchor,
			GeneratedPrefix:  prefix,
			CurrentChunk:     chunk.Text,
			ChunkIndex:       chunk.Index,
			TotalChunks:      total,
			RetryIndex:       retry,
			StrictFidelity:   retry > 0,
			PromptLanguage:   cfg.PromptLanguage,
		})
		if err != nil {
			if !IsRetryable(err) {
				return candidate{}, attempts, err
			}
			lastErr = err
			log.Warn("backend error, retrying", zap.Int("chunk", chunk.Index+1), zap.Int("attempt", attempts), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			text = chunk.Text
		}
		text = strings.TrimSpace(text)

		score := p.opts.verifier.Score(chunk.Text, text)
		best.offer(text, score)
		if score.Value >= cfg.FidelityThreshold {
			break
		}
		rej := &QualityGateRejection{Unit: chunk.Index, Score: score.Value, Issues: score.Issues}
		log.Debug("candidate rejected", zap.Int("chunk", chunk.Index+1), zap.Int("attempt", attempts), zap.Error(rej))
	}

	if best.text == "" {
		if lastErr == nil {
			lastErr = errors.New("no candidate produced")
		}
		return candidate{}, attempts, lastErr
	}
	return best, attempts, nil
}

func (p *RephrasePipeline) recordUnit(ctx context.Context, u UnitRecord) {
	if err := p.opts.recorder.RecordUnit(ctx, u); err != nil {
		p.opts.logger.Warn("record unit failed", zap.String("run_id", u.RunID), zap.Int("unit", u.Index+1), zap.Error(err))
	}
}

func (p *RephrasePipeline) recordRun(ctx context.Context, res RephraseResult, started time.Time, units int, runErr error) {
	rec := RunRecord{
		RunID:      res.RunID,
		Workflow:   WorkflowRephrase,
		Status:     res.Status,
		Source:     p.opts.source,
		Units:      units,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if runErr != nil {
		rec.Err = runErr.Error()
	}
	if err := p.opts.recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		p.opts.logger.Warn("record run failed", zap.String("run_id", res.RunID), zap.Error(err))
	}
}
