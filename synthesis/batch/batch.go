// Package batch rephrases many independent documents concurrently. Each document is its own
// run; documents never share state.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/fileutils"
)

// Job is one input file and where its rewrite goes.
type Job struct {
	InPath  string
	OutPath string
}

// Result is the outcome of one job. Skipped jobs (resume with existing output) have no RunID.
type Result struct {
	Job     Job
	RunID   string
	Chunks  int
	Skipped bool
	Err     error
}

// Runner rephrases jobs with at most Concurrency runs in flight.
type Runner struct {
	Rewriter synthesis.Rewriter
	Config   synthesis.PipelineConfig
	Options  []synthesis.Option
	Style    string

	Concurrency int
	// Resume skips jobs whose output file already exists.
	Resume bool
	// Progress receives one line per finished job. Nil discards.
	Progress io.Writer
	Logger   *zap.Logger
}

// Run processes every job and returns results in job order. A failed job does not stop the
// others; the returned error joins every job error, or is the context error on cancellation.
func (r Runner) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	if r.Rewriter == nil {
		return nil, errors.New("batch: rewriter is nil")
	}
	if err := r.Config.Validate(); err != nil {
		return nil, err
	}
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limit := r.Concurrency
	if limit <= 0 {
		limit = 1
	}

	results := make([]Result, len(jobs))
	var (
		done int64
		mu   sync.Mutex
	)
	progress := func(res Result) {
		n := atomic.AddInt64(&done, 1)
		if r.Progress == nil {
			return
		}
		status := "ok"
		switch {
		case res.Err != nil:
			status = "error: " + res.Err.Error()
		case res.Skipped:
			status = "skipped"
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(r.Progress, "[%d/%d] %s (%s)\n", n, len(jobs), res.Job.InPath, status)
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := r.runOne(ctx, log, job)
			results[i] = res
			progress(res)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Job.InPath, res.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (r Runner) runOne(ctx context.Context, log *zap.Logger, job Job) Result {
	res := Result{Job: job}
	if r.Resume && fileutils.FileExists(job.OutPath) {
		res.Skipped = true
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	raw, err := os.ReadFile(job.InPath)
	if err != nil {
		res.Err = err
		return res
	}
	opts := append(append([]synthesis.Option(nil), r.Options...),
		synthesis.WithSourceName(job.InPath),
		synthesis.WithLogger(log.With(zap.String("input", job.InPath))))
	p, err := synthesis.NewRephrasePipeline(r.Rewriter, r.Config, opts...)
	if err != nil {
		res.Err = err
		return res
	}

	out, err := p.RunDetailed(ctx, string(raw), r.Style)
	res.RunID = out.RunID
	res.Chunks = len(out.Chunks)
	if err != nil {
		res.Err = err
		return res
	}
	if err := fileutils.WriteTextFileAtomic(job.OutPath, out.Text); err != nil {
		res.Err = err
	}
	return res
}

// CollectInputs returns the .txt and .md files under inPath (or inPath itself when it is a
// file), sorted.
func CollectInputs(inPath string) ([]string, error) {
	st, err := os.Stat(inPath)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return []string{inPath}, nil
	}
	var files []string
	err = filepath.WalkDir(inPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// PlanJobs maps each input under inRoot to the same relative path under outRoot.
func PlanJobs(inRoot, outRoot string, inputs []string) []Job {
	jobs := make([]Job, 0, len(inputs))
	for _, in := range inputs {
		rel, err := filepath.Rel(inRoot, in)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(in)
		}
		jobs = append(jobs, Job{InPath: in, OutPath: filepath.Join(outRoot, rel)})
	}
	return jobs
}
