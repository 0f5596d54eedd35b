package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rewriterFunc func(ctx context.Context, req synthesis.RewriteRequest) (string, error)

func (f rewriterFunc) Rewrite(ctx context.Context, req synthesis.RewriteRequest) (string, error) {
	return f(ctx, req)
}

func writeInputs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestCollectInputs(t *testing.T) {
	t.Parallel()

	dir := writeInputs(t, map[string]string{
		"b.md":         "b",
		"a.txt":        "a",
		"nested/c.TXT": "c",
		"skip.json":    "{}",
	})
	files, err := CollectInputs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.md"),
		filepath.Join(dir, "nested", "c.TXT"),
	}, files)

	single, err := CollectInputs(filepath.Join(dir, "skip.json"))
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = CollectInputs(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestPlanJobs(t *testing.T) {
	t.Parallel()

	jobs := PlanJobs("/in", "/out", []string{"/in/a.txt", "/in/sub/b.md"})
	assert.Equal(t, []Job{
		{InPath: "/in/a.txt", OutPath: filepath.Join("/out", "a.txt")},
		{InPath: "/in/sub/b.md", OutPath: filepath.Join("/out", "sub", "b.md")},
	}, jobs)

	single := PlanJobs("/in/a.txt", "/out", []string{"/in/a.txt"})
	assert.Equal(t, filepath.Join("/out", "a.txt"), single[0].OutPath)
}

func TestRunner_EchoRoundTrip(t *testing.T) {
	t.Parallel()

	in := writeInputs(t, map[string]string{
		"one.txt":       "First paragraph.\n\nSecond paragraph.",
		"two.md":        "# Title\n\nBody text here.",
		"sub/three.txt": "Only one.",
	})
	out := t.TempDir()
	files, err := CollectInputs(in)
	require.NoError(t, err)

	var progress bytes.Buffer
	r := Runner{
		Rewriter:    synthesis.EchoRewriter{},
		Config:      synthesis.DefaultPipelineConfig(),
		Concurrency: 2,
		Progress:    &progress,
	}
	results, err := r.Run(context.Background(), PlanJobs(in, out, files))
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, res := range results {
		require.NoError(t, res.Err)
		assert.NotEmpty(t, res.RunID)
		src, err := os.ReadFile(res.Job.InPath)
		require.NoError(t, err)
		got, err := os.ReadFile(res.Job.OutPath)
		require.NoError(t, err)
		assert.Equal(t, strings.TrimSpace(string(src))+"\n", string(got))
	}
	assert.Equal(t, 3, strings.Count(progress.String(), "(ok)"))
	assert.Contains(t, progress.String(), "/3] ")
}

func TestRunner_FailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	in := writeInputs(t, map[string]string{"bad.txt": "poison pill", "good.txt": "fine text"})
	out := t.TempDir()
	files, err := CollectInputs(in)
	require.NoError(t, err)

	rw := rewriterFunc(func(_ context.Context, req synthesis.RewriteRequest) (string, error) {
		if strings.Contains(req.CurrentChunk, "poison") {
			return "", &synthesis.BackendError{Task: synthesis.TaskRewriteChunk, StatusCode: 400, Err: errors.New("bad request")}
		}
		return req.CurrentChunk, nil
	})
	r := Runner{Rewriter: rw, Config: synthesis.DefaultPipelineConfig(), Concurrency: 2}
	results, err := r.Run(context.Background(), PlanJobs(in, out, files))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.txt")

	var ue *synthesis.UnitError
	assert.True(t, errors.As(results[0].Err, &ue))
	assert.NoError(t, results[1].Err)
	assert.FileExists(t, filepath.Join(out, "good.txt"))
	assert.NoFileExists(t, filepath.Join(out, "bad.txt"))
}

func TestRunner_ResumeSkipsExisting(t *testing.T) {
	t.Parallel()

	in := writeInputs(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	out := writeInputs(t, map[string]string{"a.txt": "already done\n"})
	files, err := CollectInputs(in)
	require.NoError(t, err)

	calls := 0
	rw := rewriterFunc(func(_ context.Context, req synthesis.RewriteRequest) (string, error) {
		calls++
		return req.CurrentChunk, nil
	})
	r := Runner{Rewriter: rw, Config: synthesis.DefaultPipelineConfig(), Resume: true}
	results, err := r.Run(context.Background(), PlanJobs(in, out, files))
	require.NoError(t, err)

	assert.True(t, results[0].Skipped)
	assert.False(t, results[1].Skipped)
	assert.Equal(t, 1, calls)
	got, err := os.ReadFile(filepath.Join(out, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "already done\n", string(got))
}

func TestRunner_CanceledContext(t *testing.T) {
	t.Parallel()

	in := writeInputs(t, map[string]string{"a.txt": "alpha"})
	files, err := CollectInputs(in)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Runner{Rewriter: synthesis.EchoRewriter{}, Config: synthesis.DefaultPipelineConfig()}
	_, err = r.Run(ctx, PlanJobs(in, t.TempDir(), files))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_Validation(t *testing.T) {
	t.Parallel()

	_, err := Runner{Config: synthesis.DefaultPipelineConfig()}.Run(context.Background(), nil)
	assert.Error(t, err)

	cfg := synthesis.DefaultPipelineConfig()
	cfg.ChunkSize = 0
	_, err = Runner{Rewriter: synthesis.EchoRewriter{}, Config: cfg}.Run(context.Background(), nil)
	var ce *synthesis.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}
