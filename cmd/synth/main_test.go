package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/provider"
)

const basicsText = "Tides rise and fall twice a day because the moon pull drags the oceans " +
	"toward it while the earth keeps turning beneath."

const tidalPlanYAML = `topic: Tides
objective: Explain why tides happen
target_total_length: 20
sections:
  - title: Basics
    key_points: [moon pull]
    target_length: 20
`

func testApp(m synthesis.Model) *app {
	return &app{
		logger: zap.NewNop(),
		newModel: func(context.Context, provider.Config) (synthesis.Model, error) {
			if m == nil {
				return nil, errors.New("no model in this test")
			}
			return m, nil
		},
	}
}

func execute(t *testing.T, a *app, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd(a)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRephraseConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := defaultRephraseConfig()
	assert.EqualError(t, cfg.Validate(false), "missing --in")
	cfg.InPath = "docs"
	assert.ErrorContains(t, cfg.Validate(true), "missing --out")
	assert.NoError(t, cfg.Validate(false))
	cfg.Concurrency = -1
	assert.Error(t, cfg.Validate(false))
}

func TestGenerateConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := defaultGenerateConfig()
	assert.EqualError(t, cfg.Validate(), "missing --out")
	cfg.OutDir = "out"
	assert.ErrorContains(t, cfg.Validate(), "missing --topic")
	cfg.PlanPath = "plan.yaml"
	assert.NoError(t, cfg.Validate())
	cfg.PlanPath = ""
	cfg.Plan.Topic = "Tides"
	assert.NoError(t, cfg.Validate())
}

func TestRephrase_DryRunSingleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeTemp(t, dir, "doc.txt", "First paragraph here.\n\nSecond paragraph here.\n")
	out := filepath.Join(dir, "out", "doc.txt")

	_, stderr, err := execute(t, testApp(nil), "rephrase", "--in", in, "--out", out, "--dry-run", "--chunk-size", "4")
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 chunks")

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph here.\n\nSecond paragraph here.\n", string(got))
}

func TestRephrase_SingleFileToStdout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeTemp(t, dir, "doc.txt", "alpha beta gamma")
	m := synthesis.ModelFunc(func(_ context.Context, req synthesis.Request) (string, error) {
		assert.Equal(t, synthesis.TaskRewriteChunk, req.Task)
		assert.InDelta(t, 0.4, req.Params.Temperature, 1e-9)
		return "ALPHA BETA GAMMA", nil
	})

	stdout, _, err := execute(t, testApp(m), "rephrase", "--in", in, "--verifier", "none")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA BETA GAMMA\n", stdout)
}

func TestRephrase_DirectoryWithJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inDir := filepath.Join(dir, "in")
	writeTemp(t, inDir, "a.txt", "one")
	writeTemp(t, inDir, "nested/b.md", "two")
	outDir := filepath.Join(dir, "out")
	journalPath := filepath.Join(dir, "journal.db")

	_, stderr, err := execute(t, testApp(nil), "rephrase", "--provider", "echo", "--journal", journalPath,
		"--in", inDir, "--out", outDir, "--concurrency", "2")
	require.NoError(t, err)
	assert.Contains(t, stderr, "[2/2]")
	assert.FileExists(t, filepath.Join(outDir, "a.txt"))
	assert.FileExists(t, filepath.Join(outDir, "nested", "b.md"))

	stdout, _, err := execute(t, testApp(nil), "runs", "--journal", journalPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(stdout, " rephrase "))
	assert.Contains(t, stdout, "DONE")
}

func TestRephrase_DirectoryNeedsOut(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, testApp(nil), "rephrase", "--dry-run", "--in", t.TempDir())
	assert.ErrorContains(t, err, "missing --out")
}

func TestGenerate_ManualPlan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	planPath := writeTemp(t, dir, "plan.yaml", tidalPlanYAML)
	outDir := filepath.Join(dir, "out")
	journalPath := filepath.Join(dir, "journal.db")

	var tasks []synthesis.Task
	m := synthesis.ModelFunc(func(_ context.Context, req synthesis.Request) (string, error) {
		tasks = append(tasks, req.Task)
		return basicsText, nil
	})

	_, stderr, err := execute(t, testApp(m), "generate", "--plan", planPath, "--out", outDir, "--journal", journalPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "1 sections written")
	assert.Equal(t, synthesis.TaskSectionGeneration, tasks[0])
	assert.NotContains(t, tasks, synthesis.TaskPlanGeneration)

	text, err := os.ReadFile(filepath.Join(outDir, "document.txt"))
	require.NoError(t, err)
	assert.Equal(t, basicsText+"\n", string(text))

	md, err := os.ReadFile(filepath.Join(outDir, "document.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Tides\n")
	assert.Contains(t, string(md), "## Basics\n")
	assert.Contains(t, string(md), "## Quality report")

	raw, err := os.ReadFile(filepath.Join(outDir, "qc_report.json"))
	require.NoError(t, err)
	var report synthesis.QualityReport
	require.NoError(t, json.Unmarshal(raw, &report))
	require.Len(t, report.SectionScores, 1)
	assert.Empty(t, report.KeyPointsMissing)
	assert.FileExists(t, filepath.Join(outDir, "plan.json"))

	stdout, _, err := execute(t, testApp(nil), "runs", "--journal", journalPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "generation")
	assert.Contains(t, stdout, planPath)
}

func TestPlan_ToStdout(t *testing.T) {
	t.Parallel()

	m := synthesis.ModelFunc(func(_ context.Context, req synthesis.Request) (string, error) {
		if req.Task != synthesis.TaskPlanGeneration {
			return "", errors.New("unexpected task")
		}
		assert.NotNil(t, req.JSONSchema)
		return "```json\n" + `{"topic":"Tides","objective":"Explain tides","target_total_length":40,
"sections":[{"title":"Basics","key_points":["moon pull"],"target_length":40}]}` + "\n```", nil
	})

	stdout, _, err := execute(t, testApp(m), "plan", "--topic", "Tides", "--target-length", "40")
	require.NoError(t, err)
	var plan synthesis.GenerationPlan
	require.NoError(t, json.Unmarshal([]byte(stdout), &plan))
	assert.Equal(t, "Tides", plan.Topic)
	require.Len(t, plan.Sections, 1)
	assert.Equal(t, "Basics", plan.Sections[0].Title)
}

func TestPlan_MissingTopic(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, testApp(nil), "plan")
	assert.EqualError(t, err, "missing --topic")
}

func TestSplit(t *testing.T) {
	t.Parallel()

	in := writeTemp(t, t.TempDir(), "doc.txt", "one two three\n\nfour five six")
	stdout, _, err := execute(t, testApp(nil), "split", "--in", in, "--chunk-size", "3")
	require.NoError(t, err)
	assert.Contains(t, stdout, "script=latin chunks=2")
	assert.Contains(t, stdout, `#1 [0:13] length=3 sep="\n\n" "one two three"`)
	assert.Contains(t, stdout, `#2 [15:28] length=3 sep="" "four five six"`)
}

func TestRuns_NoJournal(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, testApp(nil), "runs")
	assert.ErrorContains(t, err, "no journal configured")
}
