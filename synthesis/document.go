package synthesis

import (
	"fmt"
	"strings"
	"unicode"
)

// MarkdownOptions controls RenderMarkdown.
type MarkdownOptions struct {
	// IncludeKeyPoints lists the planned key points under each section heading.
	IncludeKeyPoints bool
	// IncludeReport appends the QC findings as an appendix.
	IncludeReport bool
}

// RenderMarkdown renders a generation result as one markdown document with an anchor per
// section.
func RenderMarkdown(res GenerationResult, opts MarkdownOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escapeMarkdownInline(res.Plan.Topic))
	if obj := strings.TrimSpace(res.Plan.Objective); obj != "" {
		fmt.Fprintf(&b, "> %s\n\n", escapeMarkdownInline(obj))
	}

	for i, s := range res.Sections {
		anchor := fmt.Sprintf("section-%d-%s", i+1, sanitizeAnchor(s.Title))
		fmt.Fprintf(&b, "<a id=\"%s\"></a>\n", strings.TrimSuffix(anchor, "-"))
		fmt.Fprintf(&b, "## %s\n\n", escapeMarkdownInline(s.Title))
		if opts.IncludeKeyPoints && i < len(res.Plan.Sections) && len(res.Plan.Sections[i].KeyPoints) > 0 {
			for _, kp := range res.Plan.Sections[i].KeyPoints {
				fmt.Fprintf(&b, "- %s\n", escapeMarkdownInline(kp))
			}
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(s.Text))
		b.WriteString("\n\n")
	}

	if opts.IncludeReport {
		renderReport(&b, res)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderReport(b *strings.Builder, res GenerationResult) {
	r := res.Report
	b.WriteString("---\n\n## Quality report\n\n")
	fmt.Fprintf(b, "- run_id: `%s`\n", res.RunID)
	fmt.Fprintf(b, "- consistency_pass_applied: `%t`\n", r.ConsistencyPassApplied)
	fmt.Fprintf(b, "- consistency_pass_used_fallback: `%t`\n\n", r.ConsistencyPassUsedFallback)

	if len(r.SectionScores) > 0 {
		b.WriteString("| # | Section | Score | Attempts |\n|---|---|---|---|\n")
		for _, s := range r.SectionScores {
			fmt.Fprintf(b, "| %d | %s | %.2f | %d |\n", s.Index+1, escapeTableCell(s.Title), s.Score, s.Attempts)
		}
		b.WriteString("\n")
	}

	groups := []struct {
		title string
		items []string
	}{
		{"Coverage missing", r.CoverageMissing},
		{"Key points missing", r.KeyPointsMissing},
		{"Terminology", r.TerminologyIssues},
		{"Repetition", r.RepetitionIssues},
		{"Drift", r.DriftIssues},
		{"Numeric facts", r.NumericFactIssues},
		{"Warnings", r.SectionWarnings},
	}
	for _, g := range groups {
		if len(g.items) == 0 {
			continue
		}
		fmt.Fprintf(b, "### %s\n", g.title)
		for _, it := range g.items {
			fmt.Fprintf(b, "- %s\n", escapeMarkdownInline(it))
		}
		b.WriteString("\n")
	}
}

func sanitizeAnchor(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "section"
	}
	var out strings.Builder
	out.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			out.WriteRune(r)
		} else {
			out.WriteByte('-')
		}
	}
	return strings.Trim(out.String(), "-")
}

func escapeMarkdownInline(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func escapeTableCell(s string) string {
	return strings.ReplaceAll(escapeMarkdownInline(s), "|", `\|`)
}
