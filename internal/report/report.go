package report

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/envscan/internal/cluster"
	"github.com/TobiSchelling/envscan/internal/config"
	"github.com/TobiSchelling/envscan/internal/database"
	"github.com/TobiSchelling/envscan/internal/embeddings"
	"github.com/TobiSchelling/envscan/internal/impact"
	"github.com/TobiSchelling/envscan/internal/logging"
	"github.com/TobiSchelling/envscan/internal/store"
)

const (
	topSources    = 10
	topImpact     = 5
	topThemes     = 8
	themeTitles   = 3
	influenceMin  = 0.5
	sectionBreak  = "\n\n---\n\n"
	unknownMarker = "n/a"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Input is everything a report can draw from. Only Corpus is required.
type Input struct {
	Corpus     *store.Corpus
	Embeddings *embeddings.Deduplicated
	Impact     *impact.Matrix
	Ledger     *database.Stats
	Window     *store.Window
	Themes     *cluster.Result
}

// Gather loads everything the report shows from the configured files. Only
// the corpus is required; a missing or broken derived file is logged and
// left out. db may be nil.
func Gather(cfg *config.Config, db *database.DB, logger *log.Logger, now time.Time) (Input, error) {
	logger = logging.OrDiscard(logger)

	corpus, err := store.Load(cfg.CorpusPath())
	if err != nil {
		return Input{}, err
	}
	in := Input{
		Corpus:     corpus,
		Embeddings: embeddings.Load(cfg.EmbeddingsPath(), cfg.Dedup.SimilarityThreshold, logger),
	}

	if m, err := impact.Load(cfg.ImpactPath()); err != nil {
		logger.Warn("influence matrix unavailable", "err", err)
	} else {
		in.Impact = m
	}

	if db != nil {
		if stats, err := db.GetStats(); err != nil {
			logger.Warn("run ledger unavailable", "err", err)
		} else {
			in.Ledger = stats
		}
	}

	w := corpus.RecentWindow(cfg.Dedup.RecentWindowDays, now)
	themes := cluster.Group(w.Signals, in.Embeddings, cluster.DefaultDistanceThreshold)
	in.Window = &w
	in.Themes = &themes
	return in, nil
}

// Markdown renders the report body.
func Markdown(in Input) string {
	sections := []string{corpusSection(in.Corpus)}
	if s := categorySection(in.Corpus); s != "" {
		sections = append(sections, s)
	}
	if s := sourceSection(in.Corpus); s != "" {
		sections = append(sections, s)
	}
	if in.Embeddings != nil {
		sections = append(sections, embeddingSection(in.Embeddings))
	}
	if in.Impact != nil {
		sections = append(sections, impactSection(in.Impact, in.Corpus))
	}
	if in.Window != nil {
		sections = append(sections, themeSection(in.Window, in.Themes, in.Corpus))
	}
	if in.Ledger != nil {
		sections = append(sections, ledgerSection(in.Ledger))
	}
	return "# Signal corpus report\n\n" + strings.Join(sections, sectionBreak) + "\n"
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Fragment renders the report body as HTML for embedding in another page.
func Fragment(in Input) (template.HTML, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(in)), &body); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return template.HTML(body.String()), nil //nolint: gosec
}

// HTML renders the report as a complete HTML document.
func HTML(in Input) (string, error) {
	body, err := Fragment(in)
	if err != nil {
		return "", err
	}

	var out bytes.Buffer
	err = page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{
		Title: "Signal corpus report",
		Body:  body,
	})
	if err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}
	return out.String(), nil
}

func deref(s *string) string {
	if s == nil {
		return unknownMarker
	}
	return *s
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func corpusSection(c *store.Corpus) string {
	var b strings.Builder
	b.WriteString("## Corpus\n\n")
	fmt.Fprintf(&b, "- **Total signals:** %d\n", c.Len())
	fmt.Fprintf(&b, "- **First scan:** %s\n", deref(c.FirstScanDate))
	fmt.Fprintf(&b, "- **Latest scan:** %s\n", deref(c.LatestScanDate))
	fmt.Fprintf(&b, "- **Total scans:** %d\n", c.Statistics.TotalScans)
	fmt.Fprintf(&b, "- **Duplicates prevented:** %d", c.Statistics.TotalDuplicatesPrevented)
	return b.String()
}

type count struct {
	key string
	n   int
}

func sortedCounts(m map[string]int, byCount bool) []count {
	out := make([]count, 0, len(m))
	for k, n := range m {
		out = append(out, count{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if byCount && out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}

func categorySection(c *store.Corpus) string {
	if len(c.Statistics.Categories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Categories\n\n| Category | Signals | Share |\n|---|---:|---:|\n")
	for _, e := range sortedCounts(c.Statistics.Categories, false) {
		fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", e.key, e.n, pct(e.n, c.Len()))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func sourceSection(c *store.Corpus) string {
	if len(c.Statistics.Sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Top sources\n\n| Source | Signals | Share |\n|---|---:|---:|\n")
	for i, e := range sortedCounts(c.Statistics.Sources, true) {
		if i == topSources {
			break
		}
		fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", e.key, e.n, pct(e.n, c.Len()))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func embeddingSection(d *embeddings.Deduplicated) string {
	s := d.Stats
	var b strings.Builder
	b.WriteString("## Embeddings\n\n")
	fmt.Fprintf(&b, "- **Threshold:** %.2f\n", d.Threshold)
	fmt.Fprintf(&b, "- **Embeddings:** %d (%d unique, %d references)\n", s.TotalEmbeddings, s.UniqueEmbeddings, s.DuplicateEmbeddings)
	fmt.Fprintf(&b, "- **Clusters with duplicates:** %d\n", s.ClustersFound)
	fmt.Fprintf(&b, "- **Memory reduction:** %s", s.MemoryReduction)
	return b.String()
}

func impactSection(m *impact.Matrix, c *store.Corpus) string {
	st := m.Stats()
	var b strings.Builder
	b.WriteString("## Influence matrix\n\n")
	fmt.Fprintf(&b, "- **Signals:** %d\n", len(m.SignalIDs()))
	fmt.Fprintf(&b, "- **Edges:** %d of %d cells\n", st.NonZeroCells, st.TotalCells)
	fmt.Fprintf(&b, "- **Sparsity:** %.4f\n", st.Sparsity)
	fmt.Fprintf(&b, "- **Compression:** %s", st.MemoryReduction)

	top := topByImpact(m)
	if len(top) == 0 {
		return b.String()
	}
	b.WriteString("\n\n### Highest impact\n")
	for _, id := range top {
		score, _ := m.ImpactScore(id)
		fmt.Fprintf(&b, "\n- **%s** (%.2f)", title(c, id), score)
		for _, inf := range m.QueryInfluences(id, influenceMin) {
			fmt.Fprintf(&b, "\n  - %s %s (%.2f)", inf.InfluenceType, title(c, inf.TargetSignal), inf.InfluenceScore)
		}
	}
	return b.String()
}

func topByImpact(m *impact.Matrix) []string {
	var ids []string
	for _, id := range m.SignalIDs() {
		if s, _ := m.ImpactScore(id); s > 0 {
			ids = append(ids, id)
		}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		a, _ := m.ImpactScore(ids[i])
		b, _ := m.ImpactScore(ids[j])
		return a > b
	})
	if len(ids) > topImpact {
		ids = ids[:topImpact]
	}
	return ids
}

func title(c *store.Corpus, id string) string {
	if s, ok := c.Signal(id); ok && s.Title != "" {
		return s.Title
	}
	return id
}

func themeSection(w *store.Window, r *cluster.Result, c *store.Corpus) string {
	var b strings.Builder
	b.WriteString("## Recent themes\n\n")
	fmt.Fprintf(&b, "- **Window:** %d days since %s\n", w.Days, w.Cutoff.Format(time.DateOnly))
	fmt.Fprintf(&b, "- **Signals in window:** %d of %d (%.1f%%)", len(w.Signals), w.TotalStored, w.FilterRatio*100)
	if r == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "\n- **Themes:** %d (%d signals on their own, %d without embedding)", len(r.Themes), len(r.Singletons), r.Skipped)

	for i, t := range r.Themes {
		if i == topThemes {
			break
		}
		fmt.Fprintf(&b, "\n\n### %s (%d)\n", t.Label, len(t.Signals))
		for j, id := range t.Signals {
			if j == themeTitles {
				fmt.Fprintf(&b, "\n- and %d more", len(t.Signals)-themeTitles)
				break
			}
			fmt.Fprintf(&b, "\n- %s", title(c, id))
		}
	}
	return b.String()
}

func ledgerSection(s *database.Stats) string {
	var b strings.Builder
	b.WriteString("## Runs\n\n")
	fmt.Fprintf(&b, "- **Runs:** %d (%d succeeded, %d failed)\n", s.TotalRuns, s.SucceededRuns, s.FailedRuns)
	fmt.Fprintf(&b, "- **Signals added:** %d\n", s.TotalAdded)
	fmt.Fprintf(&b, "- **Duplicates skipped:** %d\n", s.TotalDuplicates)
	last := unknownMarker
	if s.LastScanDate != nil {
		last = database.FormatDateDisplay(*s.LastScanDate)
	}
	fmt.Fprintf(&b, "- **Last successful scan:** %s", last)
	return b.String()
}
