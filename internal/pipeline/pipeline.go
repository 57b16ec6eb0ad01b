package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/TobiSchelling/envscan/internal/collect"
	"github.com/TobiSchelling/envscan/internal/config"
	"github.com/TobiSchelling/envscan/internal/database"
	"github.com/TobiSchelling/envscan/internal/embeddings"
	"github.com/TobiSchelling/envscan/internal/impact"
	"github.com/TobiSchelling/envscan/internal/indexcache"
	"github.com/TobiSchelling/envscan/internal/logging"
	"github.com/TobiSchelling/envscan/internal/store"
)

const totalSteps = 9

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
	Fatal   bool
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID    string
	ScanDate string
	Steps    []StepResult
	Merge    store.MergeResult
	Snapshot string
	Corpus   *store.Corpus
	Dedup    *embeddings.Deduplicated
	Impact   *impact.Matrix
}

// Err returns the error of the fatal step that stopped the run, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Fatal && s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Options tune one run.
type Options struct {
	// ScanFile is recorded in the ledger.
	ScanFile   string
	NoSnapshot bool
}

// Pipeline merges one scan batch into the corpus and refreshes the derived
// caches. Loading, snapshotting, merging and saving the corpus are fatal
// when they fail; the derived steps after the save only log and report.
type Pipeline struct {
	cfg    *config.Config
	db     *database.DB
	logger *log.Logger
	now    func() time.Time
}

// New creates a new pipeline. db may be nil to skip the run ledger.
func New(cfg *config.Config, db *database.DB, logger *log.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, logger: logging.OrDiscard(logger), now: time.Now}
}

type run struct {
	*Pipeline
	res  *Result
	scan *collect.ScanFile
	opts Options
}

// Run executes the update pipeline for one scan file.
func (p *Pipeline) Run(ctx context.Context, scan *collect.ScanFile, opts Options) *Result {
	scanDate, err := database.NormalizeScanDate(scan.ScanMetadata.Date)
	if err != nil {
		p.logger.Warn("scan date not usable, using today", "date", scan.ScanMetadata.Date, "err", err)
		scanDate = database.GetToday()
	}
	r := &run{Pipeline: p, res: &Result{ScanDate: scanDate}, scan: scan, opts: opts}

	if p.db != nil {
		id, err := p.db.StartRun(scanDate, opts.ScanFile)
		if err != nil {
			p.logger.Warn("run ledger unavailable", "err", err)
		}
		r.res.RunID = id
	}

	steps := []func(context.Context) StepResult{
		r.load,
		r.snapshot,
		r.check,
		r.merge,
		r.save,
		r.updateIndex,
		r.dedupEmbeddings,
		r.compressImpact,
	}
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			r.res.Steps = append(r.res.Steps, StepResult{Name: "Cancelled", Err: err, Fatal: true})
			break
		}
		p.logger.Info(fmt.Sprintf("Step %d/%d", i+1, totalSteps))
		s := step(ctx)
		r.res.Steps = append(r.res.Steps, s)
		if s.Err != nil {
			p.logger.Error("step failed", "step", s.Name, "err", s.Err)
			if s.Fatal {
				break
			}
		}
	}

	p.logger.Info(fmt.Sprintf("Step %d/%d", totalSteps, totalSteps))
	r.res.Steps = append(r.res.Steps, r.recordLedger())
	return r.res
}

func (r *run) load(context.Context) StepResult {
	c, err := store.Load(r.cfg.CorpusPath())
	if err != nil {
		return StepResult{Name: "Load", Err: err, Fatal: true}
	}
	r.res.Corpus = c
	if c.Len() == 0 {
		return StepResult{Name: "Load", Summary: "Starting a new corpus"}
	}
	return StepResult{Name: "Load", Summary: fmt.Sprintf("Loaded %d signals", c.Len())}
}

func (r *run) snapshot(context.Context) StepResult {
	if r.opts.NoSnapshot || !r.cfg.Snapshots.Enabled {
		return StepResult{Name: "Snapshot", Summary: "Skipped"}
	}
	path, err := store.TakeSnapshot(r.cfg.CorpusPath(), r.res.ScanDate)
	if err != nil {
		return StepResult{Name: "Snapshot", Err: err, Fatal: true}
	}
	if path == "" {
		return StepResult{Name: "Snapshot", Summary: "No corpus file yet"}
	}
	r.res.Snapshot = path
	return StepResult{Name: "Snapshot", Summary: "Pre-update backup: " + path}
}

func (r *run) openCache() *indexcache.Cache {
	return indexcache.Open(r.cfg.IndexCachePath(), r.logger)
}

func (r *run) check(context.Context) StepResult {
	cache := r.openCache()
	if cache.Metadata().TotalSignals == 0 && r.res.Corpus.Len() > 0 {
		if err := cache.Rebuild(r.res.Corpus.Signals); err != nil {
			return StepResult{Name: "Check", Err: fmt.Errorf("rebuilding index cache: %w", err)}
		}
	}

	window := r.res.Corpus.RecentWindow(r.cfg.Dedup.LookbackDays, r.now())
	counts := make(map[indexcache.VerdictKind]int)
	for _, v := range cache.CheckRecent(r.scan.Items, window.Signals, window.Indexes, indexcache.DefaultThresholds) {
		counts[v.Kind]++
		if v.Flagged() {
			r.logger.Debug("possible duplicate", "signal", v.SignalID, "kind", v.Kind, "matches", v.MatchedID, "stage", v.Stage, "score", v.Score)
		}
	}
	return StepResult{
		Name: "Check",
		Summary: fmt.Sprintf("%d incoming: %d new, %d duplicate URL, %d duplicate title, %d near duplicate, %d uncertain, %d invalid",
			len(r.scan.Items), counts[indexcache.VerdictNew], counts[indexcache.VerdictDuplicateURL],
			counts[indexcache.VerdictDuplicateTitle], counts[indexcache.VerdictNearDuplicate],
			counts[indexcache.VerdictUncertain], counts[indexcache.VerdictInvalid]),
	}
}

func (r *run) merge(context.Context) StepResult {
	m := r.res.Corpus.Merge(r.scan.Items, r.res.ScanDate)
	r.res.Merge = m
	if m.Invalid > 0 {
		r.logger.Warn("signals without id skipped", "count", m.Invalid)
	}
	return StepResult{
		Name:    "Merge",
		Summary: fmt.Sprintf("Added %d new signals, prevented %d duplicates", len(m.Added), len(m.Duplicates)),
	}
}

func (r *run) save(context.Context) StepResult {
	if err := r.res.Corpus.Save(r.cfg.CorpusPath()); err != nil {
		return StepResult{Name: "Save", Err: err, Fatal: true}
	}
	return StepResult{
		Name:    "Save",
		Summary: fmt.Sprintf("Corpus saved: %d signals", r.res.Corpus.TotalSignals),
	}
}

func (r *run) updateIndex(context.Context) StepResult {
	cache := r.openCache()
	added, err := cache.AddSignals(r.res.Merge.Added)
	if err != nil {
		return StepResult{Name: "Index", Err: err}
	}
	return StepResult{
		Name:    "Index",
		Summary: fmt.Sprintf("Indexed %d new URLs (%d tracked)", added, cache.Metadata().TotalSignals),
	}
}

func (r *run) dedupEmbeddings(context.Context) StepResult {
	embs, order := embeddings.FromSignals(r.res.Corpus.Signals)
	d := embeddings.Deduplicate(embs, order, r.cfg.Dedup.SimilarityThreshold)
	r.res.Dedup = d
	if err := d.Save(r.cfg.EmbeddingsPath()); err != nil {
		return StepResult{Name: "Embeddings", Err: err}
	}
	return StepResult{
		Name: "Embeddings",
		Summary: fmt.Sprintf("%d embeddings, %d unique (%s)",
			d.Stats.TotalEmbeddings, d.Stats.UniqueEmbeddings, d.Stats.MemoryReduction),
	}
}

func (r *run) compressImpact(context.Context) StepResult {
	m := impact.CompressWith(impact.FromSignals(r.res.Corpus.Signals), r.cfg.Dedup.InfluenceDeadband)
	r.res.Impact = m
	if err := m.Save(r.cfg.ImpactPath()); err != nil {
		return StepResult{Name: "Impact", Err: err}
	}
	st := m.Stats()
	return StepResult{
		Name:    "Impact",
		Summary: fmt.Sprintf("%d influence edges, sparsity %.4f (%s)", st.NonZeroCells, st.Sparsity, st.MemoryReduction),
	}
}

func (r *run) recordLedger() StepResult {
	if r.db == nil || r.res.RunID == "" {
		return StepResult{Name: "Ledger", Summary: "Skipped"}
	}

	out := database.RunOutcome{
		Incoming:     len(r.scan.Items),
		Added:        len(r.res.Merge.Added),
		Duplicates:   len(r.res.Merge.Duplicates),
		Invalid:      r.res.Merge.Invalid,
		SnapshotPath: r.res.Snapshot,
	}
	if r.res.Corpus != nil {
		out.TotalSignals = r.res.Corpus.Len()
	}
	if r.res.Dedup != nil {
		out.UniqueEmbeddings = r.res.Dedup.Stats.UniqueEmbeddings
	}
	if r.res.Impact != nil {
		out.InfluenceNNZ = r.res.Impact.NNZ()
	}

	var errs []error
	for i, s := range r.res.Steps {
		if err := r.db.RecordStep(r.res.RunID, i+1, s.Name, s.Summary, s.Err); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.db.FinishRun(r.res.RunID, out, r.res.Err()); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return StepResult{Name: "Ledger", Err: err}
	}
	return StepResult{Name: "Ledger", Summary: "Run " + r.res.RunID + " recorded"}
}
