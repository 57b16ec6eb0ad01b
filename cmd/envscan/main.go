package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/envscan/internal/cluster"
	"github.com/TobiSchelling/envscan/internal/collect"
	"github.com/TobiSchelling/envscan/internal/config"
	"github.com/TobiSchelling/envscan/internal/database"
	"github.com/TobiSchelling/envscan/internal/embeddings"
	"github.com/TobiSchelling/envscan/internal/fsutil"
	"github.com/TobiSchelling/envscan/internal/impact"
	"github.com/TobiSchelling/envscan/internal/indexcache"
	"github.com/TobiSchelling/envscan/internal/logging"
	"github.com/TobiSchelling/envscan/internal/pipeline"
	"github.com/TobiSchelling/envscan/internal/report"
	"github.com/TobiSchelling/envscan/internal/server"
	"github.com/TobiSchelling/envscan/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *log.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "envscan",
	Short:   "Signal corpus maintenance for environmental scanning",
	Long:    "envscan merges daily scan results into a signal corpus and keeps its duplicate indexes, embedding store and influence matrix compact.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger = logging.New(os.Stderr, "info", verbose)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger = logging.New(os.Stderr, cfg.Logging.Level, verbose)
		logger.Debug("config loaded", "path", path, "data_dir", cfg.GetDataDir())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(embeddingsCmd)
	rootCmd.AddCommand(impactCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("envscan", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/envscan/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, storage paths and dedup thresholds.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus, cache and ledger status",
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus, err := store.Load(cfg.CorpusPath())
		if err != nil {
			return err
		}

		fmt.Printf("Today: %s\n\n", database.GetToday())
		fmt.Println("Corpus:")
		fmt.Printf("  Path: %s\n", cfg.CorpusPath())
		fmt.Printf("  Signals: %d\n", corpus.Len())
		fmt.Printf("  Scans: %d\n", corpus.Statistics.TotalScans)
		fmt.Printf("  Duplicates prevented: %d\n", corpus.Statistics.TotalDuplicatesPrevented)
		if corpus.LatestScanDate != nil {
			fmt.Printf("  Latest scan: %s\n", database.FormatDateDisplay(*corpus.LatestScanDate))
		}

		cache := indexcache.Open(cfg.IndexCachePath(), logger)
		idx := cache.Indexes()
		fmt.Println("\nIndex cache:")
		fmt.Printf("  URLs: %d\n", len(idx.ByURL))
		fmt.Printf("  Titles: %d\n", len(idx.ByTitle))
		fmt.Printf("  Entities: %d\n", len(idx.ByEntities))
		fmt.Printf("  Size: %d bytes\n", cache.Size())

		d := embeddings.Load(cfg.EmbeddingsPath(), cfg.Dedup.SimilarityThreshold, logger)
		fmt.Println("\nEmbeddings:")
		fmt.Printf("  Stored: %d (%d unique)\n", d.Len(), len(d.Unique))

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		fmt.Println("\nRuns:")
		fmt.Printf("  Ledger: %s\n", db.Path())
		fmt.Printf("  Total: %d (%d succeeded, %d failed)\n", stats.TotalRuns, stats.SucceededRuns, stats.FailedRuns)
		return nil
	},
}

// --- collect command ---

var (
	collectOut      string
	collectDaysBack int
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Poll the configured feeds and write a scan file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Println("Collecting signals from feeds...")
		scanner := collect.NewScanner(cfg, collectDaysBack, logger)
		sf, err := scanner.Scan(ctx)
		if err != nil {
			return err
		}

		out := collectOut
		if out == "" {
			out = filepath.Join(cfg.RawDir(), collect.DefaultScanFileName(sf.ScanMetadata.Date))
		}
		if err := collect.WriteScanFile(out, sf); err != nil {
			return err
		}

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Items: %d\n", sf.ScanMetadata.TotalItems)
		fmt.Printf("  Failed feeds: %d\n", len(sf.ScanMetadata.FailedFeeds))
		fmt.Printf("  Scan file: %s\n", out)

		if len(sf.ScanMetadata.Sources) > 0 {
			fmt.Println("\nItems by source:")
			printCounts(sf.ScanMetadata.Sources)
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVarP(&collectOut, "out", "o", "", "Scan file to write (default <raw_dir>/daily-scan-<date>.json)")
	collectCmd.Flags().IntVar(&collectDaysBack, "days-back", 1, "Skip entries published earlier than this many days ago")
}

// --- update command ---

var noSnapshot bool

var updateCmd = &cobra.Command{
	Use:   "update <scan-file>",
	Short: "Merge a scan file into the corpus: snapshot -> merge -> save -> index -> embeddings -> impact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sf, err := collect.ReadScanFile(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			logger.Warn("run ledger unavailable, continuing without it", "err", err)
			db = nil
		} else {
			defer db.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		pipe := pipeline.New(cfg, db, logger)
		result := pipe.Run(ctx, sf, pipeline.Options{ScanFile: args[0], NoSnapshot: noSnapshot})

		fmt.Printf("Scan date: %s\n", result.ScanDate)
		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if err := result.Err(); err != nil {
			return err
		}
		fmt.Println("\nUpdate complete! Run 'envscan report' to view corpus statistics.")
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&noSnapshot, "no-snapshot", false, "Skip the pre-update corpus snapshot")
}

// --- remove command ---

var removeNoSnapshot bool

var removeCmd = &cobra.Command{
	Use:   "remove <signal-id>",
	Short: "Remove one signal from the corpus and its index entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := pipeline.New(cfg, nil, logger).Remove(args[0], !removeNoSnapshot)
		if res == nil {
			return err
		}
		if res.Snapshot != "" {
			fmt.Printf("Snapshot: %s\n", res.Snapshot)
		}
		fmt.Printf("Removed %s (%s)\n", res.Removed.ID, res.Removed.Title)
		if err != nil {
			return err
		}
		fmt.Println("Run 'envscan embeddings dedup' and 'envscan impact compress' to refresh the other caches.")
		return nil
	},
}

func init() {
	removeCmd.Flags().BoolVar(&removeNoSnapshot, "no-snapshot", false, "Skip the pre-removal snapshot")
}

// --- snapshots commands ---

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List and restore pre-update corpus snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps, err := store.ListSnapshots(cfg.CorpusPath())
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots yet. One is taken before every update.")
			return nil
		}
		for _, s := range snaps {
			fmt.Printf("  %s  %8d bytes  %s\n", s.Date, s.Size, s.ModTime.Format(time.DateTime))
		}
		return nil
	},
}

var (
	restoreDate   string
	restoreLatest bool
)

var snapshotsRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the corpus with a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			corpus *store.Corpus
			date   = restoreDate
			err    error
		)
		switch {
		case restoreLatest:
			corpus, date, err = store.RestoreLatest(cfg.CorpusPath())
		case restoreDate != "":
			corpus, err = store.Restore(cfg.CorpusPath(), restoreDate)
		default:
			return errors.New("pass --date or --latest")
		}
		if err != nil {
			return err
		}

		// The derived caches describe the replaced corpus.
		cache := indexcache.Open(cfg.IndexCachePath(), logger)
		if err := cache.Rebuild(corpus.Signals); err != nil {
			return fmt.Errorf("rebuilding index cache: %w", err)
		}

		fmt.Printf("Restored snapshot %s: %d signals\n", date, corpus.Len())
		fmt.Println("Run 'envscan embeddings dedup' and 'envscan impact compress' to refresh the other caches.")
		return nil
	},
}

func init() {
	snapshotsRestoreCmd.Flags().StringVar(&restoreDate, "date", "", "Snapshot date (YYYY-MM-DD)")
	snapshotsRestoreCmd.Flags().BoolVar(&restoreLatest, "latest", false, "Restore the newest snapshot")
	snapshotsRestoreCmd.MarkFlagsMutuallyExclusive("date", "latest")

	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsRestoreCmd)
}

// --- index commands ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the duplicate index cache",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index cache from the corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus, err := store.Load(cfg.CorpusPath())
		if err != nil {
			return err
		}
		cache := indexcache.Open(cfg.IndexCachePath(), logger)
		if err := cache.Rebuild(corpus.Signals); err != nil {
			return err
		}
		idx := cache.Indexes()
		fmt.Printf("Indexed %d signals: %d URLs, %d titles, %d entities\n",
			corpus.Len(), len(idx.ByURL), len(idx.ByTitle), len(idx.ByEntities))
		return nil
	},
}

var indexCheckCmd = &cobra.Command{
	Use:   "check <scan-file>",
	Short: "Report which items of a scan file are already known",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sf, err := collect.ReadScanFile(args[0])
		if err != nil {
			return err
		}
		corpus, err := store.Load(cfg.CorpusPath())
		if err != nil {
			return err
		}
		window := corpus.RecentWindow(cfg.Dedup.LookbackDays, time.Now())
		cache := indexcache.Open(cfg.IndexCachePath(), logger)

		counts := make(map[string]int)
		for _, v := range cache.CheckRecent(sf.Items, window.Signals, window.Indexes, indexcache.DefaultThresholds) {
			counts[string(v.Kind)]++
			switch {
			case v.Duplicate():
				fmt.Printf("  %-16s %s -> %s\n", v.Kind, v.SignalID, v.MatchedID)
			case v.Flagged():
				fmt.Printf("  %-16s %s -> %s (%s %.2f)\n", v.Kind, v.SignalID, v.MatchedID, v.Stage, v.Score)
			}
		}
		fmt.Printf("\n%d items checked:\n", len(sf.Items))
		printCounts(counts)
		return nil
	},
}

var indexClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the index cache file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache := indexcache.Open(cfg.IndexCachePath(), logger)
		size := cache.Size()
		if err := cache.Clear(); err != nil {
			return err
		}
		fmt.Printf("Cleared %s (%d bytes). The next update rebuilds it.\n", cache.Path(), size)
		return nil
	},
}

func init() {
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexCheckCmd)
	indexCmd.AddCommand(indexClearCmd)
}

// --- embeddings commands ---

var embeddingsCmd = &cobra.Command{
	Use:   "embeddings",
	Short: "Manage the deduplicated embedding store",
}

var dedupThreshold float64

var embeddingsDedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Deduplicate the embeddings of the whole corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus, err := store.Load(cfg.CorpusPath())
		if err != nil {
			return err
		}
		threshold := cfg.Dedup.SimilarityThreshold
		if cmd.Flags().Changed("threshold") {
			threshold = dedupThreshold
		}

		embs, order := embeddings.FromSignals(corpus.Signals)
		d := embeddings.Deduplicate(embs, order, threshold)
		if err := d.Save(cfg.EmbeddingsPath()); err != nil {
			return err
		}

		s := d.Stats
		fmt.Printf("Embeddings: %d\n", s.TotalEmbeddings)
		fmt.Printf("  Unique: %d\n", s.UniqueEmbeddings)
		fmt.Printf("  References: %d (%.1f%%)\n", s.DuplicateEmbeddings, s.DeduplicationRate*100)
		fmt.Printf("  Clusters with duplicates: %d\n", s.ClustersFound)
		fmt.Printf("  Memory reduction: %s\n", s.MemoryReduction)
		return nil
	},
}

var embeddingsGetCmd = &cobra.Command{
	Use:   "get <signal-id>",
	Short: "Show the stored vector for a signal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := embeddings.Load(cfg.EmbeddingsPath(), cfg.Dedup.SimilarityThreshold, logger)
		vec, ok := d.Get(args[0])
		if !ok {
			return fmt.Errorf("no embedding for %s", args[0])
		}
		rep, _ := d.Representative(args[0])
		if rep != args[0] {
			fmt.Printf("Shared with %s\n", rep)
		}
		if members := d.Members(rep); len(members) > 1 {
			fmt.Printf("Cluster: %s\n", strings.Join(members, ", "))
		}
		fmt.Printf("Dimensions: %d\n", len(vec))
		fmt.Println(vec)
		return nil
	},
}

func init() {
	embeddingsDedupCmd.Flags().Float64Var(&dedupThreshold, "threshold", embeddings.DefaultThreshold, "Cosine similarity threshold (default from config)")

	embeddingsCmd.AddCommand(embeddingsDedupCmd)
	embeddingsCmd.AddCommand(embeddingsGetCmd)
}

// --- impact commands ---

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "Manage the compressed influence matrix",
}

var impactCompressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Compress the influences of the whole corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus, err := store.Load(cfg.CorpusPath())
		if err != nil {
			return err
		}
		m := impact.CompressWith(impact.FromSignals(corpus.Signals), cfg.Dedup.InfluenceDeadband)
		if err := m.Save(cfg.ImpactPath()); err != nil {
			return err
		}

		st := m.Stats()
		fmt.Printf("Signals: %d\n", len(m.SignalIDs()))
		fmt.Printf("  Edges: %d of %d cells\n", st.NonZeroCells, st.TotalCells)
		fmt.Printf("  Sparsity: %.4f\n", st.Sparsity)
		fmt.Printf("  Memory reduction: %s\n", st.MemoryReduction)
		return nil
	},
}

var queryThreshold float64

var impactQueryCmd = &cobra.Command{
	Use:   "query <signal-id>",
	Short: "List the influences a signal exerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := impact.Load(cfg.ImpactPath())
		if err != nil {
			return fmt.Errorf("%w (run 'envscan impact compress')", err)
		}
		score, ok := m.ImpactScore(args[0])
		if !ok {
			return fmt.Errorf("signal %s is not in the matrix", args[0])
		}

		fmt.Printf("Impact score: %.2f\n", score)
		infl := m.QueryInfluences(args[0], queryThreshold)
		if len(infl) == 0 {
			fmt.Printf("No influences at or above %.2f\n", queryThreshold)
		}
		for _, inf := range infl {
			fmt.Printf("  %-12s %s (%.2f)\n", inf.InfluenceType, inf.TargetSignal, inf.InfluenceScore)
		}

		if from := m.InfluencedBy(args[0]); len(from) > 0 {
			fmt.Printf("Influenced by: %s\n", strings.Join(from, ", "))
		}
		return nil
	},
}

func init() {
	impactQueryCmd.Flags().Float64Var(&queryThreshold, "threshold", 0.5, "Minimum absolute influence score")

	impactCmd.AddCommand(impactCompressCmd)
	impactCmd.AddCommand(impactQueryCmd)
}

// --- recent command ---

var recentDays int

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the recent working window of the corpus and its themes",
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus, err := store.Load(cfg.CorpusPath())
		if err != nil {
			return err
		}
		days := cfg.Dedup.RecentWindowDays
		if recentDays > 0 {
			days = recentDays
		}

		w := corpus.RecentWindow(days, time.Now())
		fmt.Printf("Window: %d days (since %s)\n", w.Days, w.Cutoff.Format(time.DateOnly))
		fmt.Printf("  Signals: %d of %d (%.1f%%)\n", len(w.Signals), w.TotalStored, w.FilterRatio*100)
		fmt.Printf("  Indexed URLs: %d\n", len(w.Indexes.ByURL))
		fmt.Printf("  Indexed titles: %d\n", len(w.Indexes.ByTitle))

		d := embeddings.Load(cfg.EmbeddingsPath(), cfg.Dedup.SimilarityThreshold, logger)
		res := cluster.Group(w.Signals, d, cluster.DefaultDistanceThreshold)
		if len(res.Themes) == 0 {
			return nil
		}
		fmt.Println("\nThemes:")
		for _, t := range res.Themes {
			fmt.Printf("  %s: %d signals\n", t.Label, len(t.Signals))
		}
		return nil
	},
}

func init() {
	recentCmd.Flags().IntVar(&recentDays, "days", 0, "Window size in days (default from config)")
}

// --- report command ---

var (
	reportHTML bool
	reportOut  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render corpus statistics as markdown or HTML",
	RunE: func(cmd *cobra.Command, args []string) error {
		var db *database.DB
		if opened, err := openDB(); err != nil {
			logger.Warn("run ledger unavailable", "err", err)
		} else {
			db = opened
			defer db.Close()
		}

		in, err := report.Gather(cfg, db, logger, time.Now())
		if err != nil {
			return err
		}

		out := report.Markdown(in)
		if reportHTML {
			if out, err = report.HTML(in); err != nil {
				return err
			}
		}

		if reportOut == "" {
			fmt.Print(out)
			return nil
		}
		if err := fsutil.WriteFile(reportOut, []byte(out)); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", reportOut)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportHTML, "html", false, "Render HTML instead of markdown")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write the report to a file")
}

// --- runs command ---

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent update runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded. Merge a scan with: envscan update <scan-file>")
			return nil
		}

		for _, r := range runs {
			fmt.Printf("  %s  %s  %-9s  +%d new, %d dup, %d total\n",
				r.ID[:8], r.ScanDate, r.Status, r.Added, r.Duplicates, r.TotalSignals)
			if r.Error != nil {
				fmt.Printf("        %s\n", *r.Error)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local read-only dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Printf("Starting server at http://localhost:%d\n", servePort)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cfg, db, logger, servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func printCounts(counts map[string]int) {
	type kv struct {
		key string
		val int
	}
	var sorted []kv
	for k, v := range counts {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].val != sorted[j].val {
			return sorted[i].val > sorted[j].val
		}
		return sorted[i].key < sorted[j].key
	})
	for _, s := range sorted {
		fmt.Printf("  %s: %d\n", s.key, s.val)
	}
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.LedgerPath(), logger)
}
