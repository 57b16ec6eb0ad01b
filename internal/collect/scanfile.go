package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/TobiSchelling/envscan/internal/fsutil"
	"github.com/TobiSchelling/envscan/internal/signal"
)

// ScanMetadata describes one scan run.
type ScanMetadata struct {
	Date        string         `json:"date"`
	CollectedAt string         `json:"collected_at,omitempty"`
	TotalItems  int            `json:"total_items"`
	Sources     map[string]int `json:"sources,omitempty"`
	FailedFeeds []string       `json:"failed_feeds,omitempty"`
}

// ScanFile is the hand-off document between scanners and the corpus.
type ScanFile struct {
	ScanMetadata ScanMetadata    `json:"scan_metadata"`
	Items        []signal.Signal `json:"items"`
}

// Scan parses all feeds and assembles a scan file dated today. Items with
// an id already seen in this scan are dropped. It fails only when every
// feed failed.
func (s *Scanner) Scan(ctx context.Context) (*ScanFile, error) {
	now := s.now()
	sf := &ScanFile{
		ScanMetadata: ScanMetadata{
			Date:        now.Format("2006-01-02"),
			CollectedAt: now.Format(time.RFC3339),
			Sources:     make(map[string]int),
		},
		Items: []signal.Signal{},
	}

	results := s.ParseAll(ctx)
	seen := make(map[string]struct{})
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			sf.ScanMetadata.FailedFeeds = append(sf.ScanMetadata.FailedFeeds, r.Feed.URL)
			errs = append(errs, fmt.Errorf("%s: %w", r.Feed.URL, r.Err))
			continue
		}
		for _, sig := range r.Signals {
			if _, dup := seen[sig.ID]; dup {
				continue
			}
			seen[sig.ID] = struct{}{}
			sf.Items = append(sf.Items, sig)
			sf.ScanMetadata.Sources[sig.SourceName()]++
		}
	}
	sf.ScanMetadata.TotalItems = len(sf.Items)

	if len(results) > 0 && len(errs) == len(results) {
		return nil, fmt.Errorf("all feeds failed: %w", errors.Join(errs...))
	}
	if s.fetchAbstracts {
		s.fillAbstracts(ctx, sf.Items)
	}
	s.logger.Info("scan complete", "items", sf.ScanMetadata.TotalItems, "failed_feeds", len(errs))
	return sf, nil
}

// DefaultScanFileName returns daily-scan-<date>.json.
func DefaultScanFileName(date string) string {
	return "daily-scan-" + date + ".json"
}

// WriteScanFile writes sf atomically.
func WriteScanFile(path string, sf *ScanFile) error {
	return fsutil.WriteJSON(path, sf)
}

// ReadScanFile reads a scan file produced by any scanner.
func ReadScanFile(path string) (*ScanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scan file: %w", err)
	}
	var sf ScanFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing scan file %s: %w", path, err)
	}
	return &sf, nil
}
