package collect

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/envscan/internal/config"
	"github.com/TobiSchelling/envscan/internal/indexcache"
	"github.com/TobiSchelling/envscan/internal/logging"
	"github.com/TobiSchelling/envscan/internal/signal"
)

const (
	maxPerFeed  = 20
	defaultType = "rss"
)

// signalNamespace scopes the name-based UUIDs used as signal ids.
var signalNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://envscan/signals"))

// FeedResult is the outcome of parsing one feed.
type FeedResult struct {
	Feed    config.Feed
	Signals []signal.Signal
	Err     error
}

// Scanner polls RSS/Atom feeds and turns their entries into signals.
type Scanner struct {
	feeds          []config.Feed
	concurrency    int
	timeout        time.Duration
	daysBack       int
	fetchAbstracts bool
	client         *http.Client
	logger         *log.Logger
	now            func() time.Time
	parse          func(ctx context.Context, feedURL string) (*gofeed.Feed, error)
}

// NewScanner creates a scanner for the configured feeds. Entries published
// more than daysBack days ago are skipped.
func NewScanner(cfg *config.Config, daysBack int, logger *log.Logger) *Scanner {
	parser := gofeed.NewParser()
	concurrency := cfg.Sources.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scanner{
		feeds:          cfg.Sources.Feeds,
		concurrency:    concurrency,
		timeout:        cfg.Sources.Timeout,
		daysBack:       daysBack,
		fetchAbstracts: cfg.Sources.FetchAbstracts,
		client:         newHTTPClient(cfg.Sources.Timeout),
		logger:         logging.OrDiscard(logger),
		now:            time.Now,
		parse: func(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
			return parser.ParseURLWithContext(feedURL, ctx)
		},
	}
}

// ParseAll parses every feed with bounded concurrency. A failing feed is
// logged and reported in its FeedResult; it never stops the others.
func (s *Scanner) ParseAll(ctx context.Context) []FeedResult {
	results := make([]FeedResult, len(s.feeds))
	cutoff := s.now().AddDate(0, 0, -s.daysBack)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, fc := range s.feeds {
		if fc.Name == "" {
			fc.Name = extractSourceName(fc.URL)
		}
		if fc.Type == "" {
			fc.Type = defaultType
		}

		g.Go(func() error {
			sigs, err := s.parseFeed(gCtx, fc, cutoff)
			results[i] = FeedResult{Feed: fc, Signals: sigs, Err: err}
			if err != nil {
				s.logger.Warn("failed to parse feed", "url", fc.URL, "err", err)
				return nil
			}
			s.logger.Info("parsed feed", "source", fc.Name, "entries", len(sigs), "days", s.daysBack)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (s *Scanner) parseFeed(ctx context.Context, fc config.Feed, cutoff time.Time) ([]signal.Signal, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	feed, err := s.parse(ctx, fc.URL)
	if err != nil {
		return nil, err
	}

	collectedAt := s.now().Format(time.RFC3339)
	var out []signal.Signal
	for _, item := range feed.Items {
		if len(out) >= maxPerFeed {
			break
		}

		sig, ok := itemToSignal(item, fc, feed.Language)
		if !ok {
			continue
		}
		if !isWithinWindow(sig.Source.PublishedDate, cutoff) {
			continue
		}
		sig.CollectedAt = collectedAt
		out = append(out, sig)
	}
	return out, nil
}

// SignalID derives a stable id from the normalized entry URL, so the same
// article seen twice gets the same id.
func SignalID(rawURL string) string {
	key := indexcache.NormalizeURL(rawURL)
	if key == "" {
		key = rawURL
	}
	return "rss-" + uuid.NewSHA1(signalNamespace, []byte(key)).String()
}

func itemToSignal(item *gofeed.Item, fc config.Feed, language string) (signal.Signal, bool) {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return signal.Signal{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return signal.Signal{}, false
	}

	var abstract string
	if item.Description != "" {
		abstract = stripHTML(item.Description)
	} else if item.Content != "" {
		abstract = stripHTML(item.Content)
	}

	return signal.Signal{
		ID:    SignalID(itemURL),
		Title: title,
		Source: signal.Source{
			Name:          fc.Name,
			Type:          fc.Type,
			URL:           itemURL,
			PublishedDate: publishedDate(item),
		},
		Content: signal.Content{
			Abstract: abstract,
			Keywords: item.Categories,
			Language: language,
		},
	}, true
}

func publishedDate(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.Format("2006-01-02")
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.Format("2006-01-02")
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

func isWithinWindow(publishedDate string, cutoff time.Time) bool {
	if publishedDate == "" {
		return true // benefit of the doubt
	}
	pub, err := time.Parse("2006-01-02", publishedDate)
	if err != nil {
		return true
	}
	return !pub.Before(cutoff.Truncate(24 * time.Hour))
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(s)

	return strings.Join(strings.Fields(s), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds.", "export."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		host = parts[len(parts)-2]
	}
	if host == "" {
		return feedURL
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
