package collect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/envscan/internal/signal"
)

const (
	minArticleText = 100
	maxAbstract    = 1000
	userAgent      = "envscan/1.0 (signal scanner)"
)

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// fillAbstracts fetches the article page of every item without an abstract
// and stores the first part of its readable text. After an HTTP error the
// rest of that domain is skipped. It returns how many items were filled.
func (s *Scanner) fillAbstracts(ctx context.Context, items []signal.Signal) int {
	filled := 0
	failedDomains := make(map[string]struct{})

	for i := range items {
		it := &items[i]
		if it.Content.Abstract != "" || it.Source.URL == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		domain := ""
		if u, err := url.Parse(it.Source.URL); err == nil {
			domain = strings.ToLower(u.Host)
		}
		if _, failed := failedDomains[domain]; failed {
			continue
		}

		text, err := s.fetchText(ctx, it.Source.URL)
		if err != nil {
			var he *httpError
			if errors.As(err, &he) && domain != "" {
				failedDomains[domain] = struct{}{}
				s.logger.Warn("article fetch failed, skipping domain", "url", it.Source.URL, "domain", domain, "status", he.code)
			} else {
				s.logger.Debug("article fetch failed", "url", it.Source.URL, "err", err)
			}
			continue
		}
		if text == "" {
			s.logger.Debug("no extractable text", "url", it.Source.URL)
			continue
		}

		it.Content.Abstract = truncateRunes(text, maxAbstract)
		filled++
	}

	s.logger.Info("abstracts fetched", "filled", filled, "failed_domains", len(failedDomains))
	return filled
}

func (s *Scanner) fetchText(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", articleURL, err)
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", articleURL, err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) <= minArticleText {
		return "", nil
	}
	return text, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
