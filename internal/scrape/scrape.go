// Package scrape enriches analytics page paths with per-article metadata
// (author, likes, comments, category, publish date) scraped from the live
// site. A page that cannot be fetched or parsed gets the fallback record;
// enrichment as a whole never fails.
package scrape

import (
	"context"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Record is the scraped metadata for one article page.
type Record struct {
	Author        string
	Likes         int
	Comments      int
	Category      string
	Subcategory   string
	Title         string // recovered page title, may be empty
	PublishDate   string // YYYY-MM-DD
	DateEstimated bool   // true when the date is a placeholder, not parsed
}

// Default field values used whenever extraction comes up empty.
const (
	DefaultAuthor      = "관리자"
	UnknownAuthor      = "미상"
	DefaultCategory    = "뉴스"
	DefaultSubcategory = "이슈"
)

// FallbackRecord is the record substituted on any retrieval or parse failure.
func FallbackRecord(now time.Time) Record {
	return Record{
		Author:        DefaultAuthor,
		Category:      DefaultCategory,
		Subcategory:   DefaultSubcategory,
		PublishDate:   now.Format("2006-01-02"),
		DateEstimated: true,
	}
}

// Result collects one enrichment fan-out. Records is keyed by page path;
// callers join by key and must not assume any ordering. Failed counts pages
// that got the fallback record, so partial failure stays visible.
type Result struct {
	Records map[string]Record
	Fetched int
	Failed  int
}

// Enricher fetches article pages concurrently and extracts metadata.
type Enricher struct {
	baseURL       string
	workers       int
	batchDeadline time.Duration
	client        *http.Client
	now           func() time.Time
}

// NewEnricher creates an enricher for pages under baseURL. pageTimeout
// bounds each individual fetch; batchDeadline bounds the whole fan-out.
func NewEnricher(baseURL string, workers int, pageTimeout, batchDeadline time.Duration) *Enricher {
	if workers <= 0 {
		workers = 12
	}
	if pageTimeout == 0 {
		pageTimeout = 3 * time.Second
	}
	if batchDeadline == 0 {
		batchDeadline = time.Minute
	}
	return &Enricher{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		workers:       workers,
		batchDeadline: batchDeadline,
		client:        &http.Client{Timeout: pageTimeout},
		now:           time.Now,
	}
}

// Enrich fetches every distinct path and returns one record per path.
// Failures are isolated per page and counted, never propagated.
func (e *Enricher) Enrich(ctx context.Context, paths []string) *Result {
	result := &Result{Records: make(map[string]Record, len(paths))}

	var distinct []string
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		distinct = append(distinct, p)
	}
	if len(distinct) == 0 {
		return result
	}

	// One deadline governs the whole batch, not just single pages.
	ctx, cancel := context.WithTimeout(ctx, e.batchDeadline)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, e.workers)
	)

	for _, path := range distinct {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rec, err := e.scrapePage(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Records[path] = FallbackRecord(e.now())
				result.Failed++
				return
			}
			result.Records[path] = rec
			result.Fetched++
		}(path)
	}
	wg.Wait()

	if result.Failed > 0 {
		log.Printf("enrichment complete: %d fetched, %d defaulted", result.Fetched, result.Failed)
	}
	return result
}

func (e *Enricher) scrapePage(ctx context.Context, path string) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return Record{}, err
	}
	req.Header.Set("User-Agent", "cncreport/1.0 (weekly report)")

	resp, err := e.client.Do(req)
	if err != nil {
		return Record{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Record{}, &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Record{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return Record{}, err
	}

	rec := extract(doc, path, e.now())
	rec.Title = recoverTitle(body, e.baseURL+path)
	return rec, nil
}

// recoverTitle pulls the article title out of the raw markup. Used when the
// analytics pageTitle dimension reports "(not set)".
func recoverTitle(body []byte, pageURL string) string {
	article, err := readability.FromReader(strings.NewReader(string(body)), mustParseURL(pageURL))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.Title)
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}

// jitterDays returns a pseudo-random 1-7 day offset for placeholder dates.
func jitterDays() int {
	return 1 + rand.Intn(7)
}
