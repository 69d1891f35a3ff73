// Package pipeline orchestrates one weekly report run: fetch metrics,
// enrich article pages, build the trend, aggregate, compose and store.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dwg-inc/cncreport/internal/analytics"
	"github.com/dwg-inc/cncreport/internal/cache"
	"github.com/dwg-inc/cncreport/internal/collect"
	"github.com/dwg-inc/cncreport/internal/compose"
	"github.com/dwg-inc/cncreport/internal/config"
	"github.com/dwg-inc/cncreport/internal/database"
	"github.com/dwg-inc/cncreport/internal/period"
	"github.com/dwg-inc/cncreport/internal/report"
	"github.com/dwg-inc/cncreport/internal/scrape"
)

// topPagesLimit over-fetches ranked pages so the blocklist filter still
// leaves a full top table.
const topPagesLimit = 50

// MetricSource runs one analytics query. Satisfied by *analytics.Client.
type MetricSource interface {
	Run(ctx context.Context, q analytics.Query) []analytics.Row
}

// PageEnricher scrapes article metadata for a set of page paths.
// Satisfied by *scrape.Enricher.
type PageEnricher interface {
	Enrich(ctx context.Context, paths []string) *scrape.Result
}

// PublishedCounter counts articles published inside a date range.
// Satisfied by *collect.FeedCounter.
type PublishedCounter interface {
	CountPublished(ctx context.Context, start, end time.Time) (int, bool)
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	PeriodID string
	Steps    []StepResult
	Bundle   *report.Bundle
	Markdown string
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// Pipeline orchestrates the 6-step report generation pipeline.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	source   MetricSource
	enricher PageEnricher
	feed     PublishedCounter
	store    *cache.Store
	now      func() time.Time
}

// New creates a pipeline wired to the real analytics provider, scraper
// and feed counter.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		db:       db,
		source:   analytics.New(cfg.Analytics.PropertyID, cfg.Analytics.CredentialsFile, cfg.AnalyticsTimeout()),
		enricher: scrape.NewEnricher(cfg.Site.BaseURL, cfg.Scrape.Workers, cfg.ScrapeTimeout(), cfg.ScrapeBatchDeadline()),
		feed:     collect.NewFeedCounter(cfg.Site.FeedURL),
		store:    cache.New(cfg.CacheTTL()),
		now:      time.Now,
	}
}

// Generate returns the report bundle for a week, reusing a cached one
// when it is still fresh. The dashboard and CLI both come through here.
func (p *Pipeline) Generate(ctx context.Context, week period.Week) (*report.Bundle, error) {
	return p.store.GetOrCreate(week.ID(), func() (*report.Bundle, error) {
		r := p.Run(ctx, week)
		if err := r.Err(); err != nil {
			return nil, err
		}
		return r.Bundle, nil
	})
}

// Refresh drops the cached bundle and regenerates.
func (p *Pipeline) Refresh(ctx context.Context, week period.Week) (*report.Bundle, error) {
	p.store.Invalidate(week.ID())
	return p.Generate(ctx, week)
}

// Run executes the full 6-step pipeline for one week.
func (p *Pipeline) Run(ctx context.Context, week period.Week) *Result {
	r := &Result{PeriodID: week.ID()}
	started := p.now()

	// Step 1: Metrics
	log.Println("Step 1/6: Fetching analytics metrics...")
	in, empty := p.fetchMetrics(ctx, week)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Metrics",
		Summary: fmt.Sprintf("Ran %d queries, %d returned no rows", metricQueryCount, empty),
	})

	// Step 2: Enrich
	log.Println("Step 2/6: Enriching article pages...")
	paths := pagePaths(in.TopPages)
	enriched := p.enricher.Enrich(ctx, paths)
	in.Enrichment = enriched.Records
	in.EnrichFetched = enriched.Fetched
	in.EnrichFailed = enriched.Failed
	r.Steps = append(r.Steps, StepResult{
		Name:    "Enrich",
		Summary: fmt.Sprintf("Scraped %d pages, %d failed (defaults applied)", enriched.Fetched, enriched.Failed),
	})

	// Step 3: Trend
	log.Println("Step 3/6: Building weekly trend...")
	feedCount, feedOK := p.countFeed(ctx, week)
	in.Trend = p.fetchTrend(ctx, week, feedCount, feedOK)
	in.Published, in.PublishedEst = resolvePublished(feedCount, feedOK, in.Summary)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Trend",
		Summary: fmt.Sprintf("Collected %d trend weeks", len(in.Trend)),
	})

	// Step 4: Aggregate
	log.Println("Step 4/6: Aggregating report...")
	in.Week = week
	bundle := report.Aggregate(in, report.Options{
		TopN:      p.cfg.Report.TopN,
		Blocklist: p.cfg.Report.Blocklist,
		PenNames:  p.cfg.PenNames(),
	})
	r.Bundle = bundle
	r.Steps = append(r.Steps, StepResult{
		Name:    "Aggregate",
		Summary: fmt.Sprintf("%d ranked articles, %d writers", len(bundle.Top), len(bundle.Writers)),
	})

	// Step 5: Compose
	log.Println("Step 5/6: Composing markdown...")
	r.Markdown = compose.Render(bundle)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Compose",
		Summary: fmt.Sprintf("Rendered %d bytes of markdown", len(r.Markdown)),
	})

	// Step 6: Store
	log.Println("Step 6/6: Archiving report...")
	step := p.runStore(week, bundle, r.Markdown, enriched, p.now().Sub(started))
	r.Steps = append(r.Steps, step)

	return r
}

// metricQueryCount is the size of the step-1 fan-out.
const metricQueryCount = 11

// fetchMetrics runs every analytics query for the week concurrently under
// one shared deadline. Queries never error; an empty result set counts as
// a partial failure in the step summary.
func (p *Pipeline) fetchMetrics(ctx context.Context, week period.Week) (report.Input, int) {
	fanCtx, cancel := context.WithTimeout(ctx, p.cfg.AnalyticsTimeout())
	defer cancel()

	prior := week.Prior()
	cur := dateRange{week.StartDate(), week.EndDate()}
	prev := dateRange{prior.StartDate(), prior.EndDate()}

	var in report.Input
	jobs := []struct {
		dest *[]analytics.Row
		q    analytics.Query
	}{
		{&in.Summary, query(nil, []string{report.MetricUsers, report.MetricViews, report.MetricNewUsers}, cur)},
		{&in.Daily, query([]string{report.DimDate}, []string{report.MetricUsers, report.MetricViews}, cur)},
		{&in.TopPages, topPagesQuery(cur)},
		{&in.TrafficCur, query([]string{report.DimSource}, []string{report.MetricViews}, cur)},
		{&in.TrafficPrior, query([]string{report.DimSource}, []string{report.MetricViews}, prev)},
		{&in.RegionCur, query([]string{report.DimRegion}, []string{report.MetricUsers}, cur)},
		{&in.RegionPrior, query([]string{report.DimRegion}, []string{report.MetricUsers}, prev)},
		{&in.AgeCur, query([]string{report.DimAge}, []string{report.MetricUsers}, cur)},
		{&in.AgePrior, query([]string{report.DimAge}, []string{report.MetricUsers}, prev)},
		{&in.GenderCur, query([]string{report.DimGender}, []string{report.MetricUsers}, cur)},
		{&in.GenderPrior, query([]string{report.DimGender}, []string{report.MetricUsers}, prev)},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	empty := 0
	for _, j := range jobs {
		wg.Add(1)
		go func(dest *[]analytics.Row, q analytics.Query) {
			defer wg.Done()
			rows := p.source.Run(fanCtx, q)
			mu.Lock()
			*dest = rows
			if len(rows) == 0 {
				empty++
			}
			mu.Unlock()
		}(j.dest, j.q)
	}
	wg.Wait()

	return in, empty
}

type dateRange struct{ start, end string }

func query(dims, metrics []string, r dateRange) analytics.Query {
	return analytics.Query{
		Dimensions: dims,
		Metrics:    metrics,
		StartDate:  r.start,
		EndDate:    r.end,
	}
}

func topPagesQuery(r dateRange) analytics.Query {
	return analytics.Query{
		Dimensions: []string{report.DimTitle, report.DimPath},
		Metrics: []string{report.MetricViews, report.MetricUsers,
			report.MetricEngagement, report.MetricBounce},
		StartDate: r.start,
		EndDate:   r.end,
		OrderBy:   report.MetricViews,
		Limit:     topPagesLimit,
	}
}

// fetchTrend runs a summary query per trend week concurrently. Weeks the
// provider has no data for are dropped, never zero-filled. Published
// counts for past weeks are estimated from users; the current week
// carries the real feed count when one is available.
func (p *Pipeline) fetchTrend(ctx context.Context, current period.Week, feedCount int, feedOK bool) []report.TrendPoint {
	weeks := period.LastN(p.now(), p.cfg.Report.TrendWeeks)

	slots := make([]*report.TrendPoint, len(weeks))
	var wg sync.WaitGroup
	for i, w := range weeks {
		wg.Add(1)
		go func(i int, w period.Week) {
			defer wg.Done()
			rows := p.source.Run(ctx, query(nil,
				[]string{report.MetricUsers, report.MetricViews},
				dateRange{w.StartDate(), w.EndDate()}))
			if len(rows) == 0 {
				return
			}

			pt := report.TrendPoint{Year: w.Year, Week: w.Num, Label: w.Label()}
			pt.Users = rows[0].Metrics[report.MetricUsers].Int()
			pt.Views = rows[0].Metrics[report.MetricViews].Int()
			pt.Published = collect.EstimateCount(pt.Users)
			pt.PublishedEstimated = true
			if feedOK && w.Year == current.Year && w.Num == current.Num {
				pt.Published = feedCount
				pt.PublishedEstimated = false
			}
			slots[i] = &pt
		}(i, w)
	}
	wg.Wait()

	var points []report.TrendPoint
	for _, pt := range slots {
		if pt != nil {
			points = append(points, *pt)
		}
	}
	return points
}

// resolvePublished picks the headline published-article KPI: the real
// feed count when the feed was reachable, otherwise the estimator.
func resolvePublished(feedCount int, feedOK bool, summary []analytics.Row) (int, bool) {
	if feedOK {
		return feedCount, false
	}
	var users int64
	if len(summary) > 0 {
		users = summary[0].Metrics[report.MetricUsers].Int()
	}
	return collect.EstimateCount(users), true
}

func (p *Pipeline) countFeed(ctx context.Context, week period.Week) (int, bool) {
	if p.feed == nil {
		return 0, false
	}
	return p.feed.CountPublished(ctx, week.Start, week.End)
}

func (p *Pipeline) runStore(week period.Week, bundle *report.Bundle, markdown string, enriched *scrape.Result, elapsed time.Duration) StepResult {
	if p.db == nil {
		return StepResult{Name: "Store", Summary: "No archive configured, skipped"}
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		return StepResult{Name: "Store", Err: fmt.Errorf("encoding bundle: %w", err)}
	}

	if _, err := p.db.InsertReport(&database.Report{
		PeriodID:     week.ID(),
		WeekLabel:    week.Label(),
		DateRange:    week.DisplayRange(),
		BundleJSON:   string(raw),
		BodyMarkdown: markdown,
		ArticleCount: len(bundle.Top),
		WriterCount:  len(bundle.Writers),
	}); err != nil {
		return StepResult{Name: "Store", Err: fmt.Errorf("archiving report: %w", err)}
	}

	if err := p.db.LogRun(&database.RunEntry{
		PeriodID:     week.ID(),
		PagesFetched: enriched.Fetched,
		PagesFailed:  enriched.Failed,
		DurationMS:   elapsed.Milliseconds(),
	}); err != nil {
		return StepResult{Name: "Store", Err: fmt.Errorf("logging run: %w", err)}
	}

	return StepResult{
		Name:    "Store",
		Summary: fmt.Sprintf("Archived report %s (%d articles)", week.ID(), len(bundle.Top)),
	}
}

// pagePaths extracts the distinct page paths from the top-pages rows.
func pagePaths(rows []analytics.Row) []string {
	var paths []string
	for _, r := range rows {
		if p := r.Dims[report.DimPath]; p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
