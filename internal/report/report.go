// Package report turns raw analytics rows and scraped article metadata
// into the weekly report bundle: KPIs, trends, ranked articles and the
// category/writer/traffic/demographic rollups.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dwg-inc/cncreport/internal/analytics"
	"github.com/dwg-inc/cncreport/internal/period"
	"github.com/dwg-inc/cncreport/internal/scrape"
)

// Metric and dimension names used across queries.
const (
	MetricViews      = "screenPageViews"
	MetricUsers      = "activeUsers"
	MetricNewUsers   = "newUsers"
	MetricEngagement = "userEngagementDuration"
	MetricBounce     = "bounceRate"

	DimDate   = "date"
	DimTitle  = "pageTitle"
	DimPath   = "pagePath"
	DimSource = "sessionSource"
	DimRegion = "region"
	DimAge    = "userAgeBracket"
	DimGender = "userGender"
)

// View trajectory ratios. These are estimates standing in for hourly
// instrumentation the site does not have; everything derived from them is
// flagged Estimated.
const (
	ratio12h    = 0.40
	ratio24h    = 0.70
	ratio48h    = 1.00
	ratioScroll = 0.72
)

// ArticleRow is one ranked article: the analytics row joined with its
// scraped metadata.
type ArticleRow struct {
	Rank          int     `json:"rank"`
	Title         string  `json:"title"`
	Path          string  `json:"path"`
	Author        string  `json:"author"`
	Category      string  `json:"category"`
	Subcategory   string  `json:"subcategory"`
	Views         int64   `json:"views"`
	Visitors      int64   `json:"visitors"`
	Engagement    float64 `json:"engagement_seconds"`
	BounceRate    float64 `json:"bounce_rate"`
	Likes         int     `json:"likes"`
	Comments      int     `json:"comments"`
	PublishDate   string  `json:"publish_date"`
	DateEstimated bool    `json:"date_estimated"`
}

// Trajectory carries the estimated view build-up of a ranked article.
type Trajectory struct {
	Rank      int    `json:"rank"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Views     int64  `json:"views"`
	H12       int64  `json:"h12"`
	H24       int64  `json:"h24"`
	H48       int64  `json:"h48"`
	Scroll90  int64  `json:"scroll90"`
	Estimated bool   `json:"estimated"`
}

// CategoryRollup aggregates ranked articles per category (Subcategory
// empty) or per category+subcategory pair.
type CategoryRollup struct {
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Articles    int     `json:"articles"`
	Views       int64   `json:"views"`
	AvgViews    int64   `json:"avg_views"`
	Share       float64 `json:"share"` // percent of articles, one decimal
}

// WriterRollup aggregates articles per author.
type WriterRollup struct {
	Rank     int    `json:"rank"`
	Name     string `json:"name"`
	PenName  string `json:"pen_name,omitempty"`
	Articles int    `json:"articles"`
	Views    int64  `json:"views"`
	Likes    int64  `json:"likes"`
	Comments int64  `json:"comments"`
	AvgViews int64  `json:"avg_views"`
}

// DailyPoint is one day of the selected week.
type DailyPoint struct {
	Date  string `json:"date"` // MM-DD
	Users int64  `json:"users"`
	Views int64  `json:"views"`
}

// TrendPoint is one week of the rolling trend.
type TrendPoint struct {
	Year               int    `json:"year"`
	Week               int    `json:"week"`
	Label              string `json:"label"`
	Users              int64  `json:"users"`
	Views              int64  `json:"views"`
	Published          int    `json:"published"`
	PublishedEstimated bool   `json:"published_estimated"`
}

// SortKey orders trend points chronologically across year boundaries.
func (p TrendPoint) SortKey() int { return p.Year*100 + p.Week }

// TrafficShare compares one inflow bucket against the prior week.
type TrafficShare struct {
	Source       string  `json:"source"`
	Views        int64   `json:"views"`
	CurrentShare float64 `json:"current_share"`
	PriorShare   float64 `json:"prior_share"`
	Delta        float64 `json:"delta"` // percentage points
}

// DemoShare compares one demographic bucket against the prior week.
type DemoShare struct {
	Bucket       string  `json:"bucket"`
	CurrentUsers int64   `json:"current_users"`
	PriorUsers   int64   `json:"prior_users"`
	CurrentShare float64 `json:"current_share"`
	PriorShare   float64 `json:"prior_share"`
	Delta        float64 `json:"delta"`
}

// KPI is the weekly headline summary.
type KPI struct {
	Published          int     `json:"published"`
	PublishedEstimated bool    `json:"published_estimated"`
	Views              int64   `json:"views"`
	Users              int64   `json:"users"`
	NewUsers           int64   `json:"new_users"`
	ViewsPerUser       float64 `json:"views_per_user"`
	NewVisitorRatio    float64 `json:"new_visitor_ratio"`
	SearchInflowRatio  float64 `json:"search_inflow_ratio"`
}

// Bundle is the complete derived report for one week.
type Bundle struct {
	WeekID        string           `json:"week_id"`
	WeekLabel     string           `json:"week_label"`
	DateRange     string           `json:"date_range"`
	GeneratedAt   time.Time        `json:"generated_at"`
	KPI           KPI              `json:"kpi"`
	Daily         []DailyPoint     `json:"daily"`
	Weekly        []TrendPoint     `json:"weekly"`
	Top           []ArticleRow     `json:"top"`
	Trajectories  []Trajectory     `json:"trajectories"`
	Categories    []CategoryRollup `json:"categories"`
	Subcategories []CategoryRollup `json:"subcategories"`
	Writers       []WriterRollup   `json:"writers"`
	PenWriters    []WriterRollup   `json:"pen_writers"`
	Traffic       []TrafficShare   `json:"traffic"`
	Regions       []DemoShare      `json:"regions"`
	Ages          []DemoShare      `json:"ages"`
	Genders       []DemoShare      `json:"genders"`
	EnrichFetched int              `json:"enrich_fetched"`
	EnrichFailed  int              `json:"enrich_failed"`
}

// Input gathers everything Aggregate joins. Every slice may be empty;
// empty input degenerates to empty tables, never an error.
type Input struct {
	Week          period.Week
	Summary       []analytics.Row // no dims; users/views/newUsers
	Daily         []analytics.Row // date dim
	TopPages      []analytics.Row // pageTitle+pagePath dims
	TrafficCur    []analytics.Row // sessionSource dim
	TrafficPrior  []analytics.Row
	RegionCur     []analytics.Row
	RegionPrior   []analytics.Row
	AgeCur        []analytics.Row
	AgePrior      []analytics.Row
	GenderCur     []analytics.Row
	GenderPrior   []analytics.Row
	Enrichment    map[string]scrape.Record
	EnrichFetched int
	EnrichFailed  int
	Trend         []TrendPoint
	Published     int
	PublishedEst  bool
}

// Options tunes aggregation; zero values get sensible defaults.
type Options struct {
	TopN      int
	Blocklist []string
	PenNames  map[string]string
}

// Aggregate computes the full report bundle. Pure transform, no I/O.
func Aggregate(in Input, opts Options) *Bundle {
	if opts.TopN <= 0 {
		opts.TopN = 10
	}

	b := &Bundle{
		WeekID:        in.Week.ID(),
		WeekLabel:     in.Week.Label(),
		DateRange:     in.Week.DisplayRange(),
		GeneratedAt:   time.Now(),
		EnrichFetched: in.EnrichFetched,
		EnrichFailed:  in.EnrichFailed,
	}

	rows := joinArticles(in.TopPages, in.Enrichment)
	rows = excludeBlocked(rows, opts.Blocklist)
	ranked := rank(rows, opts.TopN)

	b.Top = ranked
	b.Trajectories = trajectories(ranked)
	// Rollups group the ranked articles only, not every fetched page.
	b.Categories = rollupCategories(ranked, false)
	b.Subcategories = rollupCategories(ranked, true)
	b.Writers = rollupWriters(ranked, opts.PenNames)
	b.PenWriters = penView(b.Writers)

	b.Daily = dailyPoints(in.Daily)
	b.Weekly = sortedTrend(in.Trend)
	b.Traffic = trafficShares(in.TrafficCur, in.TrafficPrior)
	b.Regions = demoShares(in.RegionCur, in.RegionPrior, DimRegion, mapRegion)
	b.Ages = demoShares(in.AgeCur, in.AgePrior, DimAge, mapAge)
	b.Genders = demoShares(in.GenderCur, in.GenderPrior, DimGender, mapGender)

	b.KPI = buildKPI(in, b.Traffic)
	return b
}

func buildKPI(in Input, traffic []TrafficShare) KPI {
	k := KPI{
		Published:          in.Published,
		PublishedEstimated: in.PublishedEst,
	}
	if len(in.Summary) > 0 {
		row := in.Summary[0]
		k.Users = row.Metrics[MetricUsers].Int()
		k.Views = row.Metrics[MetricViews].Int()
		k.NewUsers = row.Metrics[MetricNewUsers].Int()
	}
	if k.Users > 0 {
		k.ViewsPerUser = round1(float64(k.Views) / float64(k.Users))
		k.NewVisitorRatio = round1(float64(k.NewUsers) / float64(k.Users) * 100)
	}
	k.SearchInflowRatio = searchInflow(traffic)
	return k
}

// joinArticles joins metric rows with enrichment records by page path.
// A path with no record (enrichment skipped or keyed differently) gets
// the fallback record so every row stays well formed.
func joinArticles(pages []analytics.Row, enrichment map[string]scrape.Record) []ArticleRow {
	var rows []ArticleRow
	for _, r := range pages {
		path := r.Dims[DimPath]
		if path == "" {
			continue
		}
		rec, ok := enrichment[path]
		if !ok {
			rec = scrape.FallbackRecord(time.Now())
		}

		title := r.Dims[DimTitle]
		if title == "" || title == "(not set)" {
			title = rec.Title
		}

		rows = append(rows, ArticleRow{
			Title:         title,
			Path:          path,
			Author:        rec.Author,
			Category:      rec.Category,
			Subcategory:   rec.Subcategory,
			Views:         r.Metrics[MetricViews].Int(),
			Visitors:      r.Metrics[MetricUsers].Int(),
			Engagement:    r.Metrics[MetricEngagement].Float(),
			BounceRate:    r.Metrics[MetricBounce].Float(),
			Likes:         rec.Likes,
			Comments:      rec.Comments,
			PublishDate:   rec.PublishDate,
			DateEstimated: rec.DateEstimated,
		})
	}
	return rows
}

// rank sorts by views descending (stable, so response order breaks ties)
// and keeps the top n with 1-based ranks.
func rank(rows []ArticleRow, n int) []ArticleRow {
	ranked := make([]ArticleRow, len(rows))
	copy(ranked, rows)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Views > ranked[j].Views
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

func trajectories(ranked []ArticleRow) []Trajectory {
	var out []Trajectory
	for _, r := range ranked {
		out = append(out, Trajectory{
			Rank:      r.Rank,
			Title:     r.Title,
			Author:    r.Author,
			Views:     r.Views,
			H12:       int64(float64(r.Views) * ratio12h),
			H24:       int64(float64(r.Views) * ratio24h),
			H48:       int64(float64(r.Views) * ratio48h),
			Scroll90:  int64(float64(r.Views) * ratioScroll),
			Estimated: true,
		})
	}
	return out
}

func dailyPoints(rows []analytics.Row) []DailyPoint {
	var points []DailyPoint
	for _, r := range rows {
		raw := r.Dims[DimDate] // YYYYMMDD
		label := raw
		if t, err := time.Parse("20060102", raw); err == nil {
			label = t.Format("01-02")
		}
		points = append(points, DailyPoint{
			Date:  label,
			Users: r.Metrics[MetricUsers].Int(),
			Views: r.Metrics[MetricViews].Int(),
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// sortedTrend orders trend points by (year, week) ascending. Label order
// breaks across year boundaries and beyond week 9, so it is never used.
func sortedTrend(points []TrendPoint) []TrendPoint {
	out := make([]TrendPoint, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortKey() < out[j].SortKey() })
	return out
}

// FormatDuration renders engagement seconds as "M분 S초".
func FormatDuration(seconds float64) string {
	total := int64(seconds)
	if total < 60 {
		return fmt.Sprintf("%d초", total)
	}
	return fmt.Sprintf("%d분 %d초", total/60, total%60)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
