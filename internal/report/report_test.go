package report

import (
	"math"
	"testing"
	"time"

	"github.com/dwg-inc/cncreport/internal/analytics"
	"github.com/dwg-inc/cncreport/internal/period"
	"github.com/dwg-inc/cncreport/internal/scrape"
)

func pageRow(title, path string, views int64) analytics.Row {
	return analytics.Row{
		Dims: map[string]string{DimTitle: title, DimPath: path},
		Metrics: map[string]analytics.Value{
			MetricViews:      analytics.IntValue(views),
			MetricUsers:      analytics.IntValue(views / 2),
			MetricEngagement: analytics.FloatValue(float64(views) * 1.5),
			MetricBounce:     analytics.FloatValue(25.0),
		},
	}
}

func sourceRow(source string, views int64) analytics.Row {
	return analytics.Row{
		Dims:    map[string]string{DimSource: source},
		Metrics: map[string]analytics.Value{MetricViews: analytics.IntValue(views)},
	}
}

func dimRow(dim, value string, users int64) analytics.Row {
	return analytics.Row{
		Dims:    map[string]string{dim: value},
		Metrics: map[string]analytics.Value{MetricUsers: analytics.IntValue(users)},
	}
}

func testWeek() period.Week {
	return period.LastN(time.Date(2026, time.August, 26, 0, 0, 0, 0, time.UTC), 1)[0]
}

func record(author, cat, subcat string, likes, comments int) scrape.Record {
	return scrape.Record{
		Author: author, Category: cat, Subcategory: subcat,
		Likes: likes, Comments: comments, PublishDate: "2026-08-20",
	}
}

func TestRankingWithAllDefaultEnrichment(t *testing.T) {
	// All enrichment fetches failed: the join must still rank by views
	// and attach the fallback record everywhere.
	in := Input{
		Week: testWeek(),
		TopPages: []analytics.Row{
			pageRow("기사 A", "/a", 500),
			pageRow("기사 B", "/b", 300),
			pageRow("기사 C", "/c", 800),
		},
		Enrichment: map[string]scrape.Record{
			"/a": scrape.FallbackRecord(time.Now()),
			"/b": scrape.FallbackRecord(time.Now()),
			"/c": scrape.FallbackRecord(time.Now()),
		},
		EnrichFailed: 3,
	}
	b := Aggregate(in, Options{})

	if len(b.Top) != 3 {
		t.Fatalf("expected 3 ranked rows, got %d", len(b.Top))
	}
	wantViews := []int64{800, 500, 300}
	for i, want := range wantViews {
		row := b.Top[i]
		if row.Views != want {
			t.Errorf("rank %d: expected %d views, got %d", i+1, want, row.Views)
		}
		if row.Rank != i+1 {
			t.Errorf("expected rank %d, got %d", i+1, row.Rank)
		}
		if row.Author != scrape.DefaultAuthor || row.Category != scrape.DefaultCategory ||
			row.Subcategory != scrape.DefaultSubcategory || row.Likes != 0 || row.Comments != 0 {
			t.Errorf("rank %d: expected fallback record, got %+v", i+1, row)
		}
	}
}

func TestExclusionFilter(t *testing.T) {
	in := Input{
		Week: testWeek(),
		TopPages: []analytics.Row{
			pageRow("[쿡앤셰프] 공지", "/notice", 99999),
			pageRow("진짜 기사", "/real", 100),
			pageRow("팀 소개", "/team", 88888),
		},
		Enrichment: map[string]scrape.Record{
			"/notice": record("관리자", "뉴스", "이슈", 0, 0),
			"/real":   record("김철호", "맛집", "리뷰", 5, 2),
			"/team":   record("Cook&Chef 편집팀", "뉴스", "이슈", 0, 0),
		},
	}
	b := Aggregate(in, Options{Blocklist: []string{"cook&chef", "쿡앤셰프"}})

	if len(b.Top) != 1 {
		t.Fatalf("expected only the real article, got %d rows", len(b.Top))
	}
	if b.Top[0].Path != "/real" || b.Top[0].Rank != 1 {
		t.Errorf("unexpected top row %+v", b.Top[0])
	}

	// Rollups also run on the filtered set.
	for _, w := range b.Writers {
		if w.Name == "Cook&Chef 편집팀" {
			t.Error("blocked author leaked into writer rollup")
		}
	}
}

func TestCategorySharesSumTo100(t *testing.T) {
	in := Input{
		Week: testWeek(),
		TopPages: []analytics.Row{
			pageRow("a", "/a", 100), pageRow("b", "/b", 200), pageRow("c", "/c", 300),
			pageRow("d", "/d", 400), pageRow("e", "/e", 500), pageRow("f", "/f", 600),
			pageRow("g", "/g", 700),
		},
		Enrichment: map[string]scrape.Record{
			"/a": record("w1", "뉴스", "이슈", 0, 0),
			"/b": record("w1", "뉴스", "이슈", 0, 0),
			"/c": record("w2", "맛집", "리뷰", 0, 0),
			"/d": record("w2", "맛집", "탐방", 0, 0),
			"/e": record("w3", "외식", "트렌드", 0, 0),
			"/f": record("w3", "외식", "트렌드", 0, 0),
			"/g": record("w3", "외식", "트렌드", 0, 0),
		},
	}
	b := Aggregate(in, Options{})

	var sum float64
	for _, c := range b.Categories {
		sum += c.Share
	}
	if math.Abs(sum-100.0) > 0.1 {
		t.Errorf("category shares sum to %.2f, want 100±0.1", sum)
	}

	var subSum float64
	for _, c := range b.Subcategories {
		subSum += c.Share
	}
	if math.Abs(subSum-100.0) > 0.1 {
		t.Errorf("subcategory shares sum to %.2f, want 100±0.1", subSum)
	}
}

func TestRollupsCoverOnlyRankedArticles(t *testing.T) {
	// Four pages but a top table of three: the lowest-viewed page must
	// not leak into any rollup.
	in := Input{
		Week: testWeek(),
		TopPages: []analytics.Row{
			pageRow("a", "/a", 400),
			pageRow("b", "/b", 300),
			pageRow("c", "/c", 200),
			pageRow("d", "/d", 100),
		},
		Enrichment: map[string]scrape.Record{
			"/a": record("w1", "뉴스", "이슈", 0, 0),
			"/b": record("w1", "뉴스", "이슈", 0, 0),
			"/c": record("w2", "맛집", "리뷰", 0, 0),
			"/d": record("w3", "외식", "트렌드", 0, 0),
		},
	}
	b := Aggregate(in, Options{TopN: 3})

	var total int
	var sum float64
	for _, c := range b.Categories {
		if c.Category == "외식" {
			t.Errorf("unranked article leaked into category rollup: %+v", c)
		}
		total += c.Articles
		sum += c.Share
	}
	if total != 3 {
		t.Errorf("expected rollups over the 3 ranked articles, got %d", total)
	}
	if math.Abs(sum-100.0) > 0.1 {
		t.Errorf("ranked category shares sum to %.2f, want 100±0.1", sum)
	}

	for _, w := range b.Writers {
		if w.Name == "w3" {
			t.Errorf("unranked writer leaked into rollup: %+v", w)
		}
	}
}

func TestCategoryRollupAverages(t *testing.T) {
	rows := []ArticleRow{
		{Category: "뉴스", Views: 100},
		{Category: "뉴스", Views: 101},
		{Category: "맛집", Views: 999},
	}
	rollups := rollupCategories(rows, false)
	if len(rollups) != 2 {
		t.Fatalf("expected 2 rollups, got %d", len(rollups))
	}
	news := rollups[0]
	if news.Category != "뉴스" || news.Articles != 2 || news.Views != 201 {
		t.Errorf("unexpected news rollup %+v", news)
	}
	if news.AvgViews != 100 { // integer truncation, not rounding
		t.Errorf("expected truncated average 100, got %d", news.AvgViews)
	}
}

func TestWriterRollupTieBreakIsEncounterOrder(t *testing.T) {
	rows := []ArticleRow{
		{Author: "A", Views: 40},
		{Author: "B", Views: 250},
		{Author: "A", Views: 60},
		{Author: "C", Views: 100},
		{Author: "C", Views: 100},
		{Author: "C", Views: 50},
	}
	writers := rollupWriters(rows, nil)

	// B and C both total 250; B was encountered first and wins rank 1.
	if writers[0].Name != "B" || writers[0].Rank != 1 {
		t.Errorf("expected B at rank 1, got %+v", writers[0])
	}
	if writers[1].Name != "C" || writers[1].Rank != 2 {
		t.Errorf("expected C at rank 2, got %+v", writers[1])
	}
	if writers[2].Name != "A" || writers[2].Rank != 3 {
		t.Errorf("expected A at rank 3, got %+v", writers[2])
	}

	seen := make(map[int]bool)
	for _, w := range writers {
		if seen[w.Rank] {
			t.Errorf("duplicate rank %d", w.Rank)
		}
		seen[w.Rank] = true
	}

	if c := writers[1]; c.Articles != 3 || c.AvgViews != 83 {
		t.Errorf("expected C 3 articles avg 83, got %+v", c)
	}
}

func TestPenViewExcludesUnmappedWriters(t *testing.T) {
	rows := []ArticleRow{
		{Author: "이경엽", Views: 100},
		{Author: "무명씨", Views: 500},
		{Author: "조용수", Views: 300},
	}
	pens := map[string]string{"이경엽": "맛객", "조용수": "Chef J"}
	writers := rollupWriters(rows, pens)
	penWriters := penView(writers)

	if len(penWriters) != 2 {
		t.Fatalf("expected 2 pen writers, got %d", len(penWriters))
	}
	if penWriters[0].PenName != "Chef J" || penWriters[0].Rank != 1 {
		t.Errorf("expected Chef J re-ranked first, got %+v", penWriters[0])
	}
	if penWriters[1].PenName != "맛객" || penWriters[1].Rank != 2 {
		t.Errorf("expected 맛객 second, got %+v", penWriters[1])
	}
}

func TestTrendSortsAcrossYearBoundary(t *testing.T) {
	in := Input{
		Week: testWeek(),
		Trend: []TrendPoint{
			{Year: 2025, Week: 2, Label: "2주차"},
			{Year: 2024, Week: 52, Label: "52주차"},
			{Year: 2025, Week: 1, Label: "1주차"},
		},
	}
	b := Aggregate(in, Options{})

	want := []string{"52주차", "1주차", "2주차"}
	for i, label := range want {
		if b.Weekly[i].Label != label {
			t.Errorf("position %d: expected %s, got %s", i, label, b.Weekly[i].Label)
		}
	}
	for i := 1; i < len(b.Weekly); i++ {
		if b.Weekly[i].SortKey() < b.Weekly[i-1].SortKey() {
			t.Error("trend not non-decreasing by (year, week)")
		}
	}
}

func TestEmptyInputDegenerates(t *testing.T) {
	b := Aggregate(Input{Week: testWeek()}, Options{})
	if len(b.Top) != 0 || len(b.Categories) != 0 || len(b.Writers) != 0 ||
		len(b.Traffic) != 0 || len(b.Weekly) != 0 {
		t.Errorf("expected empty tables for empty input, got %+v", b)
	}
	if b.KPI.Views != 0 || b.KPI.ViewsPerUser != 0 {
		t.Errorf("expected zero KPIs, got %+v", b.KPI)
	}
}

func TestMapSource(t *testing.T) {
	tests := []struct{ in, want string }{
		{"m.search.naver.com", "네이버"},
		{"naver", "네이버"},
		{"daum.net", "다음"},
		{"facebook.com", "페이스북"},
		{"(direct)", "직접"},
		{"google.co.kr", "구글"},
		{"youtube.com", "유튜브"},
		{"kakao.talk", "카카오"},
		{"somewhere.else", "기타"},
	}
	for _, tt := range tests {
		if got := MapSource(tt.in); got != tt.want {
			t.Errorf("MapSource(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTrafficSharesAndDeltas(t *testing.T) {
	cur := []analytics.Row{
		sourceRow("m.search.naver.com", 600),
		sourceRow("google.com", 300),
		sourceRow("weird.site", 100),
	}
	prior := []analytics.Row{
		sourceRow("naver.com", 400),
		sourceRow("google.com", 400),
		sourceRow("another.site", 200),
	}

	shares := trafficShares(cur, prior)
	if len(shares) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(shares))
	}
	if shares[0].Source != "네이버" || shares[0].CurrentShare != 60.0 {
		t.Errorf("unexpected first bucket %+v", shares[0])
	}
	if shares[0].PriorShare != 40.0 || shares[0].Delta != 20.0 {
		t.Errorf("unexpected naver delta %+v", shares[0])
	}
	if last := shares[len(shares)-1]; last.Source != otherBucket {
		t.Errorf("expected 기타 last, got %q", last.Source)
	}
}

func TestSearchInflowRatio(t *testing.T) {
	traffic := trafficShares([]analytics.Row{
		sourceRow("naver.com", 500),
		sourceRow("google.com", 200),
		sourceRow("daum.net", 100),
		sourceRow("facebook.com", 200),
	}, nil)

	if got := searchInflow(traffic); got != 80.0 {
		t.Errorf("expected 80.0 search inflow, got %v", got)
	}
}

func TestDemographicBuckets(t *testing.T) {
	regions := demoShares([]analytics.Row{
		dimRow(DimRegion, "Seoul", 500),
		dimRow(DimRegion, "Gyeonggi-do", 300),
		dimRow(DimRegion, "Hokkaido", 100),
		dimRow(DimRegion, "(not set)", 100),
	}, nil, DimRegion, mapRegion)

	if regions[0].Bucket != "서울" || regions[0].CurrentShare != 50.0 {
		t.Errorf("unexpected top region %+v", regions[0])
	}
	if last := regions[len(regions)-1]; last.Bucket != otherBucket || last.CurrentUsers != 200 {
		t.Errorf("expected merged 기타 bucket last, got %+v", last)
	}

	ages := demoShares([]analytics.Row{
		dimRow(DimAge, "25-34", 300),
		dimRow(DimAge, "unknown", 900),
	}, nil, DimAge, mapAge)
	if len(ages) != 1 || ages[0].Bucket != "25-34세" {
		t.Errorf("expected unknown ages dropped, got %+v", ages)
	}

	genders := demoShares([]analytics.Row{
		dimRow(DimGender, "female", 600),
		dimRow(DimGender, "male", 400),
		dimRow(DimGender, "unknown", 500),
	}, nil, DimGender, mapGender)
	if len(genders) != 2 || genders[0].Bucket != "여성" {
		t.Errorf("unexpected gender buckets %+v", genders)
	}
}

func TestKPIComputation(t *testing.T) {
	in := Input{
		Week: testWeek(),
		Summary: []analytics.Row{{
			Dims: map[string]string{},
			Metrics: map[string]analytics.Value{
				MetricUsers:    analytics.IntValue(1000),
				MetricViews:    analytics.IntValue(3500),
				MetricNewUsers: analytics.IntValue(250),
			},
		}},
		TrafficCur: []analytics.Row{
			sourceRow("naver.com", 900),
			sourceRow("facebook.com", 100),
		},
		Published: 142,
	}
	b := Aggregate(in, Options{})

	k := b.KPI
	if k.Users != 1000 || k.Views != 3500 {
		t.Errorf("unexpected totals %+v", k)
	}
	if k.ViewsPerUser != 3.5 {
		t.Errorf("expected 3.5 views/user, got %v", k.ViewsPerUser)
	}
	if k.NewVisitorRatio != 25.0 {
		t.Errorf("expected 25.0%% new visitors, got %v", k.NewVisitorRatio)
	}
	if k.SearchInflowRatio != 90.0 {
		t.Errorf("expected 90.0%% search inflow, got %v", k.SearchInflowRatio)
	}
	if k.Published != 142 || k.PublishedEstimated {
		t.Errorf("unexpected published KPI %+v", k)
	}
}

func TestTrajectoriesAreFlaggedEstimates(t *testing.T) {
	ranked := []ArticleRow{{Rank: 1, Title: "t", Views: 1000}}
	trajs := trajectories(ranked)
	if len(trajs) != 1 {
		t.Fatalf("expected 1 trajectory, got %d", len(trajs))
	}
	tr := trajs[0]
	if !tr.Estimated {
		t.Error("trajectory must be flagged as estimated")
	}
	if tr.H12 != 400 || tr.H24 != 700 || tr.H48 != 1000 || tr.Scroll90 != 720 {
		t.Errorf("unexpected trajectory figures %+v", tr)
	}
}

func TestTitleRecoveredFromScrape(t *testing.T) {
	in := Input{
		Week:     testWeek(),
		TopPages: []analytics.Row{pageRow("(not set)", "/a", 100)},
		Enrichment: map[string]scrape.Record{
			"/a": {Author: "김철호", Category: "맛집", Subcategory: "리뷰", Title: "복원된 제목"},
		},
	}
	b := Aggregate(in, Options{})
	if b.Top[0].Title != "복원된 제목" {
		t.Errorf("expected recovered title, got %q", b.Top[0].Title)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{42, "42초"},
		{90, "1분 30초"},
		{3605.7, "60분 5초"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
