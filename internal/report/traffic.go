package report

import (
	"sort"
	"strings"

	"github.com/dwg-inc/cncreport/internal/analytics"
)

const otherBucket = "기타"

// sourceBuckets maps raw sessionSource values to display buckets by
// substring, checked in order. Anything unmatched lands in 기타.
var sourceBuckets = []struct {
	substr string
	label  string
}{
	{"naver", "네이버"},
	{"daum", "다음"},
	{"facebook", "페이스북"},
	{"(direct)", "직접"},
	{"google", "구글"},
	{"youtube", "유튜브"},
	{"instagram", "인스타그램"},
	{"twitter", "트위터"},
	{"kakao", "카카오"},
}

// searchEngines are the buckets counted toward the search-inflow KPI.
var searchEngines = map[string]bool{"네이버": true, "구글": true, "다음": true}

// MapSource buckets a raw traffic source string.
func MapSource(source string) string {
	s := strings.ToLower(source)
	for _, b := range sourceBuckets {
		if strings.Contains(s, b.substr) {
			return b.label
		}
	}
	return otherBucket
}

// trafficShares buckets inflow views for both weeks and computes each
// bucket's share plus the week-over-week delta in percentage points.
// Buckets are taken from the current week; 기타 always sorts last.
func trafficShares(current, prior []analytics.Row) []TrafficShare {
	curViews, curOrder := sumBySource(current)
	priorViews, _ := sumBySource(prior)

	var curTotal, priorTotal int64
	for _, v := range curViews {
		curTotal += v
	}
	for _, v := range priorViews {
		priorTotal += v
	}

	var out []TrafficShare
	for _, bucket := range curOrder {
		s := TrafficShare{Source: bucket, Views: curViews[bucket]}
		if curTotal > 0 {
			s.CurrentShare = round1(float64(s.Views) / float64(curTotal) * 100)
		}
		if priorTotal > 0 {
			s.PriorShare = round1(float64(priorViews[bucket]) / float64(priorTotal) * 100)
		}
		s.Delta = round1(s.CurrentShare - s.PriorShare)
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Source == otherBucket) != (out[j].Source == otherBucket) {
			return out[j].Source == otherBucket
		}
		return out[i].Views > out[j].Views
	})
	return out
}

func sumBySource(rows []analytics.Row) (map[string]int64, []string) {
	sums := make(map[string]int64)
	var order []string
	for _, r := range rows {
		bucket := MapSource(r.Dims[DimSource])
		if _, ok := sums[bucket]; !ok {
			order = append(order, bucket)
		}
		sums[bucket] += r.Metrics[MetricViews].Int()
	}
	return sums, order
}

// searchInflow is the share of views arriving from search engines.
func searchInflow(traffic []TrafficShare) float64 {
	var searchViews, total int64
	for _, t := range traffic {
		total += t.Views
		if searchEngines[t.Source] {
			searchViews += t.Views
		}
	}
	if total == 0 {
		return 0
	}
	return round1(float64(searchViews) / float64(total) * 100)
}
