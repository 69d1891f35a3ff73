package report

import (
	"sort"

	"github.com/dwg-inc/cncreport/internal/analytics"
)

// regionNames maps GA4 region values to the Korean province labels the
// report displays. Unmapped regions fold into 기타.
var regionNames = map[string]string{
	"Seoul":             "서울",
	"Gyeonggi-do":       "경기",
	"Incheon":           "인천",
	"Busan":             "부산",
	"Daegu":             "대구",
	"Gyeongsangnam-do":  "경남",
	"Gyeongsangbuk-do":  "경북",
	"Chungcheongnam-do": "충남",
	"Chungcheongbuk-do": "충북",
	"Jeollanam-do":      "전남",
	"Jeollabuk-do":      "전북",
	"Gangwon-do":        "강원",
	"Daejeon":           "대전",
	"Gwangju":           "광주",
	"Ulsan":             "울산",
	"Jeju-do":           "제주",
	"Sejong-si":         "세종",
}

// mapRegion buckets a raw region dimension value. Empty/unset values and
// unknown regions all land in 기타.
func mapRegion(raw string) (string, bool) {
	if raw == "" || raw == "(not set)" || raw == "unknown" {
		return otherBucket, true
	}
	if name, ok := regionNames[raw]; ok {
		return name, true
	}
	return otherBucket, true
}

// mapAge buckets an age bracket, dropping unknowns entirely.
func mapAge(raw string) (string, bool) {
	if raw == "" || raw == "(not set)" || raw == "unknown" {
		return "", false
	}
	return raw + "세", true
}

// mapGender keeps only male/female, localized.
func mapGender(raw string) (string, bool) {
	switch raw {
	case "male":
		return "남성", true
	case "female":
		return "여성", true
	}
	return "", false
}

// demoShares buckets one demographic dimension for both weeks and
// compares shares. Buckets come from the current week (a bucket present
// only last week is not shown); 기타 sorts last, the rest by current
// users descending.
func demoShares(current, prior []analytics.Row, dim string, mapBucket func(string) (string, bool)) []DemoShare {
	curUsers, curOrder := sumByBucket(current, dim, mapBucket)
	priorUsers, _ := sumByBucket(prior, dim, mapBucket)

	var curTotal, priorTotal int64
	for _, v := range curUsers {
		curTotal += v
	}
	for _, v := range priorUsers {
		priorTotal += v
	}

	var out []DemoShare
	for _, bucket := range curOrder {
		d := DemoShare{
			Bucket:       bucket,
			CurrentUsers: curUsers[bucket],
			PriorUsers:   priorUsers[bucket],
		}
		if curTotal > 0 {
			d.CurrentShare = round1(float64(d.CurrentUsers) / float64(curTotal) * 100)
		}
		if priorTotal > 0 {
			d.PriorShare = round1(float64(d.PriorUsers) / float64(priorTotal) * 100)
		}
		d.Delta = round1(d.CurrentShare - d.PriorShare)
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Bucket == otherBucket) != (out[j].Bucket == otherBucket) {
			return out[j].Bucket == otherBucket
		}
		return out[i].CurrentUsers > out[j].CurrentUsers
	})
	return out
}

func sumByBucket(rows []analytics.Row, dim string, mapBucket func(string) (string, bool)) (map[string]int64, []string) {
	sums := make(map[string]int64)
	var order []string
	for _, r := range rows {
		bucket, keep := mapBucket(r.Dims[dim])
		if !keep {
			continue
		}
		if _, ok := sums[bucket]; !ok {
			order = append(order, bucket)
		}
		sums[bucket] += r.Metrics[MetricUsers].Int()
	}
	return sums, order
}
