package scrape

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// Extraction works as ordered fallback chains: each field has a list of
// candidate selectors tried in priority order, first match wins, and a
// documented default closes every chain.
var (
	authorSelectors = []string{".user-name", ".writer", ".byline"}
	dateSelectors   = []string{".date", ".publish-date", "time"}
	// breadcrumb chains: second segment is category, third is subcategory
	breadcrumbSelectors = []string{".location a", ".breadcrumb a", ".path a"}

	likeSelector    = ".sns-like-count"
	commentSelector = ".comment-count"

	pathDatePattern = regexp.MustCompile(`/(\d{4})/(\d{1,2})/(\d{1,2})/`)
)

const reporterSuffix = "기자"

func extract(doc *goquery.Document, path string, now time.Time) Record {
	rec := Record{
		Author:      extractAuthor(doc),
		Likes:       extractCount(doc, likeSelector),
		Comments:    extractCount(doc, commentSelector),
		Category:    DefaultCategory,
		Subcategory: DefaultSubcategory,
	}

	if cat, subcat, ok := extractBreadcrumbs(doc); ok {
		rec.Category, rec.Subcategory = cat, subcat
	} else if sec, ok := doc.Find(`meta[property="article:section"]`).Attr("content"); ok && sec != "" {
		rec.Category = sec
	}

	rec.PublishDate, rec.DateEstimated = extractPublishDate(doc, path, now)
	return rec
}

// extractAuthor tries the dedicated byline selectors, then scans short leaf
// texts for the reporter suffix, then defaults.
func extractAuthor(doc *goquery.Document) string {
	for _, sel := range authorSelectors {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			return cleanAuthor(strings.TrimSpace(node.Text()))
		}
	}

	author := DefaultAuthor
	doc.Find("span, div, li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := strings.TrimSpace(s.Text())
		if strings.Contains(txt, reporterSuffix) && len([]rune(txt)) < 10 {
			author = txt
			return false
		}
		return true
	})
	return cleanAuthor(author)
}

// cleanAuthor normalizes a raw byline: drops the "#" marker and the 기자
// suffix and collapses internal whitespace.
func cleanAuthor(name string) string {
	if name == "" {
		return UnknownAuthor
	}
	name = strings.ReplaceAll(name, "#", "")
	name = strings.ReplaceAll(name, reporterSuffix, "")
	return strings.Join(strings.Fields(name), " ")
}

// extractCount parses an engagement counter, stripping thousands commas.
func extractCount(doc *goquery.Document, selector string) int {
	node := doc.Find(selector).First()
	if node.Length() == 0 {
		return 0
	}
	raw := strings.ReplaceAll(strings.TrimSpace(node.Text()), ",", "")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func extractBreadcrumbs(doc *goquery.Document) (category, subcategory string, ok bool) {
	for _, sel := range breadcrumbSelectors {
		crumbs := doc.Find(sel)
		if crumbs.Length() == 0 {
			continue
		}
		category, subcategory = DefaultCategory, DefaultSubcategory
		if crumbs.Length() >= 2 {
			category = strings.TrimSpace(crumbs.Eq(1).Text())
		}
		if crumbs.Length() >= 3 {
			subcategory = strings.TrimSpace(crumbs.Eq(2).Text())
		}
		return category, subcategory, true
	}
	return "", "", false
}

// extractPublishDate resolves the publish date in three steps: a dated
// element parsed loosely, then a /YYYY/MM/DD/ path segment, then a
// placeholder within the last week flagged as estimated.
func extractPublishDate(doc *goquery.Document, path string, now time.Time) (string, bool) {
	for _, sel := range dateSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if t, err := dateparse.ParseAny(strings.TrimSpace(node.Text())); err == nil {
			return t.Format("2006-01-02"), false
		}
	}

	if m := pathDatePattern.FindStringSubmatch(path); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		return d.Format("2006-01-02"), false
	}

	return now.AddDate(0, 0, -jitterDays()).Format("2006-01-02"), true
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
