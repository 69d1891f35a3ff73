package report

import (
	"sort"
	"strings"
)

// excludeBlocked drops the publisher's own editorial placeholder pages.
// Matching is case-insensitive and ignores all whitespace, on both title
// and resolved author.
func excludeBlocked(rows []ArticleRow, blocklist []string) []ArticleRow {
	if len(blocklist) == 0 {
		return rows
	}
	patterns := make([]string, 0, len(blocklist))
	for _, b := range blocklist {
		if p := normalizeForMatch(b); p != "" {
			patterns = append(patterns, p)
		}
	}

	var kept []ArticleRow
	for _, r := range rows {
		title := normalizeForMatch(r.Title)
		author := normalizeForMatch(r.Author)
		blocked := false
		for _, p := range patterns {
			if strings.Contains(title, p) || strings.Contains(author, p) {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, r)
		}
	}
	return kept
}

func normalizeForMatch(s string) string {
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), "")
}

// rollupCategories groups filtered rows by category, or by the
// category+subcategory pair when bySubcategory is set. Share is the
// percentage of articles, one decimal; AvgViews is integer-truncated.
func rollupCategories(rows []ArticleRow, bySubcategory bool) []CategoryRollup {
	type key struct{ cat, subcat string }

	var order []key
	groups := make(map[key]*CategoryRollup)
	for _, r := range rows {
		k := key{cat: r.Category}
		if bySubcategory {
			k.subcat = r.Subcategory
		}
		g, ok := groups[k]
		if !ok {
			g = &CategoryRollup{Category: k.cat, Subcategory: k.subcat}
			groups[k] = g
			order = append(order, k)
		}
		g.Articles++
		g.Views += r.Views
	}

	total := len(rows)
	var out []CategoryRollup
	for _, k := range order {
		g := groups[k]
		if g.Articles > 0 {
			g.AvgViews = g.Views / int64(g.Articles)
			g.Share = round1(float64(g.Articles) / float64(total) * 100)
		}
		out = append(out, *g)
	}
	return out
}

// rollupWriters groups filtered rows by resolved author. Rank is by total
// views descending; ties keep encounter order, so ranks are a strict,
// deterministic total order.
func rollupWriters(rows []ArticleRow, penNames map[string]string) []WriterRollup {
	var order []string
	groups := make(map[string]*WriterRollup)
	for _, r := range rows {
		g, ok := groups[r.Author]
		if !ok {
			g = &WriterRollup{Name: r.Author, PenName: penNames[r.Author]}
			groups[r.Author] = g
			order = append(order, r.Author)
		}
		g.Articles++
		g.Views += r.Views
		g.Likes += int64(r.Likes)
		g.Comments += int64(r.Comments)
	}

	writers := make([]WriterRollup, 0, len(order))
	for _, name := range order {
		g := groups[name]
		if g.Articles > 0 {
			g.AvgViews = g.Views / int64(g.Articles)
		}
		writers = append(writers, *g)
	}

	sort.SliceStable(writers, func(i, j int) bool { return writers[i].Views > writers[j].Views })
	for i := range writers {
		writers[i].Rank = i + 1
	}
	return writers
}

// penView keeps only writers with a pen name and re-ranks them.
func penView(writers []WriterRollup) []WriterRollup {
	var out []WriterRollup
	for _, w := range writers {
		if w.PenName == "" {
			continue
		}
		w.Rank = len(out) + 1
		out = append(out, w)
	}
	return out
}
