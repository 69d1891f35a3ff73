// Package collect counts the articles the site published during a
// reporting week, using its RSS feed. The count feeds the weekly KPI that
// the dashboard previously had to guess at.
package collect

import (
	"context"
	"log"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedCounter counts published articles from an RSS/Atom feed.
type FeedCounter struct {
	feedURL string
}

// NewFeedCounter creates a counter for the given feed URL. An empty URL
// produces a counter that always reports unavailable.
func NewFeedCounter(feedURL string) *FeedCounter {
	return &FeedCounter{feedURL: feedURL}
}

// CountPublished returns how many feed items were published between start
// and end inclusive. ok is false when the feed is unreachable, unparsable
// or empty; callers fall back to an estimate in that case.
func (fc *FeedCounter) CountPublished(ctx context.Context, start, end time.Time) (count int, ok bool) {
	if fc.feedURL == "" {
		return 0, false
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseURLWithContext(fc.feedURL, ctx)
	if err != nil {
		log.Printf("feed unavailable (%s): %v", fc.feedURL, err)
		return 0, false
	}
	if len(feed.Items) == 0 {
		return 0, false
	}

	// End of the Saturday, so same-day publishes count.
	endOfRange := end.AddDate(0, 0, 1)
	for _, item := range feed.Items {
		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published == nil {
			continue
		}
		if !published.Before(start) && published.Before(endOfRange) {
			count++
		}
	}
	return count, true
}

// EstimateCount reproduces the dashboard's legacy published-count estimator
// for weeks where the feed has no data. Callers must flag the result as
// estimated, never present it as a measured figure.
func EstimateCount(weeklyUsers int64) int {
	return 130 + int(weeklyUsers/450)
}
