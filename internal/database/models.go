package database

// Report is one archived weekly report.
type Report struct {
	ID           int64
	PeriodID     string // week start date, YYYY-MM-DD
	WeekLabel    string
	DateRange    string
	BundleJSON   string
	BodyMarkdown string
	ArticleCount int
	WriterCount  int
	GeneratedAt  *string
}

// RunEntry records one pipeline run for a period.
type RunEntry struct {
	ID           int64
	PeriodID     string
	PagesFetched int
	PagesFailed  int
	DurationMS   int64
	RanAt        *string
}

// Stats contains aggregate archive statistics.
type Stats struct {
	Reports      int
	Runs         int
	FailedPages  int
	LatestPeriod string
}
