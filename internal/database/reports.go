package database

import "database/sql"

// InsertReport inserts or replaces the archived report for a period.
func (db *DB) InsertReport(r *Report) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT OR REPLACE INTO reports
		(period_id, week_label, date_range, bundle_json, body_markdown, article_count, writer_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.PeriodID, r.WeekLabel, r.DateRange, r.BundleJSON, r.BodyMarkdown,
		r.ArticleCount, r.WriterCount,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetReport returns the archived report for a period, or nil.
func (db *DB) GetReport(periodID string) (*Report, error) {
	row := db.conn.QueryRow(
		`SELECT id, period_id, week_label, date_range, bundle_json, body_markdown,
		article_count, writer_count, generated_at
		FROM reports WHERE period_id = ?`, periodID,
	)

	var r Report
	if err := row.Scan(&r.ID, &r.PeriodID, &r.WeekLabel, &r.DateRange, &r.BundleJSON,
		&r.BodyMarkdown, &r.ArticleCount, &r.WriterCount, &r.GeneratedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// GetAllReports returns all archived reports, most recent period first.
// Bundle JSON and markdown bodies are omitted; fetch one with GetReport.
func (db *DB) GetAllReports() ([]Report, error) {
	rows, err := db.conn.Query(
		`SELECT id, period_id, week_label, date_range, article_count, writer_count, generated_at
		FROM reports ORDER BY period_id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.PeriodID, &r.WeekLabel, &r.DateRange,
			&r.ArticleCount, &r.WriterCount, &r.GeneratedAt); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// LogRun appends one pipeline run to the run log.
func (db *DB) LogRun(e *RunEntry) error {
	_, err := db.conn.Exec(
		`INSERT INTO run_log (period_id, pages_fetched, pages_failed, duration_ms)
		VALUES (?, ?, ?, ?)`,
		e.PeriodID, e.PagesFetched, e.PagesFailed, e.DurationMS,
	)
	return err
}

// GetStats returns aggregate archive statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM reports", &s.Reports},
		{"SELECT COUNT(*) FROM run_log", &s.Runs},
		{"SELECT COALESCE(SUM(pages_failed), 0) FROM run_log", &s.FailedPages},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	row := db.conn.QueryRow("SELECT period_id FROM reports ORDER BY period_id DESC LIMIT 1")
	if err := row.Scan(&s.LatestPeriod); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return s, nil
}
