// Package compose renders a weekly report bundle into the markdown body
// that gets archived and served by the dashboard.
package compose

import (
	"fmt"
	"strings"

	"github.com/dwg-inc/cncreport/internal/report"
)

// estMark prefixes figures that are estimates, not measurements.
const estMark = "≈"

// Render produces the full markdown report for a bundle.
func Render(b *report.Bundle) string {
	var sections []string

	sections = append(sections,
		fmt.Sprintf("# %s 주간 리포트\n\n기간: %s", b.WeekLabel, b.DateRange),
		kpiSection(b),
		trafficSection(b.Traffic),
		demographicsSection(b),
		topSection(b.Top),
		trajectorySection(b.Trajectories),
		categorySection(b.Categories, b.Subcategories),
		writerSection("기자별 실적", b.Writers, false),
		writerSection("필진 실적", b.PenWriters, true),
	)

	return strings.Join(sections, "\n\n---\n\n") + "\n"
}

func kpiSection(b *report.Bundle) string {
	k := b.KPI
	published := comma(int64(k.Published))
	if k.PublishedEstimated {
		published = estMark + published
	}

	var sb strings.Builder
	sb.WriteString("## 주간 요약\n\n")
	sb.WriteString("| 지표 | 값 |\n|---|---|\n")
	fmt.Fprintf(&sb, "| 발행 기사 | %s건 |\n", published)
	fmt.Fprintf(&sb, "| 페이지뷰 | %s |\n", comma(k.Views))
	fmt.Fprintf(&sb, "| 순 방문자 | %s |\n", comma(k.Users))
	fmt.Fprintf(&sb, "| 신규 방문자 | %s |\n", comma(k.NewUsers))
	fmt.Fprintf(&sb, "| 1인당 페이지뷰 | %.1f |\n", k.ViewsPerUser)
	fmt.Fprintf(&sb, "| 신규 방문 비율 | %.1f%% |\n", k.NewVisitorRatio)
	fmt.Fprintf(&sb, "| 검색 유입 비율 | %.1f%% |", k.SearchInflowRatio)

	if b.EnrichFailed > 0 {
		fmt.Fprintf(&sb, "\n\n기사 메타데이터 %d건 수집, %d건 실패 (기본값 적용)",
			b.EnrichFetched, b.EnrichFailed)
	}
	return sb.String()
}

func trafficSection(traffic []report.TrafficShare) string {
	var sb strings.Builder
	sb.WriteString("## 유입 채널\n\n")
	if len(traffic) == 0 {
		sb.WriteString("유입 데이터가 없습니다.")
		return sb.String()
	}
	sb.WriteString("| 채널 | 조회수 | 이번 주 | 지난 주 | 증감 |\n|---|---|---|---|---|\n")
	for i, t := range traffic {
		fmt.Fprintf(&sb, "| %s | %s | %.1f%% | %.1f%% | %s |",
			t.Source, comma(t.Views), t.CurrentShare, t.PriorShare, delta(t.Delta))
		if i < len(traffic)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func demographicsSection(b *report.Bundle) string {
	var sb strings.Builder
	sb.WriteString("## 방문자 특성\n")
	sb.WriteString(demoTable("지역", b.Regions))
	sb.WriteString(demoTable("연령", b.Ages))
	sb.WriteString(demoTable("성별", b.Genders))
	return strings.TrimRight(sb.String(), "\n")
}

func demoTable(title string, shares []report.DemoShare) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n### %s\n\n", title)
	if len(shares) == 0 {
		sb.WriteString("데이터가 없습니다.\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "| %s | 사용자 | 이번 주 | 지난 주 | 증감 |\n|---|---|---|---|---|\n", title)
	for _, d := range shares {
		fmt.Fprintf(&sb, "| %s | %s | %.1f%% | %.1f%% | %s |\n",
			d.Bucket, comma(d.CurrentUsers), d.CurrentShare, d.PriorShare, delta(d.Delta))
	}
	return sb.String()
}

func topSection(top []report.ArticleRow) string {
	var sb strings.Builder
	sb.WriteString("## TOP 기사 상세\n\n")
	if len(top) == 0 {
		sb.WriteString("집계된 기사가 없습니다.")
		return sb.String()
	}
	sb.WriteString("| 순위 | 제목 | 작성자 | 카테고리 | 조회수 | 방문자 | 체류 | 좋아요 | 댓글 | 발행일 |\n")
	sb.WriteString("|---|---|---|---|---|---|---|---|---|---|\n")
	for i, a := range top {
		date := a.PublishDate
		if a.DateEstimated {
			date = estMark + date
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s > %s | %s | %s | %s | %d | %d | %s |",
			a.Rank, a.Title, a.Author, a.Category, a.Subcategory,
			comma(a.Views), comma(a.Visitors), report.FormatDuration(a.Engagement),
			a.Likes, a.Comments, date)
		if i < len(top)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func trajectorySection(trajs []report.Trajectory) string {
	var sb strings.Builder
	sb.WriteString("## TOP 기사 조회 추이 (추정)\n\n")
	if len(trajs) == 0 {
		sb.WriteString("집계된 기사가 없습니다.")
		return sb.String()
	}
	sb.WriteString("| 순위 | 제목 | 12시간 | 24시간 | 48시간 | 스크롤 90% |\n|---|---|---|---|---|---|\n")
	for i, tr := range trajs {
		fmt.Fprintf(&sb, "| %d | %s | %s%s | %s%s | %s%s | %s%s |",
			tr.Rank, tr.Title,
			estMark, comma(tr.H12), estMark, comma(tr.H24),
			estMark, comma(tr.H48), estMark, comma(tr.Scroll90))
		if i < len(trajs)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func categorySection(cats, subcats []report.CategoryRollup) string {
	var sb strings.Builder
	sb.WriteString("## 카테고리 분석\n\n")
	if len(cats) == 0 {
		sb.WriteString("집계된 기사가 없습니다.")
		return sb.String()
	}
	sb.WriteString("| 카테고리 | 기사 수 | 비중 | 조회수 | 평균 조회수 |\n|---|---|---|---|---|\n")
	for _, c := range cats {
		fmt.Fprintf(&sb, "| %s | %d | %.1f%% | %s | %s |\n",
			c.Category, c.Articles, c.Share, comma(c.Views), comma(c.AvgViews))
	}
	if len(subcats) > 0 {
		sb.WriteString("\n### 세부 카테고리\n\n")
		sb.WriteString("| 카테고리 | 세부 | 기사 수 | 비중 | 조회수 |\n|---|---|---|---|---|\n")
		for _, c := range subcats {
			fmt.Fprintf(&sb, "| %s | %s | %d | %.1f%% | %s |\n",
				c.Category, c.Subcategory, c.Articles, c.Share, comma(c.Views))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writerSection(title string, writers []report.WriterRollup, byPenName bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", title)
	if len(writers) == 0 {
		sb.WriteString("집계된 기자가 없습니다.")
		return sb.String()
	}
	label := "기자"
	if byPenName {
		label = "필명"
	}
	fmt.Fprintf(&sb, "| 순위 | %s | 기사 수 | 조회수 | 평균 조회수 | 좋아요 | 댓글 |\n", label)
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for i, w := range writers {
		name := w.Name
		if byPenName {
			name = w.PenName
		}
		fmt.Fprintf(&sb, "| %d | %s | %d | %s | %s | %s | %s |",
			w.Rank, name, w.Articles, comma(w.Views), comma(w.AvgViews),
			comma(w.Likes), comma(w.Comments))
		if i < len(writers)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// delta renders a percentage-point change with an explicit sign.
func delta(d float64) string {
	return fmt.Sprintf("%+.1f%%p", d)
}

// comma renders n with thousands separators.
func comma(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
