// Package notify formats the daily briefing and delivers it to chat groups.
package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

// ReasoningRunes is how many characters of reasoning are shown when an
// article has no executive summary.
const ReasoningRunes = 80

const (
	briefingHeader   = "🤖 <b>Yoyo AI 全域情報 (2.0 嚴格版)</b> | %s\n"
	downgradeNotice  = "⚠️ <i>今日雷達未偵測到 S 級情報，啟動降級播報 (顯示 Top %d 潛力事件)。</i>\n"
	briefingFooter   = "\n💬 <i>(此報告由 2.0 系統自動產出)</i>"
	articleSeparator = "━━━━━━━━━━"
)

// FormatBriefing renders scored articles as a Telegram HTML message.
// When downgraded is set, a notice explains that no article qualified.
func FormatBriefing(articles []models.ScoredArticle, downgraded bool, date time.Time) string {
	lines := make([]string, 0, len(articles)+3)
	lines = append(lines, fmt.Sprintf(briefingHeader, date.Format("2006-01-02")))

	if downgraded {
		lines = append(lines, fmt.Sprintf(downgradeNotice, len(articles)))
	}

	for _, s := range articles {
		lines = append(lines, formatArticle(s))
	}

	lines = append(lines, briefingFooter)
	return strings.Join(lines, "\n")
}

func formatArticle(s models.ScoredArticle) string {
	ev := s.Evaluation
	a := s.Article

	summary := ev.Summary()
	if summary == "" {
		summary = truncateRunes(ev.Reasoning, ReasoningRunes)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%d分] %s</b>\n", ev.TotalScore, html.EscapeString(a.Title))
	fmt.Fprintf(&b, "來源: %s", html.EscapeString(a.Source))
	if len(a.SimilarSources) > 0 {
		fmt.Fprintf(&b, " (+%d 來源佐證)", len(a.SimilarSources))
	}
	fmt.Fprintf(&b, " | <a href=\"%s\">🔗 閱讀原文</a>\n", html.EscapeString(a.URL))
	fmt.Fprintf(&b, "🔥 <b>戰略簡報:</b> %s\n", html.EscapeString(summary))
	b.WriteString(articleSeparator)
	return b.String()
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
