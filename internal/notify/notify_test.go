package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestFormatBriefing(t *testing.T) {
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	articles := []models.ScoredArticle{
		{
			Article: models.Article{
				Title:          "Acme <raises> $20M & more",
				Source:         "TechCrunch AI",
				URL:            "https://example.com/a?x=1&y=2",
				SimilarSources: []string{"Hacker News", "The Verge Tech"},
			},
			Evaluation: models.Evaluation{TotalScore: 88, ExecutiveSummary: strPtr("🎯 白話解讀：測試")},
		},
		{
			Article: models.Article{Title: "Plain", Source: "Meta AI", URL: "https://example.com/b"},
			Evaluation: models.Evaluation{
				TotalScore: 40,
				Reasoning:  strings.Repeat("分析", 60),
			},
		},
	}

	msg := FormatBriefing(articles, false, date)

	assert.True(t, strings.HasPrefix(msg, "🤖 <b>Yoyo AI 全域情報 (2.0 嚴格版)</b> | 2024-05-02\n"))
	assert.NotContains(t, msg, "降級播報")
	assert.Contains(t, msg, "<b>[88分] Acme &lt;raises&gt; $20M &amp; more</b>")
	assert.Contains(t, msg, "來源: TechCrunch AI (+2 來源佐證)")
	assert.Contains(t, msg, `<a href="https://example.com/a?x=1&amp;y=2">`)
	assert.Contains(t, msg, "🔥 <b>戰略簡報:</b> 🎯 白話解讀：測試\n")
	assert.Equal(t, 2, strings.Count(msg, articleSeparator))
	assert.True(t, strings.HasSuffix(msg, briefingFooter))

	// The second article falls back to truncated reasoning.
	expected := strings.Repeat("分析", 40)
	assert.Equal(t, ReasoningRunes, utf8.RuneCountInString(expected))
	assert.Contains(t, msg, "🔥 <b>戰略簡報:</b> "+expected+"\n")
	assert.Contains(t, msg, "來源: Meta AI | ")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "", truncateRunes("abc", 0))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 80))
	assert.Equal(t, "模型發", truncateRunes("模型發布", 3))
}

func TestFormatBriefing_Downgraded(t *testing.T) {
	articles := []models.ScoredArticle{
		{Article: models.Article{Title: "a"}, Evaluation: models.Evaluation{TotalScore: 50, Reasoning: "ok"}},
		{Article: models.Article{Title: "b"}, Evaluation: models.Evaluation{TotalScore: 40, Reasoning: "ok"}},
	}
	msg := FormatBriefing(articles, true, time.Now())
	assert.Contains(t, msg, "顯示 Top 2 潛力事件")
}

type telegramStub struct {
	failFor  map[string]bool
	received []sendMessageRequest
	paths    []string
	mu       sync.Mutex
}

func (s *telegramStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req sendMessageRequest
	_ = json.Unmarshal(body, &req)

	s.mu.Lock()
	s.received = append(s.received, req)
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	if s.failFor[req.ChatID] {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func TestTelegramBroadcaster(t *testing.T) {
	stub := &telegramStub{failFor: map[string]bool{"-2": true}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	b := NewBroadcaster(TelegramConfig{
		Token:   "123:abc",
		BaseURL: srv.URL,
		ChatIDs: []string{"-1", " ", "-2"},
	}, zerolog.Nop())

	err := b.Broadcast(context.Background(), "<b>hello</b>")
	require.NoError(t, err, "one delivered chat is enough")

	require.Len(t, stub.received, 2)
	assert.Equal(t, "/bot123:abc/sendMessage", stub.paths[0])
	assert.Equal(t, "-1", stub.received[0].ChatID)
	assert.Equal(t, "<b>hello</b>", stub.received[0].Text)
	assert.Equal(t, "HTML", stub.received[0].ParseMode)
	assert.True(t, stub.received[0].DisableWebPagePreview)
}

func TestTelegramBroadcaster_AllFail(t *testing.T) {
	stub := &telegramStub{failFor: map[string]bool{"-1": true, "-2": true}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	b := NewBroadcaster(TelegramConfig{Token: "t", BaseURL: srv.URL, ChatIDs: []string{"-1", "-2"}}, zerolog.Nop())

	err := b.Broadcast(context.Background(), "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat -1")
	assert.Contains(t, err.Error(), "chat not found")
}

func TestNewBroadcaster_Noop(t *testing.T) {
	_, ok := NewBroadcaster(TelegramConfig{ChatIDs: []string{"1"}}, zerolog.Nop()).(noopBroadcaster)
	assert.True(t, ok, "missing token")

	_, ok = NewBroadcaster(TelegramConfig{Token: "t"}, zerolog.Nop()).(noopBroadcaster)
	assert.True(t, ok, "missing chats")

	assert.NoError(t, noopBroadcaster{}.Broadcast(context.Background(), "x"))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "post https://x/bot***/send", redact("post https://x/botSECRET/send", "SECRET"))
	assert.Equal(t, "abc", redact("abc", ""))
}
