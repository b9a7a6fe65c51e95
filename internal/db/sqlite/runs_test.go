package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type RunStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestRunStoreSuite(t *testing.T) {
	suite.Run(t, new(RunStoreSuite))
}

func (s *RunStoreSuite) SetupTest() {
	store, err := NewStore(StoreConfig{Path: filepath.Join(s.T().TempDir(), "archive", "runs.db")})
	s.Require().NoError(err)
	s.store = store
	s.ctx = context.Background()
}

func (s *RunStoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func (s *RunStoreSuite) TestSaveAndGetRun() {
	started := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	run := RunRecord{
		ID:           "run-1",
		StartedAt:    started,
		FinishedAt:   started.Add(90 * time.Second),
		Collected:    12,
		Deduplicated: 7,
		Scored:       6,
		Qualified:    1,
		Message:      "<b>briefing</b>",
	}
	events := []EventRecord{
		{
			Title:          "OpenAI launches new agent platform",
			URL:            "https://example.com/a",
			Source:         "TechCrunch AI",
			PublishedAt:    started.Add(-time.Hour),
			SimilarSources: []string{"Hacker News"},
			TotalScore:     intPtr(80),
			IsQualified:    boolPtr(true),
			Selected:       true,
		},
		{Title: "Unscored event", Source: "Meta AI"},
	}

	s.Require().NoError(s.store.SaveRun(s.ctx, run, events))

	got, err := s.store.GetRun(s.ctx, "run-1")
	s.Require().NoError(err)
	s.Equal(RunStatusCompleted, got.Status)
	s.Equal(12, got.Collected)
	s.Equal(7, got.Deduplicated)
	s.Equal(1, got.Qualified)
	s.False(got.Downgraded)
	s.Equal("<b>briefing</b>", got.Message)
	s.True(got.StartedAt.Equal(started))
	s.True(got.FinishedAt.Equal(run.FinishedAt))

	stored, err := s.store.RunEvents(s.ctx, "run-1")
	s.Require().NoError(err)
	s.Require().Len(stored, 2)

	s.Equal(0, stored[0].Position)
	s.Equal([]string{"Hacker News"}, stored[0].SimilarSources)
	s.Require().NotNil(stored[0].TotalScore)
	s.Equal(80, *stored[0].TotalScore)
	s.Require().NotNil(stored[0].IsQualified)
	s.True(*stored[0].IsQualified)
	s.True(stored[0].Selected)
	s.True(stored[0].PublishedAt.Equal(events[0].PublishedAt))

	s.Equal(1, stored[1].Position)
	s.Equal([]string{}, stored[1].SimilarSources)
	s.Nil(stored[1].TotalScore)
	s.Nil(stored[1].IsQualified)
	s.True(stored[1].PublishedAt.IsZero())
}

func (s *RunStoreSuite) TestGetRun_NotFound() {
	_, err := s.store.GetRun(s.ctx, "missing")
	s.ErrorIs(err, ErrRunNotFound)
}

func (s *RunStoreSuite) TestSaveRun_DuplicateIDRollsBack() {
	run := RunRecord{ID: "dup", StartedAt: time.Now()}
	s.Require().NoError(s.store.SaveRun(s.ctx, run, nil))

	err := s.store.SaveRun(s.ctx, run, []EventRecord{{Title: "x", Source: "y"}})
	s.Error(err)

	events, err := s.store.RunEvents(s.ctx, "dup")
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *RunStoreSuite) TestSaveRun_EmptyID() {
	s.Error(s.store.SaveRun(s.ctx, RunRecord{}, nil))
}

func (s *RunStoreSuite) TestRecentRuns_NewestFirst() {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.SaveRun(s.ctx, RunRecord{
			ID:         id,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			Status:     RunStatusFailed,
			Error:      "no articles",
			Downgraded: i == 1,
		}, nil))
	}

	runs, err := s.store.RecentRuns(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(runs, 2)
	s.Equal("c", runs[0].ID)
	s.Equal("b", runs[1].ID)
	s.True(runs[1].Downgraded)
	s.Equal(RunStatusFailed, runs[0].Status)
	s.Equal("no articles", runs[0].Error)
}

func (s *RunStoreSuite) TestPing() {
	s.NoError(s.store.Ping())
}
