package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jhyu-wv/mantisRssSync/api"
	"github.com/jhyu-wv/mantisRssSync/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type staticFeed struct {
	records []models.FeedRecord
	calls   int
}

func (s *staticFeed) Fetch(context.Context, string) []models.FeedRecord {
	s.calls++
	return s.records
}

// cancellingFeed は取得中にキャンセルされたフィードを模倣します
type cancellingFeed struct {
	cancel context.CancelFunc
}

func (c *cancellingFeed) Fetch(context.Context, string) []models.FeedRecord {
	c.cancel()
	return []models.FeedRecord{}
}

// fakeBoard は Board の呼び出しを記録するテスト用実装
type fakeBoard struct {
	initErr     error
	existing    map[string]struct{}
	existingErr error
	failTitles  map[string]bool

	initialized int
	created     []models.FeedRecord
}

func (b *fakeBoard) Initialize(context.Context) error {
	b.initialized++
	return b.initErr
}

func (b *fakeBoard) ExistingFingerprints(context.Context) (map[string]struct{}, error) {
	if b.existingErr != nil {
		return nil, b.existingErr
	}
	if b.existing == nil {
		return map[string]struct{}{}, nil
	}
	return b.existing, nil
}

func (b *fakeBoard) CreateFromFeedRecord(_ context.Context, record models.FeedRecord) models.CreateResult {
	b.created = append(b.created, record)
	if b.failTitles[record.Title] {
		return models.CreateResult{Record: record, Err: errors.New("create failed")}
	}
	return models.CreateResult{Record: record, URL: "https://github.com/o/r/issues/" + record.Title}
}

func fingerprintSet(records ...models.FeedRecord) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.Fingerprint()] = struct{}{}
	}
	return set
}

func TestFilterNew(t *testing.T) {
	r1 := models.FeedRecord{Title: "one", Link: "https://x/1"}
	r2 := models.FeedRecord{Title: "two", Link: "https://x/2"}
	r3 := models.FeedRecord{Title: "three", Link: "https://x/3"}

	got := FilterNew([]models.FeedRecord{r1, r2, r3}, fingerprintSet(r1))
	assert.Equal(t, []models.FeedRecord{r2, r3}, got)

	assert.Empty(t, FilterNew([]models.FeedRecord{r1}, fingerprintSet(r1)))
	assert.Equal(t, []models.FeedRecord{r1}, FilterNew([]models.FeedRecord{r1}, nil))
}

func TestRun_EmptyFeed(t *testing.T) {
	feed := &staticFeed{}
	board := &fakeBoard{}
	svc := NewSyncService("https://feed", feed, board, zap.NewNop())

	report, err := svc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Fetched)
	assert.Equal(t, 0, report.CreatedCount())
	assert.Equal(t, 0, board.initialized)
	assert.NotEmpty(t, report.RunID)
}

func TestRun_NewRecordEndToEnd(t *testing.T) {
	f := newBoardAPI()
	manager := NewProjectManager(f, testBoard, "rss-auto-created", zap.NewNop())
	feed := &staticFeed{records: []models.FeedRecord{
		{Title: "Release 2.0", Link: "https://ex.com/42", Category: "release", Description: "notes"},
	}}
	svc := NewSyncService("https://feed", feed, manager, zap.NewNop())

	report, err := svc.Run(context.Background())

	require.NoError(t, err)
	assert.Len(t, report.New, 1)
	assert.Equal(t, 1, report.CreatedCount())

	require.Len(t, f.created, 1)
	req := f.created[0]
	assert.Contains(t, req.Body, "**Category:** release")
	assert.Contains(t, req.Body, "**Link:** https://ex.com/42")
	assert.ElementsMatch(t, []string{"rss-auto-created", "category:release"}, req.Labels)
}

func TestRun_AlreadySyncedRecordIsSkipped(t *testing.T) {
	f := newBoardAPI()
	f.on(api.RepositoryIssuesQuery, `{"repository": {"issues": {
		"nodes": [{"title": "Release 2.0", "body": "**Category:** release\n**Link:** https://ex.com/42\n\n**Description:**\nnotes", "url": "u"}],
		"pageInfo": {"hasNextPage": false}
	}}}`)
	manager := NewProjectManager(f, testBoard, "rss-auto-created", zap.NewNop())
	feed := &staticFeed{records: []models.FeedRecord{
		{Title: "Release 2.0", Link: "https://ex.com/42", Category: "something else", Description: "changed"},
	}}
	svc := NewSyncService("https://feed", feed, manager, zap.NewNop())

	report, err := svc.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, report.New)
	assert.Equal(t, 0, report.Attempted())
	assert.Empty(t, f.created)
	assert.Equal(t, 0, f.count(api.AddProjectItemMutation))
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	first := models.FeedRecord{Title: "first", Link: "https://x/1"}
	second := models.FeedRecord{Title: "second", Link: "https://x/2"}
	board := &fakeBoard{failTitles: map[string]bool{"second": true}}
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewSyncService("https://feed", &staticFeed{records: []models.FeedRecord{first, second}}, board, zap.New(core))

	report, err := svc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted())
	assert.Equal(t, 1, report.CreatedCount())
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, second, report.Failed()[0].Record)
	assert.Equal(t, []models.FeedRecord{first, second}, board.created)
	assert.Equal(t, 1, logs.FilterMessage("作成済み").Len())
}

func TestRun_FailsFastOnBoardErrors(t *testing.T) {
	records := []models.FeedRecord{{Title: "a", Link: "https://x/a"}}

	t.Run("initialize", func(t *testing.T) {
		board := &fakeBoard{initErr: ErrProjectNotFound}
		svc := NewSyncService("https://feed", &staticFeed{records: records}, board, zap.NewNop())

		_, err := svc.Run(context.Background())

		require.ErrorIs(t, err, ErrProjectNotFound)
		assert.Empty(t, board.created)
	})

	t.Run("existing identities", func(t *testing.T) {
		statusErr := &api.StatusError{StatusCode: 503}
		board := &fakeBoard{existingErr: statusErr}
		svc := NewSyncService("https://feed", &staticFeed{records: records}, board, zap.NewNop())

		_, err := svc.Run(context.Background())

		var got *api.StatusError
		require.True(t, errors.As(err, &got))
		assert.Empty(t, board.created)
	})
}

func TestRun_CancelledDuringFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed := &cancellingFeed{cancel: cancel}
	board := &fakeBoard{}
	svc := NewSyncService("https://feed", feed, board, zap.NewNop())

	_, err := svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, board.initialized)

	_, err = svc.Check(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, board.initialized)
}

func TestCheck_CreatesNothing(t *testing.T) {
	records := []models.FeedRecord{
		{Title: "a", Link: "https://x/a", Description: "<p>hello</p>"},
		{Title: "b", Link: "https://x/b"},
		{Title: "c", Link: "https://x/c"},
		{Title: "d", Link: "https://x/d"},
		{Title: "e", Link: "https://x/e"},
	}
	board := &fakeBoard{existing: fingerprintSet(records[0])}
	core, logs := observer.New(zapcore.DebugLevel)
	svc := NewSyncService("https://feed", &staticFeed{records: records}, board, zap.New(core))

	report, err := svc.Check(context.Background())

	require.NoError(t, err)
	assert.Len(t, report.New, 4)
	assert.Empty(t, board.created)
	assert.Empty(t, report.Results)

	previews := logs.FilterMessage("新規イシューのサンプル (作成しません)").All()
	require.Len(t, previews, PreviewSize)
	assert.Equal(t, "b", previews[0].ContextMap()["title"])

	sample := logs.FilterMessage("最初のRSSアイテムのサンプル").All()
	require.Len(t, sample, 1)
	assert.Equal(t, "hello", sample[0].ContextMap()["description"])
	assert.Equal(t, records[0].Fingerprint(), sample[0].ContextMap()["fingerprint"])
}

func TestCheck_EmptyFeed(t *testing.T) {
	board := &fakeBoard{}
	svc := NewSyncService("https://feed", &staticFeed{}, board, zap.NewNop())

	report, err := svc.Check(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Fetched)
	assert.Equal(t, 0, board.initialized)
}

func TestPreview(t *testing.T) {
	assert.Len(t, Preview(nil), 0)
	assert.Len(t, Preview(make([]models.FeedRecord, 2)), 2)
	assert.Len(t, Preview(make([]models.FeedRecord, 10)), PreviewSize)
}
