package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jhyu-wv/mantisRssSync/models"
	"github.com/jhyu-wv/mantisRssSync/utils"
)

// PreviewSize はチェックモードで表示する新規イシューの最大件数です
const PreviewSize = 3

// FeedSource はフィードからレコードを取得します
type FeedSource interface {
	Fetch(ctx context.Context, feedURL string) []models.FeedRecord
}

// Board は同期先ボードの操作です
type Board interface {
	Initialize(ctx context.Context) error
	ExistingFingerprints(ctx context.Context) (map[string]struct{}, error)
	CreateFromFeedRecord(ctx context.Context, record models.FeedRecord) models.CreateResult
}

// SyncService はRSSフィードからGitHubプロジェクトへの同期を処理します
type SyncService struct {
	feedURL string
	feed    FeedSource
	board   Board
	logger  *zap.Logger
}

// NewSyncService は新しい同期サービスを作成します
func NewSyncService(feedURL string, feed FeedSource, board Board, logger *zap.Logger) *SyncService {
	return &SyncService{
		feedURL: feedURL,
		feed:    feed,
		board:   board,
		logger:  logger,
	}
}

// FilterNew は既存フィンガープリントに含まれないレコードをフィード順のまま返します
func FilterNew(records []models.FeedRecord, existing map[string]struct{}) []models.FeedRecord {
	fresh := make([]models.FeedRecord, 0, len(records))
	for _, r := range records {
		if _, ok := existing[r.Fingerprint()]; !ok {
			fresh = append(fresh, r)
		}
	}
	return fresh
}

// prepare はフィード取得、ボード初期化、重複除外までを行います。
// フィードが空の場合は ok=false を返します。
func (s *SyncService) prepare(ctx context.Context, report *models.SyncReport, logger *zap.Logger, onFetched func([]models.FeedRecord)) (bool, error) {
	records := s.feed.Fetch(ctx, s.feedURL)
	// 取得中のキャンセルはフィードが空として扱わない
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("フィード取得中断: %w", err)
	}
	report.Fetched = len(records)
	if len(records) == 0 {
		logger.Info("処理するRSSアイテムがありません")
		return false, nil
	}
	if onFetched != nil {
		onFetched(records)
	}

	if err := s.board.Initialize(ctx); err != nil {
		return false, fmt.Errorf("プロジェクト初期化エラー: %w", err)
	}

	existing, err := s.board.ExistingFingerprints(ctx)
	if err != nil {
		return false, fmt.Errorf("既存イシュー取得エラー: %w", err)
	}
	report.Existing = len(existing)
	report.New = FilterNew(records, existing)

	logger.Info("新規イシュー判定完了",
		zap.Int("fetched", report.Fetched),
		zap.Int("existing", report.Existing),
		zap.Int("new", len(report.New)))
	return true, nil
}

func (s *SyncService) newReport() (models.SyncReport, *zap.Logger) {
	report := models.SyncReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	return report, s.logger.With(zap.String("run_id", report.RunID))
}

// Run は同期処理全体を実行します。
// 各イシューの作成失敗は結果に記録され、処理は継続されます。
func (s *SyncService) Run(ctx context.Context) (models.SyncReport, error) {
	report, logger := s.newReport()
	defer utils.TrackTime(logger, report.StartedAt, "同期処理全体")

	logger.Info("=== GitHub RSS Issue Creator 開始 ===")

	ok, err := s.prepare(ctx, &report, logger, nil)
	if err != nil || !ok {
		report.Elapsed = time.Since(report.StartedAt)
		return report, err
	}

	if len(report.New) == 0 {
		logger.Info("新規イシューはありません")
		report.Elapsed = time.Since(report.StartedAt)
		return report, nil
	}

	logger.Info("新規イシューを作成します", zap.Int("count", len(report.New)))

	report.Results = make([]models.CreateResult, 0, len(report.New))
	for _, record := range report.New {
		result := s.board.CreateFromFeedRecord(ctx, record)
		report.Results = append(report.Results, result)
		if result.Created() {
			logger.Info("作成済み", zap.String("url", result.URL))
		}
	}

	report.Elapsed = time.Since(report.StartedAt)
	logger.Info("=== 完了 ===",
		zap.Int("attempted", report.Attempted()),
		zap.Int("created", report.CreatedCount()),
		zap.Int("failed", len(report.Failed())))
	return report, nil
}

// Check はイシューを作成せずに、取得と重複除外までを確認します
func (s *SyncService) Check(ctx context.Context) (models.SyncReport, error) {
	report, logger := s.newReport()
	defer utils.TrackTime(logger, report.StartedAt, "チェック")

	logger.Info("=== テストモード開始 ===")

	ok, err := s.prepare(ctx, &report, logger, func(records []models.FeedRecord) {
		sample := records[0]
		logger.Info("最初のRSSアイテムのサンプル",
			zap.String("title", sample.Title),
			zap.String("link", sample.Link),
			zap.String("category", sample.Category),
			zap.String("fingerprint", sample.Fingerprint()),
			zap.String("description", utils.Truncate(utils.PlainText(sample.Description), 120)))
	})
	if err != nil || !ok {
		report.Elapsed = time.Since(report.StartedAt)
		return report, err
	}

	for i, record := range Preview(report.New) {
		logger.Info("新規イシューのサンプル (作成しません)",
			zap.Int("no", i+1),
			zap.String("title", record.Title))
	}

	report.Elapsed = time.Since(report.StartedAt)
	logger.Info("=== テスト完了 ===")
	return report, nil
}

// Preview は先頭から最大 PreviewSize 件を返します
func Preview(records []models.FeedRecord) []models.FeedRecord {
	if len(records) > PreviewSize {
		return records[:PreviewSize]
	}
	return records
}
