package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jhyu-wv/mantisRssSync/api"
	"github.com/jhyu-wv/mantisRssSync/config"
	"github.com/jhyu-wv/mantisRssSync/services"
	"github.com/jhyu-wv/mantisRssSync/utils"
)

const envHelp = `
環境変数:
  GITHUB_TOKEN        GitHub APIトークン (必須)
  GITHUB_OWNER        リポジトリ/プロジェクトの所有者 (必須)
  GITHUB_REPO         イシューを作成するリポジトリ (必須)
  PROJECT_NUMBER      GitHub Projects V2 の番号 (必須)
  RSS_FEED_URL        RSSフィードURL (必須, MANTIS_RSS_URL も可)
  DEFAULT_STATUS      ステータスフィールドの初期値
  DEFAULT_MILESTONE   マイルストーンフィールドの初期値
  ISSUE_LABEL         作成したイシューに付けるラベル (デフォルト: rss-auto-created)
  GITHUB_API_URL      APIのベースURL (デフォルト: https://api.github.com)
  HTTP_TIMEOUT        API呼び出しのタイムアウト (デフォルト: 60s)
  LOG_FILE            ログの追加出力先ファイル
`

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "rss_sync",
		Short:         "RSSフィードからGitHubプロジェクトにイシューを作成します",
		Long:          "RSSフィードの新しいアイテムをGitHubイシューとして作成し、Projects V2 ボードに追加します。\n" + envHelp,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), false)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML設定ファイルのパス")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "DEBUGレベルのログを出力する")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "イシューを作成せずに取得と重複判定のみ確認します",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose = true
			return run(cmd.Context(), true)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "実行失敗:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, checkOnly bool) error {
	// 設定の読み込み (不足があればネットワークアクセス前に終了)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(utils.LoggerOptions{Verbose: verbose, LogFile: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("設定読み込み完了",
		zap.String("board", cfg.Board().String()),
		zap.String("feed_url", cfg.FeedURL),
		zap.Bool("check", checkOnly))

	client := api.NewGitHubClient(ctx, cfg.GitHubAPIURL, cfg.GitHubToken, cfg.HTTPTimeout)
	manager := services.NewProjectManager(client, cfg.Board(), cfg.IssueLabel, logger)
	reader := services.NewFeedReader(logger)
	syncService := services.NewSyncService(cfg.FeedURL, reader, manager, logger)

	if checkOnly {
		_, err = syncService.Check(ctx)
	} else {
		_, err = syncService.Run(ctx)
	}
	if err != nil {
		logger.Error("実行失敗", zap.Error(err))
		return err
	}
	return nil
}
