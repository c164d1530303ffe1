package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jhyu-wv/mantisRssSync/api"
	"github.com/jhyu-wv/mantisRssSync/config"
	"github.com/jhyu-wv/mantisRssSync/utils"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:   "auth_check",
		Short: "GitHub API認証確認ツール",
		Long: `GitHub APIの認証情報が正しく設定されているかを確認します。
認証が成功すれば、rss_sync も正常に動作する可能性が高いです。

環境変数:
  GITHUB_TOKEN        GitHub APIトークン (必須)
  GITHUB_API_URL      APIのベースURL (デフォルト: https://api.github.com)`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := utils.NewLogger(utils.LoggerOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			logger.Info("GitHub認証確認ツール")

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
			}
			if err := cfg.ValidateAuth(); err != nil {
				return err
			}

			client := api.NewGitHubClient(cmd.Context(), cfg.GitHubAPIURL, cfg.GitHubToken, cfg.HTTPTimeout)

			logger.Info("GitHub APIの認証を確認しています...")
			login, err := client.Viewer(cmd.Context())
			if err != nil {
				logger.Error("GitHub認証エラー。認証情報を確認してください。", zap.Error(err))
				return err
			}

			logger.Info("GitHub認証成功", zap.String("login", login), zap.String("api_url", cfg.GitHubAPIURL))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML設定ファイルのパス")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
