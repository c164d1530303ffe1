package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jhyu-wv/mantisRssSync/models"
)

var (
	// ErrMissingConfig は必須設定が不足している場合のエラーです
	ErrMissingConfig = errors.New("必須環境変数が不足しています")
	// ErrInvalidConfig は設定値が不正な場合のエラーです
	ErrInvalidConfig = errors.New("設定値が不正です")
)

const (
	DefaultAPIURL      = "https://api.github.com"
	DefaultIssueLabel  = "rss-auto-created"
	DefaultHTTPTimeout = 60 * time.Second
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// GitHub API設定
	GitHubToken  string `yaml:"github_token"`
	GitHubAPIURL string `yaml:"github_api_url"`

	// 同期先
	Owner            string `yaml:"owner"`
	Repo             string `yaml:"repo"`
	ProjectNumber    int    `yaml:"project_number"`
	DefaultStatus    string `yaml:"default_status"`
	DefaultMilestone string `yaml:"default_milestone"`

	// RSS
	FeedURL    string `yaml:"feed_url"`
	IssueLabel string `yaml:"issue_label"`

	HTTPTimeout time.Duration `yaml:"http_timeout"`
	LogFile     string        `yaml:"log_file"`

	// projectNumberSet は PROJECT_NUMBER が明示的に指定されたかを表します
	projectNumberSet bool
}

// Board は同期先のボード設定を返します
func (c *Config) Board() models.BoardConfig {
	return models.BoardConfig{
		Owner:            c.Owner,
		Repo:             c.Repo,
		ProjectNumber:    c.ProjectNumber,
		DefaultStatus:    c.DefaultStatus,
		DefaultMilestone: c.DefaultMilestone,
	}
}

// LoadConfig は設定を読み込み、必須項目を検証します
func LoadConfig(path string) (*Config, error) {
	config, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load は設定ファイル (任意)、.env、環境変数の順に設定を読み込みます。
// 必須項目の検証は行いません。
func Load(path string) (*Config, error) {
	// .envファイルを読み込む (既存の環境変数は上書きしない)
	_ = godotenv.Load()

	config := &Config{
		GitHubAPIURL: DefaultAPIURL,
		IssueLabel:   DefaultIssueLabel,
		HTTPTimeout:  DefaultHTTPTimeout,
	}

	if path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイル読み込みエラー: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: 設定ファイル解析エラー %s: %v", ErrInvalidConfig, path, err)
	}

	var present struct {
		ProjectNumber *int `yaml:"project_number"`
	}
	if err := yaml.Unmarshal(data, &present); err == nil && present.ProjectNumber != nil {
		c.projectNumberSet = true
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.GitHubToken = getEnvWithDefault("GITHUB_TOKEN", c.GitHubToken)
	c.GitHubAPIURL = strings.TrimRight(getEnvWithDefault("GITHUB_API_URL", c.GitHubAPIURL), "/")
	c.Owner = getEnvWithDefault("GITHUB_OWNER", c.Owner)
	c.Repo = getEnvWithDefault("GITHUB_REPO", c.Repo)
	c.DefaultStatus = getEnvWithDefault("DEFAULT_STATUS", c.DefaultStatus)
	c.DefaultMilestone = getEnvWithDefault("DEFAULT_MILESTONE", c.DefaultMilestone)
	c.FeedURL = getEnvWithDefault("RSS_FEED_URL", getEnvWithDefault("MANTIS_RSS_URL", c.FeedURL))
	c.IssueLabel = getEnvWithDefault("ISSUE_LABEL", c.IssueLabel)
	c.LogFile = getEnvWithDefault("LOG_FILE", c.LogFile)

	if v := os.Getenv("PROJECT_NUMBER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PROJECT_NUMBER=%q は整数ではありません", ErrInvalidConfig, v)
		}
		c.ProjectNumber = n
		c.projectNumberSet = true
	}

	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: HTTP_TIMEOUT=%q: %v", ErrInvalidConfig, v, err)
		}
		c.HTTPTimeout = d
	}

	return nil
}

// Validate は必須項目を検証し、不足しているキーをすべて列挙します
func (c *Config) Validate() error {
	var missing []string
	if c.GitHubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if c.Owner == "" {
		missing = append(missing, "GITHUB_OWNER")
	}
	if c.Repo == "" {
		missing = append(missing, "GITHUB_REPO")
	}
	if c.ProjectNumber == 0 && !c.projectNumberSet {
		missing = append(missing, "PROJECT_NUMBER")
	}
	if c.FeedURL == "" {
		missing = append(missing, "RSS_FEED_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	if c.ProjectNumber <= 0 {
		return fmt.Errorf("%w: PROJECT_NUMBER は正の整数である必要があります", ErrInvalidConfig)
	}
	return nil
}

// ValidateAuth はAPI接続に必要な項目のみ検証します
func (c *Config) ValidateAuth() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("%w: GITHUB_TOKEN", ErrMissingConfig)
	}
	return nil
}

// デフォルト値付きで環境変数を取得
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
