package utils

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions はロガー生成時のオプションです
type LoggerOptions struct {
	// Verbose が true の場合 DEBUG レベルまで出力します
	Verbose bool
	// LogFile が指定された場合、標準エラーに加えてファイルにも出力します
	LogFile string
}

// NewLogger は本番用のzapロガーを作成します
func NewLogger(opts LoggerOptions) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if opts.LogFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.LogFile)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, opts.LogFile)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ロガー初期化エラー: %w", err)
	}
	return logger, nil
}

// TrackTime は関数の実行時間を計測して出力するユーティリティです
func TrackTime(logger *zap.Logger, start time.Time, name string) {
	logger.Info(name+" 完了", zap.Duration("elapsed", time.Since(start)))
}
