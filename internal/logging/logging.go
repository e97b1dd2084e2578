// internal/logging/logging.go

// Package logging 依執行環境建立 zap logger：
// development / local 使用 development 設定且預設 debug；其他環境使用 production 設定且預設 info。
// 一律輸出 JSON，方便集中收集。
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 為建立 logger 所需的設定。
type Config struct {
	Env   string
	Level string // 空白時依 Env 決定
}

// New 建立 logger，並回傳可於執行期調整的 level。
func New(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := resolveLevel(cfg)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	zc := baseConfig(cfg.Env)
	zc.Level = level
	zc.DisableStacktrace = true

	logger, err := zc.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger: %w", err)
	}
	return logger, level, nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "development", "local":
		return true
	}
	return false
}

func resolveLevel(cfg Config) (zap.AtomicLevel, error) {
	if strings.TrimSpace(cfg.Level) != "" {
		var parsed zapcore.Level
		if err := parsed.Set(cfg.Level); err != nil {
			return zap.AtomicLevel{}, fmt.Errorf("invalid level %q: %w", cfg.Level, err)
		}
		return zap.NewAtomicLevelAt(parsed), nil
	}
	if isDev(cfg.Env) {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel), nil
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
}

func baseConfig(env string) zap.Config {
	zc := zap.NewProductionConfig()
	if isDev(env) {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Encoding = "json"
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zc
}
