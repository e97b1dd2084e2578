// internal/config/config.go

// Package config 由環境變數載入服務設定，並提供預設值與驗證。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 可選的儲存後端、提款策略與鎖實作。
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	StrategyNaive      = "naive"
	StrategySerialized = "serialized"
	StrategyOptimistic = "optimistic"

	LockerLocal = "local"
	LockerRedis = "redis"
)

var (
	// ErrInvalidConfig 為所有設定驗證錯誤的共同前綴。
	ErrInvalidConfig = errors.New("invalid config")
)

// Config 為服務與示範程式共用的設定。
type Config struct {
	Env         string        // LEDGER_ENV：production / staging / development / local
	LogLevel    string        // LEDGER_LOG_LEVEL：空白時依 Env 決定
	HTTPAddr    string        // LEDGER_HTTP_ADDR
	Store       string        // LEDGER_STORE
	Strategy    string        // LEDGER_STRATEGY
	Locker      string        // LEDGER_LOCKER
	RedisAddr   string        // LEDGER_REDIS_ADDR
	PostgresDSN string        // LEDGER_POSTGRES_DSN
	DataFile    string        // LEDGER_DATA_FILE：memory store 的 JSON 快照路徑，空白代表不持久化
	RaceDelay   time.Duration // LEDGER_RACE_DELAY：檢查與寫入之間注入的延遲，0 代表不注入
	MaxAttempts int           // LEDGER_MAX_ATTEMPTS：optimistic 策略重試上限，0 代表不限
}

// Default 回傳預設設定。
func Default() Config {
	return Config{
		Env:      "development",
		HTTPAddr: ":8080",
		Store:    StoreMemory,
		Strategy: StrategySerialized,
		Locker:   LockerLocal,
		DataFile: "data.json",
	}
}

// Load 以預設值為基礎，套用環境變數後驗證。
func Load() (Config, error) {
	cfg := Default()

	cfg.Env = getenv("LEDGER_ENV", cfg.Env)
	cfg.LogLevel = getenv("LEDGER_LOG_LEVEL", cfg.LogLevel)
	cfg.HTTPAddr = getenv("LEDGER_HTTP_ADDR", cfg.HTTPAddr)
	cfg.Store = strings.ToLower(getenv("LEDGER_STORE", cfg.Store))
	cfg.Strategy = strings.ToLower(getenv("LEDGER_STRATEGY", cfg.Strategy))
	cfg.Locker = strings.ToLower(getenv("LEDGER_LOCKER", cfg.Locker))
	cfg.RedisAddr = getenv("LEDGER_REDIS_ADDR", cfg.RedisAddr)
	cfg.PostgresDSN = getenv("LEDGER_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.DataFile = getenv("LEDGER_DATA_FILE", cfg.DataFile)

	if v, ok := lookup("LEDGER_RACE_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: LEDGER_RACE_DELAY: %w", ErrInvalidConfig, err)
		}
		cfg.RaceDelay = d
	}
	if v, ok := lookup("LEDGER_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: LEDGER_MAX_ATTEMPTS: %w", ErrInvalidConfig, err)
		}
		cfg.MaxAttempts = n
	}

	return cfg, cfg.Validate()
}

// Validate 檢查欄位組合是否合法。
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: LEDGER_REDIS_ADDR is required for the redis store", ErrInvalidConfig)
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: LEDGER_POSTGRES_DSN is required for the postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}

	switch c.Strategy {
	case StrategyNaive, StrategySerialized, StrategyOptimistic:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}

	switch c.Locker {
	case LockerLocal:
	case LockerRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: LEDGER_REDIS_ADDR is required for the redis locker", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown locker %q", ErrInvalidConfig, c.Locker)
	}

	if c.RaceDelay < 0 {
		return fmt.Errorf("%w: race delay cannot be negative", ErrInvalidConfig)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// getenv 回傳去除空白後的環境變數值；未設定或為空白時回傳 def。
func getenv(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}
