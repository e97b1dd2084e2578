// cmd/server/main.go

// 本服務提供帳戶開立、提款、交易日誌與並行演練的 RESTful API。
// 此檔案負責載入設定、建立 logger、組裝帳本（儲存後端 / 鎖 / 提款策略），
// 並啟動 HTTP 伺服器；收到 SIGINT/SIGTERM 時優雅關閉並保存快照。

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ledger/internal/app"
	"ledger/internal/config"
	"ledger/internal/logging"
	"ledger/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger 尚未建立，直接輸出到 stderr
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, _, err := logging.New(logging.Config{Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("assemble ledger", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	s := server.NewServer(a.Bank, a.Persist, logger.Named("http"))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("ledger server running", zap.String("addr", cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server", zap.Error(err))
	}

	// 結束前保存狀態
	if err := a.Persist(); err != nil {
		logger.Error("persist on shutdown", zap.Error(err))
	}
}
