package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
)

// shutdownTimeout は処理中リクエストの完了を待つ猶予時間
const shutdownTimeout = 10 * time.Second

// ServeAction はHTTP APIサーバを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	port := appCtx.Config.HTTPPort
	if cmd.Int("port") != 0 {
		port = int(cmd.Int("port"))
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: appCtx.Container.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server started", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// シグナル受信後は処理中のリクエストを待ってから停止する
	slog.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバの停止に失敗: %w", err)
	}

	return <-errCh
}
