package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/ayanobu/nicofetch/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status and history API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	appCtx, err := setup()
	if err != nil {
		return err
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		appCtx.Config.API.Listen = listen
	}
	addr := appCtx.Config.API.Listen
	if addr == "" {
		addr = ":8080"
	}

	openHistory(appCtx)
	defer appCtx.Close()

	e := echo.New()
	api.RegisterRoutes(e, appCtx)

	srv := &http.Server{Addr: addr, Handler: e}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		appCtx.Logger.Info("api server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
