package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"SceneToVideo-server/routers"
	"SceneToVideo-server/routers/api"
	"SceneToVideo-server/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func server(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http api and queue processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(a)
		},
	}
}

func runServer(a *app) error {
	cfg := a.cfg
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	log := zerolog.Ctx(ctx)

	d, err := wire(cfg)
	if err != nil {
		return err
	}
	queue := service.NewQueue(cfg.Redis, cfg.Generation)
	defer queue.Close()

	processor := service.NewProcessor(d.store, d.engine)
	go func() {
		if err := processor.Run(ctx, cfg.Redis, cfg.Server.Concurrency); err != nil {
			log.Error().Err(err).Msg("processor stopped")
			cancel()
		}
	}()

	r := routers.InitRouter(&api.Handler{
		Store:      d.store,
		Queue:      queue,
		Polls:      d.engine.PollRegistry(),
		Signer:     d.storage,
		Generation: cfg.Generation,
	})
	srv := &http.Server{
		Handler:           r,
		Addr:              cfg.Server.Port,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.Port).Msg("start http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")
	shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("server shutdown")
	return nil
}
