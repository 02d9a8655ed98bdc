package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pictopercept/internal/config"
	logger "pictopercept/internal/logging"
	"pictopercept/internal/router"
	"pictopercept/internal/services"
	"pictopercept/internal/sink"
)

func newServeCmd(projectRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the survey HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *projectRoot)
		},
	}
}

func serve(ctx context.Context, projectRoot string) error {
	conf, v, err := config.Load(projectRoot)
	if err != nil {
		return err
	}

	log, err := logger.Init(projectRoot, conf.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	responseSink, closeSink, err := newSink(projectRoot, conf, log)
	if err != nil {
		log.Error("Failed to open response sink", zap.Error(err), zap.String("driver", conf.Sink.Driver))
		return err
	}
	defer func() {
		if err := closeSink(); err != nil {
			log.Error("Failed to close response sink", zap.Error(err))
		}
	}()

	flusher := sink.NewFlusher(responseSink, log.Named("flush"), flusherOptions(conf.Sink))
	service := services.NewSurveyService(log.Named("survey"), newProvider(projectRoot, conf.Stimuli), flusher, services.Options{
		Limits:              limits(conf.Survey),
		RequireFullSchedule: conf.Survey.RequireFullSchedule,
	})

	config.Watch(v, log, func(updated *config.Config) {
		service.UpdateRules(limits(updated.Survey), updated.Survey.RequireFullSchedule)
		log.Info("Survey rules updated for new sessions",
			zap.Duration("session_length", updated.Survey.SessionLength),
			zap.Int("min_records", updated.Survey.MinRecords),
		)
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reaperDone := services.NewReaper(log.Named("reaper"), service, conf.Reaper.Interval, conf.Reaper.IdleAfter, conf.Reaper.Retention).Start(ctx)

	srv := &http.Server{
		Addr:              ":" + conf.Server.Port,
		Handler:           router.Setup(log, conf, service),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening on http://localhost:" + conf.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Failed to run server", zap.Error(err))
			stop()
			<-reaperDone
			return err
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	<-reaperDone

	// Sessions that met the exit gate but were never flushed get one last chance.
	service.Sweep(shutdownCtx, 0, conf.Reaper.Retention)
	return nil
}
