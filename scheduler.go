package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// newScheduler registers every sync job with an interval and every backup
// with a cron expression. Jobs run in singleton mode, so a slow pass delays
// the next one instead of overlapping it.
func (a *App) newScheduler(ctx context.Context) (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(time.UTC)

	handlers, err := a.syncHandlers(ctx, nil, false)
	if err != nil {
		return nil, err
	}
	for _, handler := range handlers {
		interval := handler.syncConfig.Interval
		if interval <= 0 {
			log.Info(fmt.Sprintf("%s has no interval, not scheduled", handler.syncConfig.JobName()))
			continue
		}
		h := handler
		_, jobErr := scheduler.Every(interval).Seconds().SingletonMode().Do(func() {
			if err := runHandler(ctx, h, true); err != nil {
				log.Error(err)
			}
		})
		if jobErr != nil {
			return nil, fmt.Errorf("schedule %s: %w", h.syncConfig.JobName(), jobErr)
		}
		log.Info(fmt.Sprintf("Scheduled %s every %ds", h.syncConfig.JobName(), interval))
	}

	var bucketClient BucketClient
	for _, bc := range a.config.Backup {
		if bc.At == "" {
			continue
		}
		if bucketClient == nil {
			if bucketClient, err = a.config.ClientFromConfig(); err != nil {
				return nil, err
			}
		}
		backupConfig := bc
		_, jobErr := scheduler.Cron(backupConfig.At).SingletonMode().Do(func() {
			if err := a.runBackup(ctx, bucketClient, backupConfig); err != nil {
				log.Error(err)
			}
		})
		if jobErr != nil {
			return nil, fmt.Errorf("schedule backup of %s: %w", backupConfig.Workspace, jobErr)
		}
		log.Info(fmt.Sprintf("Scheduled backup of %s:%s at %s", backupConfig.Workspace, backupConfig.Root, backupConfig.At))
	}

	if len(scheduler.Jobs()) == 0 {
		return nil, errors.New("nothing to schedule: no sync job has an interval and no backup has a cron expression")
	}

	return scheduler, nil
}

// Schedule runs the scheduler until ctx is cancelled.
func (a *App) Schedule(ctx context.Context) error {
	scheduler, err := a.newScheduler(ctx)
	if err != nil {
		return err
	}

	if a.config.MetricsAddr != "" {
		server := serveMetrics(a.config.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	scheduler.StartAsync()
	log.Info(fmt.Sprintf("Scheduler started with %d jobs", len(scheduler.Jobs())))
	<-ctx.Done()
	scheduler.Stop()
	log.Info("Scheduler stopped")

	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info(fmt.Sprintf("Serving metrics on %s", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(fmt.Sprintf("metrics server: %s", err))
		}
	}()

	return server
}
