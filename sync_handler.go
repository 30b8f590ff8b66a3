package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SyncHandler runs one sync job: source tree under Root reconciled into the
// destination. A handler never runs two passes at once.
type SyncHandler struct {
	source      SourceClient
	destination ObjectClient
	syncConfig  SyncConfig
	filter      *PathFilter
	notifier    Notifier
	concurrency int
	lock        *sync.Mutex
}

func NewSyncHandler(
	source SourceClient,
	destination ObjectClient,
	syncConfig SyncConfig,
	concurrency int,
	notifier Notifier,
) (*SyncHandler, error) {
	filter, err := NewPathFilter(syncConfig.Include, syncConfig.Exclude)
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", syncConfig.JobName(), err)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	// sources always report absolute paths
	syncConfig.Root = cleanObjectPath(syncConfig.Root)
	if syncConfig.DestinationRoot != "" {
		syncConfig.DestinationRoot = cleanObjectPath(syncConfig.DestinationRoot)
	}

	return &SyncHandler{
		source:      source,
		destination: destination,
		syncConfig:  syncConfig,
		filter:      filter,
		notifier:    notifier,
		concurrency: concurrency,
		lock:        new(sync.Mutex),
	}, nil
}

// Sync performs a single pass. Per-object failures are recorded in the
// returned ResultMap; the error is only set when the pass could not run.
func (s *SyncHandler) Sync(ctx context.Context) (*ResultMap, error) {
	resultMap := NewResultMap()
	sc := s.syncConfig
	jobName := sc.JobName()

	if !s.lock.TryLock() {
		log.Warn("Another sync routine is already running. Skipping.")
		return resultMap, ErrSyncLocked
	}
	defer s.lock.Unlock()

	logger := log.WithFields(log.Fields{"job": jobName, "run": uuid.NewString()})
	logger.Info(fmt.Sprintf("Sync starting for %s.", sc.Root))
	syncStartTime := time.Now()

	var workers errgroup.Group
	workers.SetLimit(s.concurrency)

	walkErr := walkSource(ctx, s.source, sc.Root,
		func(handle ObjectHandle) {
			if !s.filter.Allowed(relativePath(sc.Root, handle.Path)) {
				logger.Info(fmt.Sprintf("%s matches exclusion list. skipping...", handle.Path))
				return
			}
			dstPath := destinationPath(sc, handle.Path)
			workers.Go(func() error {
				syncObject(ctx, s.source, s.destination, handle.Path, dstPath, sc.DryRun, resultMap, logger)
				return nil
			})
		},
		func(containerPath string, listErr error) {
			logger.Warn(fmt.Sprintf("Error listing %s: %s", containerPath, listErr))
			resultMap.AddFailed(containerPath, fmt.Errorf("list: %w", listErr))
		},
	)
	// let in-flight objects finish so their records are not lost
	_ = workers.Wait()

	duration := time.Since(syncStartTime)
	if walkErr != nil {
		logger.Error(fmt.Sprintf("Sync aborted for %s: %s", sc.Root, walkErr))
		observeSync(jobName, resultMap, duration, walkErr)
		return resultMap, walkErr
	}

	summary := resultMap.Summary()
	logger.Info(fmt.Sprintf("Sync complete for %s. Took %s", sc.Root, duration.String()))
	for _, line := range summary.Lines() {
		if summary.HasFailures() {
			logger.Warn(line)
		} else {
			logger.Info(line)
		}
	}
	observeSync(jobName, resultMap, duration, nil)

	if s.notifier != nil {
		if notifyErr := s.notifier.NotifySyncResults(sc, resultMap); notifyErr != nil {
			logger.Warn(fmt.Sprintf("Error sending sync notification: %s", notifyErr))
		}
	}

	return resultMap, nil
}
