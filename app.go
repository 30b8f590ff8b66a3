package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	sourceGitHub = "github"
	sourceGit    = "git"
)

// App holds everything built from an AppConfig. It is created once at
// startup and handed to the commands.
type App struct {
	config     AppConfig
	notifier   Notifier
	workspaces map[string]*WorkspaceClient
}

func NewApp(appConfig AppConfig) (*App, error) {
	app := &App{
		config:     appConfig,
		workspaces: make(map[string]*WorkspaceClient),
	}

	if appConfig.Notify.ID != "" {
		notifier, err := NewSNSNotifier(appConfig)
		if err != nil {
			return nil, fmt.Errorf("create notifier: %w", err)
		}
		app.notifier = notifier
	}

	return app, nil
}

func (a *App) workspaceClient(name string) (*WorkspaceClient, error) {
	key := strings.ToLower(name)
	if client, ok := a.workspaces[key]; ok {
		return client, nil
	}

	ref, err := a.config.Workspace(name)
	if err != nil {
		return nil, err
	}
	client := NewWorkspaceClient(ref, a.config.CallTimeout(), a.config.Retries)
	a.workspaces[key] = client

	return client, nil
}

func (a *App) sourceClient(ctx context.Context, name string) (SourceClient, error) {
	switch strings.ToLower(name) {
	case sourceGitHub:
		return NewGitHubSource(a.config.GitHub, a.config.CallTimeout(), a.config.Retries)
	case sourceGit:
		return CloneGitSource(ctx, a.config.Git)
	default:
		return a.workspaceClient(name)
	}
}

func selectJobs[T any](jobs []T, names []string, jobName func(T) string) ([]T, error) {
	if len(names) == 0 {
		return jobs, nil
	}

	selected := make([]T, 0, len(names))
	for _, name := range names {
		found := false
		for _, job := range jobs {
			if jobName(job) == name {
				selected = append(selected, job)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("no job named %s", name)
		}
	}
	return selected, nil
}

func (a *App) syncHandlers(ctx context.Context, names []string, dryRun bool) ([]*SyncHandler, error) {
	jobs, err := selectJobs(a.config.Sync, names, SyncConfig.JobName)
	if err != nil {
		return nil, err
	}

	handlers := make([]*SyncHandler, 0, len(jobs))
	for _, sc := range jobs {
		sc.DryRun = sc.DryRun || dryRun
		source, err := a.sourceClient(ctx, sc.Source)
		if err != nil {
			return nil, fmt.Errorf("sync %s: %w", sc.JobName(), err)
		}
		destination, err := a.workspaceClient(sc.Destination)
		if err != nil {
			return nil, fmt.Errorf("sync %s: %w", sc.JobName(), err)
		}
		handler, err := NewSyncHandler(source, destination, sc, a.config.Concurrency, a.notifier)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, handler)
	}

	return handlers, nil
}

// runHandler runs one pass and folds per-object failures into the error.
// Sources that can be refreshed (git clones) are refreshed first when asked.
func runHandler(ctx context.Context, handler *SyncHandler, refresh bool) error {
	if refresher, ok := handler.source.(interface{ Refresh(context.Context) error }); ok && refresh {
		if err := refresher.Refresh(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrEnumeration, err)
		}
	}

	resultMap, err := handler.Sync(ctx)
	if err != nil {
		return err
	}
	if summary := resultMap.Summary(); summary.HasFailures() {
		return fmt.Errorf("sync %s: %d objects failed", handler.syncConfig.JobName(), summary.Failed)
	}
	return nil
}

func (a *App) RunSync(ctx context.Context, names []string, dryRun bool) error {
	handlers, err := a.syncHandlers(ctx, names, dryRun)
	if err != nil {
		return err
	}

	var errs []error
	for _, handler := range handlers {
		if err := runHandler(ctx, handler, false); err != nil {
			log.Error(err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) RunDeploy(ctx context.Context, names []string) error {
	jobs, err := selectJobs(a.config.Deploy, names, DeployConfig.JobName)
	if err != nil {
		return err
	}

	var errs []error
	for _, dc := range jobs {
		log.Info(fmt.Sprintf("Fetching all files from %s...", dc.Source))
		source, err := a.sourceClient(ctx, dc.Source)
		if err != nil {
			errs = append(errs, fmt.Errorf("deploy %s: %w", dc.JobName(), err))
			continue
		}
		snapshot, err := snapshotSource(ctx, source, deployRoot(dc))
		if err != nil {
			log.Error(fmt.Sprintf("Failed to fetch files from %s. skipping deploy %s: %s", dc.Source, dc.JobName(), err))
			errs = append(errs, err)
			continue
		}
		log.Info(fmt.Sprintf("Fetched %d files from %s", snapshot.Len(), dc.Source))

		for _, wsName := range dc.Workspaces {
			workspace, err := a.workspaceClient(wsName)
			if err != nil {
				errs = append(errs, fmt.Errorf("deploy %s: %w", dc.JobName(), err))
				continue
			}
			result := deployToWorkspace(ctx, snapshot, workspace, dc, a.config.Concurrency, a.notifier)
			for _, failed := range result.Failed() {
				errs = append(errs, fmt.Errorf("deploy %s to %s for %s: %w", dc.JobName(), result.Workspace, failed.Email, failed.Err))
			}
			log.Info(fmt.Sprintf("Deploy to %s completed: %d users, %d failed", result.Workspace, len(result.Users), len(result.Failed())))
		}
	}

	return errors.Join(errs...)
}

// RunClusters copies cluster definitions from one workspace to another. With
// an empty target it only writes the staging file.
func (a *App) RunClusters(ctx context.Context, from, to string) error {
	source, err := a.workspaceClient(from)
	if err != nil {
		return err
	}
	if _, err := exportClusters(ctx, source, a.config.StagingFile); err != nil {
		return err
	}
	if to == "" {
		return nil
	}

	target, err := a.workspaceClient(to)
	if err != nil {
		return err
	}
	staged, err := loadStagedClusters(a.config.StagingFile)
	if err != nil {
		return err
	}
	results, err := recreateClusters(ctx, target, staged)
	if err != nil {
		return err
	}

	failed := results.Failed()
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d clusters failed to create", len(failed), len(results.Created))
	}
	return nil
}

func (a *App) RunBackups(ctx context.Context) error {
	if len(a.config.Backup) == 0 {
		return nil
	}
	bucketClient, err := a.config.ClientFromConfig()
	if err != nil {
		return err
	}

	var errs []error
	for _, bc := range a.config.Backup {
		if err := a.runBackup(ctx, bucketClient, bc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) runBackup(ctx context.Context, bucketClient BucketClient, bc BackupConfig) error {
	workspace, err := a.workspaceClient(bc.Workspace)
	if err != nil {
		return err
	}
	_, err = doBackup(ctx, workspace, bucketClient, bc, a.notifier)
	return err
}
