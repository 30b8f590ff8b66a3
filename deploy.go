package main

import (
	"context"
	"fmt"
	"path"

	log "github.com/sirupsen/logrus"
)

// WorkspaceAdmin is the part of the workspace API a deploy needs on top of
// object access.
type WorkspaceAdmin interface {
	ObjectClient
	Name() string
	UserExists(ctx context.Context, email string) (bool, error)
	AddUser(ctx context.Context, email string) error
	Mkdirs(ctx context.Context, dirPath string) error
	GrantDirectoryPermission(ctx context.Context, dirPath, user, level string) error
}

type UserDeployResult struct {
	Email     string
	Directory string
	Results   *ResultMap
	Err       error
}

type DeployResult struct {
	Workspace string
	Users     []UserDeployResult
}

func (d DeployResult) Failed() []UserDeployResult {
	failed := make([]UserDeployResult, 0)
	for _, user := range d.Users {
		if user.Err != nil {
			failed = append(failed, user)
		}
	}
	return failed
}

func deployRoot(dc DeployConfig) string {
	return cleanObjectPath(dc.Path)
}

// deployToWorkspace provisions every configured user in the workspace and
// syncs the source content into their directory. A failing user does not stop
// the others.
func deployToWorkspace(
	ctx context.Context,
	source SourceClient,
	workspace WorkspaceAdmin,
	dc DeployConfig,
	concurrency int,
	notifier Notifier,
) DeployResult {
	result := DeployResult{Workspace: workspace.Name(), Users: make([]UserDeployResult, 0, len(dc.Users))}
	log.Info(fmt.Sprintf("Deploying to workspace: %s", workspace.Name()))

	for _, grant := range dc.Users {
		userResult := deployUser(ctx, source, workspace, dc, grant, concurrency, notifier)
		if userResult.Err != nil {
			log.Warn(fmt.Sprintf("Deploy for user %s in %s failed: %s", grant.Email, workspace.Name(), userResult.Err))
		}
		result.Users = append(result.Users, userResult)
	}

	return result
}

func deployUser(
	ctx context.Context,
	source SourceClient,
	workspace WorkspaceAdmin,
	dc DeployConfig,
	grant UserGrant,
	concurrency int,
	notifier Notifier,
) UserDeployResult {
	userDirectory := path.Join(dc.UserRoot, grant.Email)
	result := UserDeployResult{Email: grant.Email, Directory: userDirectory}
	log.Info(fmt.Sprintf("Processing user: %s", grant.Email))

	exists, err := workspace.UserExists(ctx, grant.Email)
	if err != nil {
		result.Err = fmt.Errorf("check user: %w", err)
		return result
	}
	if !exists {
		log.Info(fmt.Sprintf("User %s does not exist in the workspace. Adding user...", grant.Email))
		if err := workspace.AddUser(ctx, grant.Email); err != nil {
			result.Err = fmt.Errorf("add user: %w", err)
			return result
		}
	}

	if err := workspace.Mkdirs(ctx, userDirectory); err != nil {
		result.Err = fmt.Errorf("create directory: %w", err)
		return result
	}

	syncConfig := SyncConfig{
		Name:            fmt.Sprintf("%s/%s/%s", dc.JobName(), workspace.Name(), grant.Email),
		Source:          dc.Source,
		Destination:     workspace.Name(),
		Root:            deployRoot(dc),
		DestinationRoot: userDirectory,
		Include:         dc.Include,
		Exclude:         dc.Exclude,
	}
	handler, err := NewSyncHandler(source, workspace, syncConfig, concurrency, notifier)
	if err != nil {
		result.Err = err
		return result
	}
	log.Info(fmt.Sprintf("Importing files to %s in workspace...", userDirectory))
	result.Results, err = handler.Sync(ctx)
	if err != nil {
		result.Err = fmt.Errorf("sync: %w", err)
		return result
	}

	// permissions are granted even when some objects failed, the directory exists
	log.Info(fmt.Sprintf("Granting %s to %s for %s...", grant.Permission, grant.Email, userDirectory))
	if err := workspace.GrantDirectoryPermission(ctx, userDirectory, grant.Email, grant.Permission); err != nil {
		result.Err = fmt.Errorf("grant permission: %w", err)
		return result
	}

	if summary := result.Results.Summary(); summary.HasFailures() {
		result.Err = fmt.Errorf("%d objects failed to sync", summary.Failed)
	}

	return result
}
