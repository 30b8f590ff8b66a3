package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	log "github.com/sirupsen/logrus"
)

const gitDir = ".git"

// GitSource serves the worktree of a shallow in-memory clone.
type GitSource struct {
	config GitConfig
	lock   sync.RWMutex
	fs     billy.Filesystem
}

func CloneGitSource(ctx context.Context, gc GitConfig) (*GitSource, error) {
	if gc.URL == "" {
		return nil, fmt.Errorf("git source requires a url")
	}

	worktree, err := cloneWorktree(ctx, gc)
	if err != nil {
		return nil, err
	}

	return &GitSource{config: gc, fs: worktree}, nil
}

// Refresh replaces the worktree with a fresh clone. On failure the previous
// worktree stays in place.
func (g *GitSource) Refresh(ctx context.Context) error {
	worktree, err := cloneWorktree(ctx, g.config)
	if err != nil {
		return err
	}

	g.lock.Lock()
	defer g.lock.Unlock()
	g.fs = worktree
	return nil
}

func (g *GitSource) worktree() billy.Filesystem {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.fs
}

func cloneWorktree(ctx context.Context, gc GitConfig) (billy.Filesystem, error) {
	opts := &git.CloneOptions{
		URL:          gc.URL,
		Depth:        1,
		SingleBranch: true,
	}
	if gc.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(gc.Ref)
	}
	if gc.Token != "" {
		opts.Auth = &http.BasicAuth{Username: "x-access-token", Password: gc.Token}
	}

	worktree := memfs.New()
	log.Info(fmt.Sprintf("Cloning %s", gc.URL))
	if _, err := git.CloneContext(ctx, memory.NewStorage(), worktree, opts); err != nil {
		return nil, fmt.Errorf("clone %s: %w", gc.URL, err)
	}

	return worktree, nil
}

func (g *GitSource) List(_ context.Context, dirPath string) ([]ObjectHandle, error) {
	entries, err := g.worktree().ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dirPath, err)
	}

	handles := make([]ObjectHandle, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == gitDir {
			continue
		}
		handle := ObjectHandle{Path: path.Join("/", dirPath, entry.Name()), Kind: Leaf}
		if entry.IsDir() {
			handle.Kind = Container
		}
		handles = append(handles, handle)
	}

	return handles, nil
}

func (g *GitSource) Read(_ context.Context, filePath string) (ObjectContent, error) {
	data, err := util.ReadFile(g.worktree(), filePath)
	if errors.Is(err, os.ErrNotExist) {
		return ObjectContent{}, fmt.Errorf("%s: %w", filePath, ErrNotFound)
	}
	if err != nil {
		return ObjectContent{}, err
	}

	return ObjectContent{Data: data, Language: languageForPath(filePath)}, nil
}
