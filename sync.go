package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"
)

type SyncAction string

const (
	ActionWritten SyncAction = "written"
	ActionSkipped SyncAction = "skipped-unchanged"
	ActionFailed  SyncAction = "failed"
	// ActionPending marks an object a dry run would have written.
	ActionPending SyncAction = "pending"
)

type SyncRecord struct {
	Path   string
	Action SyncAction
	Err    error
}

// ResultMap collects one record per source path. Workers add to it
// concurrently.
type ResultMap struct {
	Records map[string]SyncRecord
	lock    *sync.Mutex
}

func NewResultMap() *ResultMap {
	return &ResultMap{
		Records: make(map[string]SyncRecord),
		lock:    new(sync.Mutex),
	}
}

func (r *ResultMap) add(record SyncRecord) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Records[record.Path] = record
}

func (r *ResultMap) AddWritten(key string) {
	r.add(SyncRecord{Path: key, Action: ActionWritten})
}

func (r *ResultMap) AddSkipped(key string) {
	r.add(SyncRecord{Path: key, Action: ActionSkipped})
}

func (r *ResultMap) AddPending(key string) {
	r.add(SyncRecord{Path: key, Action: ActionPending})
}

func (r *ResultMap) AddFailed(key string, result error) {
	r.add(SyncRecord{Path: key, Action: ActionFailed, Err: result})
}

// Paths returns the sorted paths recorded with the given action.
func (r *ResultMap) Paths(action SyncAction) []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	paths := make([]string, 0)
	for key, record := range r.Records {
		if record.Action == action {
			paths = append(paths, key)
		}
	}
	sort.Strings(paths)
	return paths
}

type SyncSummary struct {
	Written  int
	Skipped  int
	Pending  int
	Failed   int
	Failures []SyncRecord
}

func (s SyncSummary) HasFailures() bool {
	return s.Failed > 0
}

func (r *ResultMap) Summary() SyncSummary {
	r.lock.Lock()
	defer r.lock.Unlock()

	summary := SyncSummary{Failures: make([]SyncRecord, 0)}
	for _, record := range r.Records {
		switch record.Action {
		case ActionWritten:
			summary.Written++
		case ActionSkipped:
			summary.Skipped++
		case ActionPending:
			summary.Pending++
		case ActionFailed:
			summary.Failed++
			summary.Failures = append(summary.Failures, record)
		}
	}
	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Path < summary.Failures[j].Path
	})

	return summary
}

func (s SyncSummary) Lines() []string {
	lines := []string{fmt.Sprintf("written: %d, skipped: %d, failed: %d", s.Written, s.Skipped, s.Failed)}
	if s.Pending > 0 {
		lines = append(lines, fmt.Sprintf("pending (dry run): %d", s.Pending))
	}
	for _, failure := range s.Failures {
		lines = append(lines, fmt.Sprintf("  - %s => %s", failure.Path, failure.Err))
	}
	return lines
}

// walkSource lists the tree under root with an explicit stack and hands each
// leaf to visit as soon as it is found. Only a failure to list root itself is
// returned; nested listing failures go to onListErr.
func walkSource(
	ctx context.Context,
	source SourceClient,
	root string,
	visit func(ObjectHandle),
	onListErr func(string, error),
) error {
	rootEntries, err := source.List(ctx, root)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrEnumeration, root, err)
	}

	listed := mapset.NewThreadUnsafeSet(root)
	seen := mapset.NewThreadUnsafeSet[string]()
	pending := rootEntries

	for len(pending) > 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		handle := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		if handle.Kind == Leaf {
			if seen.Add(handle.Path) {
				visit(handle)
			}
			continue
		}

		if !listed.Add(handle.Path) {
			log.Debug(fmt.Sprintf("%s already listed. skipping...", handle.Path))
			continue
		}
		children, listErr := source.List(ctx, handle.Path)
		if listErr != nil {
			onListErr(handle.Path, listErr)
			continue
		}
		pending = append(pending, children...)
	}

	return nil
}

func relativePath(root, objPath string) string {
	root = strings.TrimSuffix(root, "/")
	rel := strings.TrimPrefix(strings.TrimPrefix(objPath, root), "/")
	if rel == "" {
		return path.Base(objPath)
	}
	return rel
}

func destinationPath(sc SyncConfig, objPath string) string {
	if sc.DestinationRoot == "" {
		return objPath
	}
	return path.Join(sc.DestinationRoot, relativePath(sc.Root, objPath))
}

func sameContent(a, b ObjectContent) bool {
	return a.Language == b.Language && bytes.Equal(a.Data, b.Data)
}

func syncObject(
	ctx context.Context,
	source SourceClient,
	destination ObjectClient,
	srcPath, dstPath string,
	dryRun bool,
	resultMap *ResultMap,
	logger *log.Entry,
) {
	srcContent, readErr := source.Read(ctx, srcPath)
	if readErr != nil {
		logger.Warn(fmt.Sprintf("Error reading %s from source: %s", srcPath, readErr))
		resultMap.AddFailed(srcPath, fmt.Errorf("read source: %w", readErr))
		return
	}

	dstContent, dstErr := destination.Read(ctx, dstPath)
	switch {
	case errors.Is(dstErr, ErrNotFound):
		logger.Debug(fmt.Sprintf("%s does not exist in destination", dstPath))
	case dstErr != nil:
		logger.Warn(fmt.Sprintf("Error reading %s from destination: %s", dstPath, dstErr))
		resultMap.AddFailed(srcPath, fmt.Errorf("read destination: %w", dstErr))
		return
	case sameContent(srcContent, dstContent):
		logger.Debug(fmt.Sprintf("%s is in sync, no action required", dstPath))
		resultMap.AddSkipped(srcPath)
		return
	default:
		logger.Info(fmt.Sprintf("%s has been modified, will update", dstPath))
	}

	if dryRun {
		logger.Info(fmt.Sprintf("Dry run: would write %s", dstPath))
		resultMap.AddPending(srcPath)
		return
	}

	if writeErr := destination.Write(ctx, dstPath, srcContent); writeErr != nil {
		logger.Warn(fmt.Sprintf("Error writing %s: %s", dstPath, writeErr))
		resultMap.AddFailed(srcPath, fmt.Errorf("write destination: %w", writeErr))
		return
	}
	logger.Info(fmt.Sprintf("Wrote %s as %s", srcPath, dstPath))
	resultMap.AddWritten(srcPath)
}
