package main

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// MemoryStore is an ObjectClient held in memory. Failures seen while filling
// it from another source are replayed to its readers.
type MemoryStore struct {
	lock     sync.RWMutex
	objects  map[string]ObjectContent
	readErrs map[string]error
	listErrs map[string]error
}

func NewMemoryStore(objects map[string]ObjectContent) *MemoryStore {
	store := &MemoryStore{
		objects:  make(map[string]ObjectContent),
		readErrs: make(map[string]error),
		listErrs: make(map[string]error),
	}
	for key, content := range objects {
		store.objects[cleanObjectPath(key)] = copyContent(content)
	}
	return store
}

func cleanObjectPath(p string) string {
	return path.Clean("/" + p)
}

func copyContent(content ObjectContent) ObjectContent {
	data := make([]byte, len(content.Data))
	copy(data, content.Data)
	return ObjectContent{Data: data, Language: content.Language}
}

func (m *MemoryStore) List(_ context.Context, dirPath string) ([]ObjectHandle, error) {
	dirPath = cleanObjectPath(dirPath)

	m.lock.RLock()
	defer m.lock.RUnlock()

	if listErr, ok := m.listErrs[dirPath]; ok {
		return nil, listErr
	}
	if _, ok := m.objects[dirPath]; ok {
		return []ObjectHandle{{Path: dirPath, Kind: Leaf}}, nil
	}

	prefix := strings.TrimSuffix(dirPath, "/") + "/"
	containers := mapset.NewThreadUnsafeSet[string]()
	handles := make([]ObjectHandle, 0)
	for key := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			if child := prefix + rest[:idx]; containers.Add(child) {
				handles = append(handles, ObjectHandle{Path: child, Kind: Container})
			}
			continue
		}
		handles = append(handles, ObjectHandle{Path: key, Kind: Leaf})
	}
	for key := range m.listErrs {
		if path.Dir(key) == dirPath && containers.Add(key) {
			handles = append(handles, ObjectHandle{Path: key, Kind: Container})
		}
	}

	if len(handles) == 0 && dirPath != "/" {
		return nil, fmt.Errorf("list %s: %w", dirPath, ErrNotFound)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Path < handles[j].Path })

	return handles, nil
}

func (m *MemoryStore) Read(_ context.Context, objPath string) (ObjectContent, error) {
	objPath = cleanObjectPath(objPath)

	m.lock.RLock()
	defer m.lock.RUnlock()

	if readErr, ok := m.readErrs[objPath]; ok {
		return ObjectContent{}, readErr
	}
	content, ok := m.objects[objPath]
	if !ok {
		return ObjectContent{}, fmt.Errorf("%s: %w", objPath, ErrNotFound)
	}

	return copyContent(content), nil
}

func (m *MemoryStore) Write(_ context.Context, objPath string, content ObjectContent) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.objects[cleanObjectPath(objPath)] = copyContent(content)
	return nil
}

func (m *MemoryStore) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.objects)
}

// snapshotSource copies everything under root into memory so repeated syncs
// from the same source cost a single round of remote calls.
func snapshotSource(ctx context.Context, source SourceClient, root string) (*MemoryStore, error) {
	snapshot := NewMemoryStore(nil)
	leaves := make([]string, 0)

	walkErr := walkSource(ctx, source, root,
		func(handle ObjectHandle) { leaves = append(leaves, handle.Path) },
		func(containerPath string, listErr error) {
			snapshot.listErrs[cleanObjectPath(containerPath)] = listErr
		},
	)
	if walkErr != nil {
		return nil, walkErr
	}

	for _, leaf := range leaves {
		content, readErr := source.Read(ctx, leaf)
		if readErr != nil {
			snapshot.readErrs[cleanObjectPath(leaf)] = readErr
			// keep the path listable so the failure is reported per object
			snapshot.objects[cleanObjectPath(leaf)] = ObjectContent{}
			continue
		}
		snapshot.objects[cleanObjectPath(leaf)] = content
	}

	return snapshot, nil
}
