package main

import (
	"context"
	"os"
	"time"
)

type ObjectKind int

const (
	Leaf ObjectKind = iota
	Container
)

func (k ObjectKind) String() string {
	if k == Container {
		return "container"
	}
	return "leaf"
}

// ObjectHandle is one entry returned by a List call.
type ObjectHandle struct {
	Path string
	Kind ObjectKind
}

// ObjectContent is an exported object: raw text plus its language tag.
type ObjectContent struct {
	Data     []byte
	Language string
}

// SourceClient is anything the sync engine can read from: a workspace, a
// repository tree, a git checkout.
type SourceClient interface {
	List(ctx context.Context, path string) ([]ObjectHandle, error)
	// Read returns ErrNotFound when nothing exists at path.
	Read(ctx context.Context, path string) (ObjectContent, error)
}

// ObjectClient is a SourceClient that can also be written to. Write must be
// all-or-nothing for a single path.
type ObjectClient interface {
	SourceClient
	Write(ctx context.Context, path string, content ObjectContent) error
}

type ObjectInfo struct {
	ModTime time.Time
	Size    int64
}

// BucketClient stores backup archives.
type BucketClient interface {
	ListObjects(ctx context.Context, bucketName string) (map[string]ObjectInfo, error)
	UploadFile(ctx context.Context, bucketName string, key string, file *os.File) error
}
