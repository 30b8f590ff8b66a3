package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestHandler(t *testing.T, source SourceClient, destination ObjectClient, sc SyncConfig) *SyncHandler {
	t.Helper()
	if sc.Source == "" {
		sc.Source = "src"
	}
	if sc.Destination == "" {
		sc.Destination = "dst"
	}
	if sc.Name == "" {
		sc.Name = t.Name()
	}
	handler, err := NewSyncHandler(source, destination, sc, 1, nil)
	assert.Nil(t, err)
	return handler
}

func TestEmptyDestinationWrittenThenSkipped(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x", "/b": "y"})
	destination := NewMockObjectClient(nil)
	handler := newTestHandler(t, source, destination, SyncConfig{})

	first, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/a", "/b"}, first.Paths(ActionWritten))
	assert.Equal(t, "x", destination.Content("/a"))
	assert.Equal(t, "y", destination.Content("/b"))

	second, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Len(t, second.Paths(ActionWritten), 0)
	assert.Equal(t, []string{"/a", "/b"}, second.Paths(ActionSkipped))
	assert.Len(t, destination.Writes(), 2)
}

func TestIdenticalDestinationNotWritten(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x"})
	destination := NewMockObjectClient(map[string]string{"/a": "x"})
	handler := newTestHandler(t, source, destination, SyncConfig{})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/a"}, resultMap.Paths(ActionSkipped))
	assert.Len(t, destination.Writes(), 0)
}

func TestWriteFailureRecordedAndRunContinues(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x", "/b": "y"})
	destination := NewMockObjectClient(nil).FailWrite("/a", errors.New("quota exceeded"))
	handler := newTestHandler(t, source, destination, SyncConfig{})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	summary := resultMap.Summary()
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Written)
	assert.Equal(t, "/a", summary.Failures[0].Path)
	assert.ErrorContains(t, summary.Failures[0].Err, "quota exceeded")
	assert.Equal(t, "y", destination.Content("/b"))
}

func TestReadFailureRecordedAndRunContinues(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x", "/b": "y"}).
		FailRead("/b", errors.New("timeout"))
	destination := NewMockObjectClient(nil)
	handler := newTestHandler(t, source, destination, SyncConfig{})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/a"}, resultMap.Paths(ActionWritten))
	assert.Equal(t, []string{"/b"}, resultMap.Paths(ActionFailed))
	assert.Equal(t, "", destination.Content("/b"))
}

func TestSourceEnumerationFailureAborts(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x"}).
		FailList("/", errors.New("401 unauthorized"))
	destination := NewMockObjectClient(nil)
	handler := newTestHandler(t, source, destination, SyncConfig{})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.ErrorIs(t, syncErr, ErrEnumeration)
	assert.Len(t, resultMap.Records, 0)
	assert.Len(t, destination.Writes(), 0)
}

func TestExtraDestinationObjectsUntouched(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x"})
	destination := NewMockObjectClient(map[string]string{"/a": "old", "/keep/me": "mine"})
	handler := newTestHandler(t, source, destination, SyncConfig{})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/a"}, resultMap.Paths(ActionWritten))
	assert.Equal(t, "mine", destination.Content("/keep/me"))
	assert.Equal(t, []string{"/a"}, destination.Writes())
	assert.Equal(t, 2, destination.Len())
}

func TestEachLeafReadOncePerPass(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x", "/dir/b": "y"})
	destination := NewMockObjectClient(nil)
	handler := newTestHandler(t, source, destination, SyncConfig{})

	_, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, 1, source.Reads("/a"))
	assert.Equal(t, 1, source.Reads("/dir/b"))
}

func TestNestedListFailureIsRecordedAgainstContainer(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x", "/broken/b": "y"}).
		FailList("/broken", errors.New("forbidden"))
	destination := NewMockObjectClient(nil)
	handler := newTestHandler(t, source, destination, SyncConfig{})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/a"}, resultMap.Paths(ActionWritten))
	assert.Equal(t, []string{"/broken"}, resultMap.Paths(ActionFailed))
}

func TestFilesMatchingExclusionNotWritten(t *testing.T) {
	source := NewMockObjectClient(map[string]string{
		"/folder2/not-real-file":      "x",
		"/folder2/somewhat-real-file": "y",
		"/scratch/tmp.py":             "z",
	})
	destination := NewMockObjectClient(nil)
	handler := newTestHandler(t, source, destination, SyncConfig{
		Exclude: []string{"not-real-file", "scratch/"},
	})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/folder2/somewhat-real-file"}, resultMap.Paths(ActionWritten))
	assert.Equal(t, "", destination.Content("/folder2/not-real-file"))
}

func TestIncludePatternsLimitSync(t *testing.T) {
	source := NewMockObjectClient(map[string]string{
		"/etl/load.py":   "x",
		"/etl/notes.md":  "y",
		"/deep/a/b/c.py": "z",
	})
	destination := NewMockObjectClient(nil)
	handler := newTestHandler(t, source, destination, SyncConfig{Include: []string{"**/*.py"}})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/deep/a/b/c.py", "/etl/load.py"}, resultMap.Paths(ActionWritten))
}

func TestInvalidIncludePatternRejected(t *testing.T) {
	_, err := NewSyncHandler(NewMockObjectClient(nil), NewMockObjectClient(nil), SyncConfig{Include: []string{"[a-"}}, 1, nil)

	assert.ErrorContains(t, err, "invalid include pattern")
}

func TestDestinationRootMapping(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/repo/etl/load": "x", "/repo/readme": "y"})
	destination := NewMockObjectClient(nil)
	handler := newTestHandler(t, source, destination, SyncConfig{Root: "/repo", DestinationRoot: "/Users/ana@example.com"})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/repo/etl/load", "/repo/readme"}, resultMap.Paths(ActionWritten))
	assert.Equal(t, "x", destination.Content("/Users/ana@example.com/etl/load"))
	assert.Equal(t, "y", destination.Content("/Users/ana@example.com/readme"))
}

func TestRelativeRootsAreNormalised(t *testing.T) {
	source := &GitSource{fs: newTestWorktree(t, map[string]string{
		"notebooks/a.py":  "print(1)",
		"notebooks/b.sql": "select 1",
	})}
	destination := NewMockObjectClient(nil)
	handler := newTestHandler(t, source, destination, SyncConfig{
		Root:            "notebooks",
		DestinationRoot: "Users/u/",
		Include:         []string{"*.py"},
	})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/notebooks/a.py"}, resultMap.Paths(ActionWritten))
	assert.Equal(t, "print(1)", destination.Content("/Users/u/a.py"))
	assert.Equal(t, 1, destination.Len())
}

func TestDryRunNeverWrites(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x", "/b": "y"})
	destination := NewMockObjectClient(map[string]string{"/b": "y"})
	handler := newTestHandler(t, source, destination, SyncConfig{DryRun: true})

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/a"}, resultMap.Paths(ActionPending))
	assert.Equal(t, []string{"/b"}, resultMap.Paths(ActionSkipped))
	assert.Len(t, destination.Writes(), 0)
}

func TestSyncRoutineErrorsWhenAnotherIsRunning(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x"})
	destination := NewMockObjectClient(nil)
	handler := newTestHandler(t, source, destination, SyncConfig{})

	handler.lock.Lock()
	defer handler.lock.Unlock()
	resultMap, syncErr := handler.Sync(context.Background())

	assert.ErrorIs(t, syncErr, ErrSyncLocked)
	assert.ErrorContains(t, syncErr, "Unable to acquire sync lock")
	assert.Len(t, resultMap.Records, 0)
	assert.Len(t, destination.Writes(), 0)
}

func TestConcurrencyIsBounded(t *testing.T) {
	objects := make(map[string]string)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		objects["/"+name] = name
	}
	source := NewMockObjectClient(objects).WithDelay(20 * time.Millisecond)
	destination := NewMockObjectClient(nil)
	handler, err := NewSyncHandler(source, destination, SyncConfig{Source: "src", Destination: "dst"}, 3, nil)
	assert.Nil(t, err)

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Len(t, resultMap.Paths(ActionWritten), 8)
	assert.LessOrEqual(t, source.MaxInFlight(), int64(3))
	assert.Greater(t, source.MaxInFlight(), int64(1))
}

func TestSyncFailuresNotified(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x"})
	destination := NewMockObjectClient(nil).FailWrite("/a", errors.New("denied"))
	snsClient := NewMockSNSClient()
	notifier := &SNSNotifier{Client: snsClient, Topic: "mock-topic"}
	handler, err := NewSyncHandler(source, destination, SyncConfig{Source: "prod", Destination: "dev"}, 1, notifier)
	assert.Nil(t, err)

	_, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Len(t, snsClient.PublishRequests, 1)
}

func TestNotifyErrorDoesNotFailSync(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x"})
	destination := NewMockObjectClient(nil).FailWrite("/a", errors.New("denied"))
	snsClient := NewMockSNSClient()
	snsClient.publishErr = errors.New("topic not found")
	handler, err := NewSyncHandler(source, destination, SyncConfig{Source: "prod", Destination: "dev"}, 1, &SNSNotifier{Client: snsClient, Topic: "gone"})
	assert.Nil(t, err)

	resultMap, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, []string{"/a"}, resultMap.Paths(ActionFailed))
	assert.Len(t, snsClient.PublishRequests, 1)
}

func TestSyncMetricsObserved(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x", "/b": "y"})
	destination := NewMockObjectClient(map[string]string{"/b": "y"})
	handler := newTestHandler(t, source, destination, SyncConfig{Name: "metrics-job"})
	written := metricObjectCount.WithLabelValues("metrics-job", string(ActionWritten))
	skipped := metricObjectCount.WithLabelValues("metrics-job", string(ActionSkipped))
	writtenBefore := testutil.ToFloat64(written)
	skippedBefore := testutil.ToFloat64(skipped)

	_, syncErr := handler.Sync(context.Background())

	assert.Nil(t, syncErr)
	assert.Equal(t, writtenBefore+1, testutil.ToFloat64(written))
	assert.Equal(t, skippedBefore+1, testutil.ToFloat64(skipped))
}

func TestRunHandlerReportsFailures(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x"})
	destination := NewMockObjectClient(nil).FailWrite("/a", errors.New("denied"))
	handler := newTestHandler(t, source, destination, SyncConfig{Name: "failing"})

	err := runHandler(context.Background(), handler, false)

	assert.ErrorContains(t, err, "sync failing: 1 objects failed")
}
