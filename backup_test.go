package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readArchive(t *testing.T, buf []byte) map[string]*tar.Header {
	t.Helper()
	gr, err := gzip.NewReader(bytes.NewReader(buf))
	require.NoError(t, err)
	tr := tar.NewReader(gr)

	headers := make(map[string]*tar.Header)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		headers[header.Name] = header
	}
	return headers
}

func TestTarAndUploadSimple(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/Shared/etl/load": "x", "/Shared/readme": "y"})
	mockClient := NewMockBucketClient(map[string]ObjectInfo{})
	mockBackupConfig := BackupConfig{
		Workspace:         "prod",
		Root:              "/Shared",
		DestinationBucket: "notatallarealbucket",
	}

	key, err := doBackup(context.Background(), source, mockClient, mockBackupConfig, nil)

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^prod_Shared_[0-9a-f]{16}\.tar\.gz$`), key)
	require.Len(t, mockClient.UploadRequests, 1)
	assert.Equal(t, "notatallarealbucket", mockClient.UploadRequests[0].Bucket)
	assert.Equal(t, key, mockClient.UploadRequests[0].Key)
	assert.Greater(t, mockClient.UploadRequests[0].Size, int64(0))
}

func TestBackupSkippedWhenKeyExists(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/Shared/a": "x"})
	mockBackupConfig := BackupConfig{Workspace: "prod", Root: "/Shared", DestinationBucket: "bucket"}
	first := NewMockBucketClient(map[string]ObjectInfo{})
	key, err := doBackup(context.Background(), source, first, mockBackupConfig, nil)
	require.NoError(t, err)

	noop := metricBackupCount.WithLabelValues("noop")
	noopBefore := testutil.ToFloat64(noop)
	second := NewMockBucketClient(map[string]ObjectInfo{key: {Size: 10}})
	secondKey, err := doBackup(context.Background(), source, second, mockBackupConfig, nil)

	require.NoError(t, err)
	assert.Equal(t, key, secondKey)
	assert.Len(t, second.UploadRequests, 0)
	assert.Equal(t, noopBefore+1, testutil.ToFloat64(noop))
}

func TestBackupKeyChangesWithContent(t *testing.T) {
	bc := BackupConfig{Workspace: "prod", Root: "/"}
	entries := []archiveEntry{{Path: "/a", Content: ObjectContent{Data: []byte("x"), Language: "PYTHON"}}}
	changed := []archiveEntry{{Path: "/a", Content: ObjectContent{Data: []byte("x"), Language: "SQL"}}}

	key := backupKey(bc, entries)

	assert.Equal(t, key, backupKey(bc, entries))
	assert.NotEqual(t, key, backupKey(bc, changed))
	assert.Regexp(t, regexp.MustCompile(`^prod_root_`), key)
}

func TestBackupListFailureStillUploads(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x"})
	mockClient := NewMockBucketClient(nil)
	mockClient.listErr = errors.New("access denied")

	_, err := doBackup(context.Background(), source, mockClient, BackupConfig{Workspace: "prod", Root: "/", DestinationBucket: "b"}, nil)

	require.NoError(t, err)
	assert.Len(t, mockClient.UploadRequests, 1)
}

func TestBackupEnumerationFailure(t *testing.T) {
	source := NewMockObjectClient(nil).FailList("/Shared", errors.New("forbidden"))
	mockClient := NewMockBucketClient(nil)

	_, err := doBackup(context.Background(), source, mockClient, BackupConfig{Workspace: "prod", Root: "/Shared", DestinationBucket: "b"}, nil)

	assert.ErrorIs(t, err, ErrEnumeration)
	assert.Len(t, mockClient.UploadRequests, 0)
}

func TestBackupUploadFailureNotified(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/a": "x"})
	mockClient := NewMockBucketClient(nil)
	mockClient.uploadErr = errors.New("slow down")
	snsClient := NewMockSNSClient()
	notifier := &SNSNotifier{Client: snsClient, Topic: "mock-topic"}

	_, err := doBackup(context.Background(), source, mockClient, BackupConfig{Workspace: "prod", Root: "/", DestinationBucket: "b"}, notifier)

	assert.ErrorContains(t, err, "slow down")
	require.Len(t, snsClient.PublishRequests, 1)
	assert.Equal(t, "Backup failed: prod:/", *snsClient.PublishRequests[0].Subject)
}

func TestCreateArchiveCarriesLanguage(t *testing.T) {
	entries := []archiveEntry{
		{Path: "/Shared/etl/load", Content: ObjectContent{Data: []byte("df = 1"), Language: "PYTHON"}},
		{Path: "/Shared/notes.txt", Content: ObjectContent{Data: []byte("notes")}},
	}
	var buf bytes.Buffer

	require.NoError(t, createArchive(entries, &buf))

	headers := readArchive(t, buf.Bytes())
	require.Contains(t, headers, "Shared/etl/load")
	assert.Equal(t, "PYTHON", headers["Shared/etl/load"].PAXRecords[paxLanguageKey])
	assert.Equal(t, int64(6), headers["Shared/etl/load"].Size)
	assert.NotContains(t, headers["Shared/notes.txt"].PAXRecords, paxLanguageKey)
}

func TestCollectArchiveEntriesSkipsUnreadable(t *testing.T) {
	source := NewMockObjectClient(map[string]string{"/b": "y", "/a": "x", "/c": "z"}).
		FailRead("/c", errors.New("gone"))

	entries, err := collectArchiveEntries(context.Background(), source, "/")

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/a", entries[0].Path)
	assert.Equal(t, "/b", entries[1].Path)
}
