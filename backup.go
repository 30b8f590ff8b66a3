package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

const paxLanguageKey = "WSSYNC.language"

type archiveEntry struct {
	Path    string
	Content ObjectContent
}

// backupKey names the archive after the exported content, so an unchanged
// tree maps to a key that already exists in the bucket.
func backupKey(bc BackupConfig, entries []archiveEntry) string {
	digest := sha256.New()
	for _, entry := range entries {
		digest.Write([]byte(entry.Path))
		digest.Write([]byte{0})
		digest.Write([]byte(entry.Content.Language))
		digest.Write([]byte{0})
		digest.Write(entry.Content.Data)
		digest.Write([]byte{0})
	}

	keyBase := strings.ReplaceAll(strings.Trim(bc.Root, "/"), "/", "_")
	if keyBase == "" {
		keyBase = "root"
	}
	return fmt.Sprintf("%s_%s_%s.tar.gz", bc.Workspace, keyBase, hex.EncodeToString(digest.Sum(nil))[:16])
}

func collectArchiveEntries(ctx context.Context, source SourceClient, root string) ([]archiveEntry, error) {
	handles := make([]ObjectHandle, 0)
	walkErr := walkSource(ctx, source, root,
		func(handle ObjectHandle) { handles = append(handles, handle) },
		func(containerPath string, listErr error) {
			log.Warn(fmt.Sprintf("Backup skipping %s: %s", containerPath, listErr))
		},
	)
	if walkErr != nil {
		return nil, walkErr
	}

	entries := make([]archiveEntry, 0, len(handles))
	for _, handle := range handles {
		content, readErr := source.Read(ctx, handle.Path)
		if readErr != nil {
			log.Warn(fmt.Sprintf("Backup skipping %s: %s", handle.Path, readErr))
			continue
		}
		entries = append(entries, archiveEntry{Path: handle.Path, Content: content})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return entries, nil
}

func doBackup(
	ctx context.Context,
	source SourceClient,
	client BucketClient,
	bc BackupConfig,
	notifier Notifier,
) (string, error) {
	log.Info(fmt.Sprintf("Backup starting for %s:%s.", bc.Workspace, bc.Root))
	entries, collectErr := collectArchiveEntries(ctx, source, bc.Root)
	if collectErr != nil {
		log.Error(fmt.Sprintf("Backup directory walk failed: %s", collectErr))
		metricBackupCount.WithLabelValues("error").Inc()
		return "", collectErr
	}

	fileKey := backupKey(bc, entries)
	existing, listErr := client.ListObjects(ctx, bc.DestinationBucket)
	if listErr != nil {
		log.Warn(fmt.Sprintf("Unable to list bucket %s, uploading anyway: %s", bc.DestinationBucket, listErr))
	} else if _, ok := existing[fileKey]; ok {
		log.Info(fmt.Sprintf("Backup %s already present in %s. skipping...", fileKey, bc.DestinationBucket))
		metricBackupCount.WithLabelValues("noop").Inc()
		return fileKey, nil
	}

	tarFile, tempErr := os.CreateTemp(os.TempDir(), "wssync_backup_*.tar.gz")
	if tempErr != nil {
		metricBackupCount.WithLabelValues("error").Inc()
		return fileKey, tempErr
	}
	defer os.Remove(tarFile.Name())
	defer tarFile.Close()

	log.Info(fmt.Sprintf("Creating backup tarball: %s", tarFile.Name()))
	putErr := createArchive(entries, tarFile)
	if putErr == nil {
		_, putErr = tarFile.Seek(0, io.SeekStart)
	}
	if putErr == nil {
		putErr = client.UploadFile(ctx, bc.DestinationBucket, fileKey, tarFile)
	}

	var size int64
	if stat, statErr := tarFile.Stat(); statErr == nil {
		size = stat.Size()
	}
	if putErr != nil {
		log.Warn("Backup upload error: ", putErr)
		metricBackupCount.WithLabelValues("error").Inc()
	} else {
		log.Info(fmt.Sprintf("Upload succeded for %s (%d objects, %s)", fileKey, len(entries), humanize.Bytes(uint64(size))))
		metricBackupCount.WithLabelValues("success").Inc()
	}

	if notifier != nil {
		if notifyErr := notifier.NotifyBackupResults(bc, fileKey, size, putErr); notifyErr != nil {
			log.Warn(fmt.Sprintf("Error sending backup notification: %s", notifyErr))
		}
	}

	return fileKey, putErr
}

func createArchive(entries []archiveEntry, buf io.Writer) error {
	gw := gzip.NewWriter(buf)
	tw := tar.NewWriter(gw)

	for _, entry := range entries {
		if err := addToArchive(tw, entry); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func addToArchive(tw *tar.Writer, entry archiveEntry) error {
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     strings.TrimPrefix(entry.Path, "/"),
		Mode:     0o644,
		Size:     int64(len(entry.Content.Data)),
		ModTime:  time.Unix(0, 0),
		Format:   tar.FormatPAX,
	}
	if entry.Content.Language != "" {
		header.PAXRecords = map[string]string{paxLanguageKey: entry.Content.Language}
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(entry.Content.Data)

	return err
}
