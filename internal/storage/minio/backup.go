package minio

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/kozaktomas/face-attendance/internal/gallery"
)

const (
	backupPrefix = "gallery/"
	backupSuffix = ".fgal"
	// LatestKey always holds the most recent backup.
	LatestKey = backupPrefix + "latest" + backupSuffix

	maxBackupBytes = 1 << 30
)

// Backup describes one stored gallery snapshot.
type Backup struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BackupKey returns the object key of a backup taken at t.
func BackupKey(t time.Time) string {
	return backupPrefix + t.UTC().Format("20060102T150405.000Z") + backupSuffix
}

// BackupGallery uploads a gallery file under a timestamped key and as LatestKey.
// The data is decoded first so a damaged file is never backed up.
func (c *Client) BackupGallery(ctx context.Context, data []byte, now time.Time) (string, error) {
	if _, err := gallery.Unmarshal(data); err != nil {
		return "", fmt.Errorf("refusing to back up: %w", err)
	}

	key := BackupKey(now)
	if err := c.Upload(ctx, key, data); err != nil {
		return "", err
	}
	if err := c.Upload(ctx, LatestKey, data); err != nil {
		return "", err
	}
	return key, nil
}

// ListBackups returns the timestamped backups, newest first.
func (c *Client) ListBackups(ctx context.Context) ([]Backup, error) {
	var backups []Backup
	for obj := range c.api.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: backupPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list backups: %w", obj.Err)
		}
		if obj.Key == LatestKey || !strings.HasSuffix(obj.Key, backupSuffix) {
			continue
		}
		backups = append(backups, Backup{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	// Keys embed the timestamp, so reverse lexical order is newest first.
	slices.SortFunc(backups, func(a, b Backup) int { return strings.Compare(b.Key, a.Key) })
	return backups, nil
}

// FetchGallery downloads and validates a backup. An empty key selects LatestKey.
// A damaged backup yields an error matching gallery.ErrCorruptStore.
func (c *Client) FetchGallery(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		key = LatestKey
	}
	rc, err := c.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxBackupBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read backup %s: %w", key, err)
	}
	if len(data) > maxBackupBytes {
		return nil, fmt.Errorf("backup %s exceeds %d bytes", key, maxBackupBytes)
	}
	if _, err := gallery.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("backup %s: %w", key, err)
	}
	return data, nil
}
