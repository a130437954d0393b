package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	minioLib "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// fakeMinio implements minioAPI in memory.
type fakeMinio struct {
	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error
	madeBucket      bool

	objects map[string][]byte
	putErr  error
	getErr  error
	listErr error
	statErr error
}

func newFakeMinio() *fakeMinio {
	return &fakeMinio{bucketExists: true, objects: make(map[string][]byte)}
}

func (f *fakeMinio) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}
func (f *fakeMinio) MakeBucket(_ context.Context, _ string, _ minioLib.MakeBucketOptions) error {
	f.madeBucket = true
	return f.makeBucketErr
}
func (f *fakeMinio) PutObject(_ context.Context, _ string, key string, r io.Reader, _ int64, _ minioLib.PutObjectOptions) (minioLib.UploadInfo, error) {
	if f.putErr != nil {
		return minioLib.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minioLib.UploadInfo{}, err
	}
	f.objects[key] = data
	return minioLib.UploadInfo{Key: key, Size: int64(len(data))}, nil
}
func (f *fakeMinio) GetObject(_ context.Context, _ string, key string, _ minioLib.GetObjectOptions) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(bytes.NewReader(f.objects[key])), nil
}
func (f *fakeMinio) ListObjects(_ context.Context, _ string, opts minioLib.ListObjectsOptions) <-chan minioLib.ObjectInfo {
	ch := make(chan minioLib.ObjectInfo, len(f.objects)+1)
	if f.listErr != nil {
		ch <- minioLib.ObjectInfo{Err: f.listErr}
	}
	for k, v := range f.objects {
		ch <- minioLib.ObjectInfo{Key: k, Size: int64(len(v))}
	}
	close(ch)
	return ch
}
func (f *fakeMinio) StatObject(_ context.Context, _ string, key string, _ minioLib.StatObjectOptions) (minioLib.ObjectInfo, error) {
	if f.statErr != nil {
		return minioLib.ObjectInfo{}, f.statErr
	}
	if _, ok := f.objects[key]; !ok {
		return minioLib.ObjectInfo{}, minioLib.ErrorResponse{Code: "NoSuchKey"}
	}
	return minioLib.ObjectInfo{Key: key}, nil
}

func galleryBytes(t *testing.T, names ...string) []byte {
	t.Helper()
	records := make([]face.Record, len(names))
	for i, n := range names {
		records[i] = face.Record{Name: n, Embedding: []float32{float32(i + 1), 1}}
	}
	data, err := gallery.Marshal(records, gallery.EncodeOptions{})
	require.NoError(t, err)
	return data
}

func TestNewClientWithAPI(t *testing.T) {
	ctx := context.Background()

	t.Run("existing bucket", func(t *testing.T) {
		api := newFakeMinio()
		c, err := NewClientWithAPI(ctx, api, "b")
		require.NoError(t, err)
		assert.Equal(t, "b", c.bucket)
		assert.False(t, api.madeBucket)
	})

	t.Run("creates bucket", func(t *testing.T) {
		api := newFakeMinio()
		api.bucketExists = false
		_, err := NewClientWithAPI(ctx, api, "b")
		require.NoError(t, err)
		assert.True(t, api.madeBucket)
	})

	t.Run("errors", func(t *testing.T) {
		for _, api := range []*fakeMinio{
			{bucketExistsErr: errors.New("boom")},
			{makeBucketErr: errors.New("fail")},
		} {
			c, err := NewClientWithAPI(ctx, api, "b")
			assert.Nil(t, c)
			assert.ErrorContains(t, err, "failed to ensure bucket exists")
		}
	})
}

func TestBackupAndFetch(t *testing.T) {
	ctx := context.Background()
	api := newFakeMinio()
	c, err := NewClientWithAPI(ctx, api, "b")
	require.NoError(t, err)

	first := galleryBytes(t, "Alice")
	second := galleryBytes(t, "Alice", "Bob")
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	k1, err := c.BackupGallery(ctx, first, t0)
	require.NoError(t, err)
	k2, err := c.BackupGallery(ctx, second, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "gallery/20260302T080000.000Z.fgal", k1)

	backups, err := c.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, k2, backups[0].Key)
	assert.Equal(t, k1, backups[1].Key)

	latest, err := c.FetchGallery(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, second, latest)

	old, err := c.FetchGallery(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, first, old)

	ok, err := c.Exists(ctx, LatestKey)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Exists(ctx, "gallery/missing.fgal")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackupGallery_RejectsCorruptData(t *testing.T) {
	ctx := context.Background()
	api := newFakeMinio()
	c, err := NewClientWithAPI(ctx, api, "b")
	require.NoError(t, err)

	_, err = c.BackupGallery(ctx, []byte("not a gallery"), time.Now())
	assert.ErrorIs(t, err, gallery.ErrCorruptStore)
	assert.Empty(t, api.objects)
}

func TestFetchGallery_CorruptBackup(t *testing.T) {
	ctx := context.Background()
	api := newFakeMinio()
	api.objects[LatestKey] = []byte("FGAL garbage that is long enough")
	c, err := NewClientWithAPI(ctx, api, "b")
	require.NoError(t, err)

	_, err = c.FetchGallery(ctx, "")
	assert.ErrorIs(t, err, gallery.ErrCorruptStore)
}

func TestStorageErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("unreachable")

	api := newFakeMinio()
	c, err := NewClientWithAPI(ctx, api, "b")
	require.NoError(t, err)

	api.putErr = boom
	_, err = c.BackupGallery(ctx, galleryBytes(t, "Alice"), time.Now())
	assert.ErrorIs(t, err, boom)

	api.getErr = boom
	_, err = c.FetchGallery(ctx, "")
	assert.ErrorIs(t, err, boom)

	api.listErr = boom
	_, err = c.ListBackups(ctx)
	assert.ErrorIs(t, err, boom)

	api.statErr = boom
	_, err = c.Exists(ctx, LatestKey)
	assert.ErrorIs(t, err, boom)
}
