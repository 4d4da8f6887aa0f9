package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/mwantia/vfs/v2/data"
)

const directoryContentType = "application/x-directory"

func (sb *S3Backend) Stat(ctx context.Context, key string) (*data.FileStat, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	return sb.statUnsafe(ctx, key)
}

func (sb *S3Backend) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	stat, err := sb.statUnsafe(ctx, key)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, data.ErrIsDirectory
	}

	obj, err := sb.client.GetObject(ctx, sb.bucketName, sb.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, toError(err, key)
	}
	return obj, nil
}

func (sb *S3Backend) ListObjects(ctx context.Context, key string) ([]*data.FileStat, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	stat, err := sb.statUnsafe(ctx, key)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, data.ErrNotDirectory
	}

	// Cancelling stops the listing goroutine on early returns
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := sb.dirPrefix(key)
	var stats []*data.FileStat
	for info := range sb.client.ListObjects(listCtx, sb.bucketName, minio.ListObjectsOptions{Prefix: prefix}) {
		if info.Err != nil {
			return nil, toError(info.Err, key)
		}

		rel := strings.TrimPrefix(info.Key, prefix)
		if rel == "" {
			continue
		}

		if name, isDir := strings.CutSuffix(rel, "/"); isDir {
			modTime := info.LastModified
			if modTime.IsZero() {
				modTime = sb.created
			}
			stats = append(stats, data.NewDirectoryStat(data.JoinPath(key, name), modTime))
			continue
		}
		stats = append(stats, toFileStat(data.JoinPath(key, rel), info))
	}
	return stats, nil
}

func (sb *S3Backend) DeleteObject(ctx context.Context, key string, force bool) error {
	if sb.readOnly {
		return data.ErrReadOnly
	}
	if key == "" {
		return data.ErrPermission
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	stat, err := sb.statUnsafe(ctx, key)
	if err != nil {
		return err
	}

	if !stat.IsDir() {
		return toError(sb.client.RemoveObject(ctx, sb.bucketName, sb.objectKey(key), minio.RemoveObjectOptions{}), key)
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := sb.dirPrefix(key)
	var keys []string
	for info := range sb.client.ListObjects(listCtx, sb.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return toError(info.Err, key)
		}
		if !force && info.Key != prefix {
			return data.ErrDirectoryNotEmpty
		}
		keys = append(keys, info.Key)
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	for result := range sb.client.RemoveObjects(ctx, sb.bucketName, objects, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return toError(result.Err, key)
		}
	}
	return nil
}

func (sb *S3Backend) WriteObject(ctx context.Context, key string, r io.Reader) (*data.FileStat, error) {
	if sb.readOnly {
		return nil, data.ErrReadOnly
	}
	if key == "" {
		return nil, data.ErrIsDirectory
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	if existing, err := sb.statUnsafe(ctx, key); err == nil && existing.IsDir() {
		return nil, data.ErrIsDirectory
	}

	contentType := data.GetMIMEType(key)
	info, err := sb.client.PutObject(ctx, sb.bucketName, sb.objectKey(key), bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: string(contentType),
	})
	if err != nil {
		return nil, toError(err, key)
	}

	modTime := info.LastModified
	if modTime.IsZero() {
		modTime = time.Now()
	}
	stat := data.NewFileStat(key, int64(len(content)), modTime)
	stat.ETag = info.ETag
	return stat, nil
}

func (sb *S3Backend) MkdirAll(ctx context.Context, key string) error {
	if sb.readOnly {
		return data.ErrReadOnly
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	tokens := data.TokenizePath(key)
	for i := range tokens {
		current := strings.Join(tokens[:i+1], data.Separator)

		stat, err := sb.statUnsafe(ctx, current)
		if err == nil {
			if !stat.IsDir() {
				return data.ErrNotDirectory
			}
			continue
		}

		_, err = sb.client.PutObject(ctx, sb.bucketName, sb.dirPrefix(current), bytes.NewReader(nil), 0, minio.PutObjectOptions{
			ContentType: directoryContentType,
		})
		if err != nil {
			return toError(err, current)
		}
	}
	return nil
}

// statUnsafe resolves key against objects, directory markers and prefixes.
// MUST be called while holding at least a read lock.
func (sb *S3Backend) statUnsafe(ctx context.Context, key string) (*data.FileStat, error) {
	if key == "" {
		return data.NewDirectoryStat("", sb.created), nil
	}

	info, err := sb.client.StatObject(ctx, sb.bucketName, sb.objectKey(key), minio.StatObjectOptions{})
	if err == nil {
		return toFileStat(key, info), nil
	}
	if !isNotFound(err) {
		return nil, toError(err, key)
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := sb.dirPrefix(key)
	for info := range sb.client.ListObjects(listCtx, sb.bucketName, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}) {
		if info.Err != nil {
			return nil, toError(info.Err, key)
		}
		modTime := sb.created
		if info.Key == prefix && !info.LastModified.IsZero() {
			modTime = info.LastModified
		}
		return data.NewDirectoryStat(key, modTime), nil
	}
	return nil, data.NotFound(key)
}

func toFileStat(key string, info minio.ObjectInfo) *data.FileStat {
	stat := data.NewFileStat(key, info.Size, info.LastModified)
	if info.ContentType != "" {
		stat.ContentType = data.ContentType(info.ContentType)
	}
	stat.ETag = info.ETag
	return stat
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func toError(err error, key string) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return data.NotFound(key)
	}
	return data.IOFailure(err, key)
}
