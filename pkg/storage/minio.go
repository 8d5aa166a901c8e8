package storage

import (
	"context"
	"errors"
	"github.com/minio/minio-go/v7"
	"os"
	"path/filepath"
	"strings"
)

// Mirror copies finished artifacts to object storage.
type Mirror interface {
	UploadDirectory(ctx context.Context, localPath, remotePrefix string) error
	UploadFile(ctx context.Context, localPath, objectName string) error
	RemovePrefix(ctx context.Context, prefix string) error
}

type MinioMirror struct {
	client *minio.Client
	bucket string
}

func NewMinioMirror(client *minio.Client, bucket string) *MinioMirror {
	return &MinioMirror{client: client, bucket: bucket}
}

// UploadDirectory uploads every regular file under localPath, skipping
// dot-directories (encoder staging areas).
func (m *MinioMirror) UploadDirectory(ctx context.Context, localPath, remotePrefix string) error {
	return filepath.Walk(localPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != localPath && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		relativePath, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}

		return m.UploadFile(ctx, path, ObjectName(remotePrefix, relativePath))
	})
}

func (m *MinioMirror) UploadFile(ctx context.Context, localPath, objectName string) error {
	_, err := m.client.FPutObject(ctx, m.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: ContentType(localPath),
	})
	return err
}

func (m *MinioMirror) RemovePrefix(ctx context.Context, prefix string) error {
	// Cancelling stops the lister when listing fails part way.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	toRemove := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	go func() {
		defer close(toRemove)
		for obj := range objects {
			if obj.Err != nil {
				listErr <- obj.Err
				cancel()
				return
			}
			select {
			case toRemove <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for rerr := range m.client.RemoveObjects(ctx, m.bucket, toRemove, minio.RemoveObjectsOptions{}) {
		errs = append(errs, rerr.Err)
	}
	select {
	case err := <-listErr:
		errs = append(errs, err)
	default:
	}
	return errors.Join(errs...)
}

// ObjectName joins path elements with forward slashes regardless of OS.
func ObjectName(prefix, relativePath string) string {
	name := filepath.ToSlash(filepath.Join(prefix, relativePath))
	return strings.TrimPrefix(name, "/")
}

func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return "application/octet-stream"
}
