package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/imrenagi/go-drive-upload/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioPartSize is the smallest part size S3 accepts; PutObject buffers one
// part at a time when the length is unknown.
const minioPartSize = 5 << 20

// MinIO stores files as objects of an S3 compatible bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	owner  string
}

// NewMinIO connects to cfg.Endpoint and creates the bucket when missing.
func NewMinIO(ctx context.Context, cfg config.MinioConfig, owner string) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return &MinIO{client: client, bucket: cfg.BucketName, owner: owner}, nil
}

// Create streams the written bytes into PutObject through a pipe. Writes
// block until the upload consumed them.
func (m *MinIO) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	return newObjectWriter(ctx, func(r io.Reader) error {
		_, err := m.client.PutObject(ctx, m.bucket, name, r, -1, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
			PartSize:    minioPartSize,
		})
		return err
	}), nil
}

func (m *MinIO) List(ctx context.Context) ([]FileStatus, error) {
	var files []FileStatus
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		owner := obj.Owner.DisplayName
		if owner == "" {
			owner = m.owner
		}
		files = append(files, newFileStatus(obj.Key, obj.Size, obj.LastModified, owner))
	}
	return files, nil
}

// objectWriter feeds put from a pipe running in its own goroutine.
type objectWriter struct {
	ctx  context.Context
	pw   *io.PipeWriter
	done chan error
}

func newObjectWriter(ctx context.Context, put func(io.Reader) error) *objectWriter {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := put(pr)
		// unblocks a writer still waiting on the pipe
		pr.CloseWithError(err)
		done <- err
	}()
	return &objectWriter{ctx: ctx, pw: pw, done: done}
}

func (w *objectWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close ends the object and waits for put to return. When ctx is done the
// reader sees ctx's error instead of EOF, so a partial object is never
// completed.
func (w *objectWriter) Close() error {
	if err := w.ctx.Err(); err != nil {
		w.pw.CloseWithError(err)
		if perr := <-w.done; perr != nil {
			return perr
		}
		return err
	}
	w.pw.Close()
	return <-w.done
}
