package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsChunkSize bounds how much of a file the GCS writer buffers before it
// flushes a resumable chunk.
const gcsChunkSize = 8 << 20

// GCS stores files as objects of a Google Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	prefix string
	owner  string
}

// NewGCS uses application default credentials unless opts say otherwise.
// Objects are named <prefix><filename>.
func NewGCS(ctx context.Context, bucket, prefix, owner string, opts ...option.ClientOption) (*GCS, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: prefix,
		owner:  owner,
	}, nil
}

// Create starts a resumable upload. The object only becomes visible once
// the writer is closed; cancelling ctx first discards it.
func (g *GCS) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	objW := g.bucket.Object(g.prefix + name).NewWriter(ctx)
	objW.ChunkSize = gcsChunkSize
	objW.ContentType = "application/octet-stream"

	log.Debug().
		Str("stored_file", fmt.Sprintf("gs://%s/%s%s", g.bucket.BucketName(), g.prefix, name)).
		Msg("object writer opened")
	return objW, nil
}

func (g *GCS) List(ctx context.Context) ([]FileStatus, error) {
	var files []FileStatus
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: g.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		name := strings.TrimPrefix(attrs.Name, g.prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		owner := attrs.Owner
		if owner == "" {
			owner = g.owner
		}
		files = append(files, newFileStatus(name, attrs.Size, attrs.Updated, owner))
	}
	return files, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
