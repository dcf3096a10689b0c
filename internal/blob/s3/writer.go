package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stark3693/stakepoll/internal/domain"
)

// S3 rejects multipart parts below 5 MiB (except the last); part sizes are
// clamped to this floor.
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter against an S3-compatible backend. The
// settlement sweeper writes closed-poll archives through it; archives are
// immutable once written, so there is no delete or overwrite path.
type Writer struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewWriter creates a Writer that uploads into the client's configured
// bucket. One upload manager is shared across calls.
func NewWriter(c *Client) *Writer {
	client := c.S3()
	return &Writer{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   c.Bucket(),
	}
}

// Put uploads data as a single PutObject request. Poll archives are a few KiB
// of JSONL, so this is the path the sweeper takes.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutMultipart streams data through the shared upload manager, which splits
// the payload into parts and uploads them concurrently. Used for bulk audit
// exports that do not fit a single request. partSize is clamped to the S3
// minimum.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}

	_, err := w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(path),
		Body:   data,
	}, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BlobWriter = (*Writer)(nil)
