package uplink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/tanq16/chunkrelay/internal/chunk"
)

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Channel stores every chunk as its own object under <prefix>/<device>/.
// Keys sort by capture time so a collector can replay them in pull order.
type S3Channel struct {
	uploader s3Uploader
	bucket   string
	prefix   string
	device   string
	now      func() time.Time
}

func NewS3Channel(client *s3.Client, bucket, prefix, device string) (*S3Channel, error) {
	if bucket == "" || device == "" {
		return nil, fmt.Errorf("%w: bucket and device serial are required", chunk.ErrInvalidArgument)
	}
	return &S3Channel{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		device:   device,
		now:      time.Now,
	}, nil
}

func (c *S3Channel) Name() string { return "s3" }

func (c *S3Channel) objectKey() string {
	return path.Join(c.prefix, c.device, fmt.Sprintf("%020d-%s.chunk", c.now().UnixNano(), uuid.NewString()))
}

func (c *S3Channel) Send(ctx context.Context, data []byte) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.objectKey()),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return chunk.NewTransportError("uplink/s3", statusCode(err), err)
	}
	return nil
}

func statusCode(err error) int {
	var re interface{ HTTPStatusCode() int }
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
