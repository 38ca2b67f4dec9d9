package ota

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tanq16/chunkrelay/internal/chunk"
)

// VersionMetadataKey is the object metadata entry holding the image version.
const VersionMetadataKey = "version"

type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Resolver serves a single image object from a bucket.
type S3Resolver struct {
	client         s3API
	bucket         string
	key            string
	currentVersion string
}

func NewS3Resolver(client *s3.Client, bucket, key, currentVersion string) (*S3Resolver, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: bucket and key are required", chunk.ErrInvalidArgument)
	}
	return &S3Resolver{client: client, bucket: bucket, key: key, currentVersion: currentVersion}, nil
}

func (r *S3Resolver) Resolve(ctx context.Context) (*Update, error) {
	head, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
	})
	if err != nil {
		return nil, chunk.NewTransportError("ota/s3-head", s3StatusCode(err), err)
	}
	version := head.Metadata[VersionMetadataKey]
	if version != "" && version == r.currentVersion {
		return nil, nil
	}
	return &Update{
		Info: chunk.UpdateInfo{
			TotalSize: aws.ToInt64(head.ContentLength),
			Version:   version,
			URL:       fmt.Sprintf("s3://%s/%s", r.bucket, r.key),
		},
		Fetcher: newRangeFetcher("ota/s3-fetch", r.openObject),
	}, nil
}

func (r *S3Resolver) openObject(ctx context.Context, offset int64) (io.ReadCloser, bool, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	out, err := r.client.GetObject(ctx, input)
	if err != nil {
		return nil, false, chunk.NewTransportError("ota/s3-fetch", s3StatusCode(err), err)
	}
	return out.Body, true, nil
}

func s3StatusCode(err error) int {
	var re interface{ HTTPStatusCode() int }
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
