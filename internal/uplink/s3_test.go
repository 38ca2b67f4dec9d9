package uplink

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/chunkrelay/internal/chunk"
)

type fakeUploader struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(input.Body)
	f.inputs = append(f.inputs, input)
	f.bodies = append(f.bodies, body)
	return &manager.UploadOutput{Key: input.Key}, nil
}

type statusErr struct{ code int }

func (e statusErr) Error() string       { return "status error" }
func (e statusErr) HTTPStatusCode() int { return e.code }

func newTestS3Channel(up s3Uploader) *S3Channel {
	return &S3Channel{
		uploader: up,
		bucket:   "crash-bucket",
		prefix:   "fleet",
		device:   "dev01",
		now:      func() time.Time { return time.Unix(0, 42) },
	}
}

func TestS3ChannelUploadsChunk(t *testing.T) {
	up := &fakeUploader{}
	ch := newTestS3Channel(up)
	require.Equal(t, "s3", ch.Name())
	require.NoError(t, ch.Send(context.Background(), []byte("chunk-bytes")))

	require.Len(t, up.inputs, 1)
	in := up.inputs[0]
	require.Equal(t, "crash-bucket", aws.ToString(in.Bucket))
	key := aws.ToString(in.Key)
	require.True(t, strings.HasPrefix(key, "fleet/dev01/00000000000000000042-"), key)
	require.True(t, strings.HasSuffix(key, ".chunk"))
	require.Equal(t, []byte("chunk-bytes"), up.bodies[0])
}

func TestS3ChannelKeysAreUnique(t *testing.T) {
	ch := newTestS3Channel(&fakeUploader{})
	require.NotEqual(t, ch.objectKey(), ch.objectKey())
}

func TestS3ChannelErrorCarriesStatus(t *testing.T) {
	ch := newTestS3Channel(&fakeUploader{err: statusErr{code: 403}})
	err := ch.Send(context.Background(), []byte("x"))
	require.True(t, IsTransportError(err))
	require.Equal(t, 403, chunk.TransportCode(err))

	ch = newTestS3Channel(&fakeUploader{err: errors.New("dial tcp: refused")})
	err = ch.Send(context.Background(), []byte("x"))
	require.True(t, IsTransportError(err))
	require.Zero(t, chunk.TransportCode(err))
}

func TestNewS3ChannelValidation(t *testing.T) {
	_, err := NewS3Channel(s3.New(s3.Options{Region: "us-east-1"}), "", "p", "dev")
	require.ErrorIs(t, err, chunk.ErrInvalidArgument)
}
