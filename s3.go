package remotefs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client abstracts the S3 API operations used by [S3Fetcher].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Fetcher fetches byte ranges of objects stored in Amazon S3 or any
// S3-compatible object store (MinIO, R2, etc.).
//
// Paths are mapped to keys under an optional prefix. The caller configures
// the client (credentials, region, endpoint).
type S3Fetcher struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3Fetcher creates an S3-backed Fetcher. Prefix is prepended to all
// object keys; pass "" for no prefix.
func NewS3Fetcher(client S3Client, bucket, prefix string) *S3Fetcher {
	return &S3Fetcher{client: client, bucket: bucket, prefix: prefix}
}

// key builds the full S3 object key for the given path.
func (s *S3Fetcher) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// Length returns the object size via HeadObject.
func (s *S3Fetcher) Length(ctx context.Context, path string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return 0, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, s.key(path))
		}
		return 0, err
	}
	if out.ContentLength == nil {
		return 0, fmt.Errorf("s3://%s/%s: HeadObject returned no content length", s.bucket, s.key(path))
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Fetch returns bytes [from, to) of the object via a ranged GetObject.
func (s *S3Fetcher) Fetch(ctx context.Context, path string, from, to int64) ([]byte, error) {
	if from < 0 || to <= from {
		return nil, fmt.Errorf("%w: [%d, %d) of %s", ErrInvalidRange, from, to, path)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", from, to-1)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, s.key(path))
		}
		return nil, err
	}
	defer out.Body.Close()

	buf := make([]byte, to-from)
	if _, err := io.ReadFull(out.Body, buf); err != nil {
		return nil, fmt.Errorf("s3://%s/%s [%d, %d): %w", s.bucket, s.key(path), from, to, err)
	}
	return buf, nil
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// Compile-time interface check.
var _ Fetcher = (*S3Fetcher)(nil)
