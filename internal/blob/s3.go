// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/mitabo/mitabo/internal/metrics"
)

const s3KeyPrefix = "originals/"

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config selects the bucket.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint (MinIO and friends); path-style
	// addressing is used when set.
	Endpoint string
	// PublicBaseURL prefixes keys for playback URLs. Empty means the
	// virtual-hosted AWS URL.
	PublicBaseURL string
	// TempDir receives local copies for packaging.
	TempDir string
}

// S3 stores originals in a bucket.
type S3 struct {
	client S3API
	cfg    S3Config
}

// NewS3 loads the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3WithClient(client, cfg), nil
}

// NewS3WithClient uses an existing client.
func NewS3WithClient(client S3API, cfg S3Config) *S3 {
	return &S3{client: client, cfg: cfg}
}

func (s *S3) Backend() string { return "s3" }

// Put uploads r under "originals/{8 hex}-{name}".
func (s *S3) Put(ctx context.Context, filename string, r io.Reader) (Object, error) {
	key := s3KeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + "-" + SanitizeFilename(filename)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType(key)),
	}

	// Seekable bodies (multipart temp files) can be signed without buffering.
	var counted *countingReader
	var size int64
	if rs, ok := r.(io.ReadSeeker); ok {
		n, err := rs.Seek(0, io.SeekEnd)
		if err == nil {
			_, err = rs.Seek(0, io.SeekStart)
		}
		if err != nil {
			return Object{}, fmt.Errorf("measure upload: %w", err)
		}
		size = n
		in.Body = rs
		in.ContentLength = aws.Int64(n)
	} else {
		counted = &countingReader{r: r}
		in.Body = counted
	}

	_, err := s.client.PutObject(ctx, in)
	metrics.RecordBlobOp(s.Backend(), "put", err)
	if err != nil {
		return Object{}, fmt.Errorf("s3 put %s: %w", key, err)
	}
	if counted != nil {
		size = counted.n
	}
	return Object{Key: key, URL: s.URL(key), Size: size}, nil
}

// Open streams the object.
func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	metrics.RecordBlobOp(s.Backend(), "get", err)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	return out.Body, nil
}

// LocalPath downloads the object into a temporary file.
func (s *S3) LocalPath(ctx context.Context, key string) (string, func(), error) {
	noop := func() {}
	body, err := s.Open(ctx, key)
	if err != nil {
		return "", noop, err
	}
	defer func() { _ = body.Close() }()

	tmp, err := os.CreateTemp(s.cfg.TempDir, "original-*"+path.Ext(key))
	if err != nil {
		return "", noop, fmt.Errorf("create temp copy: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	_, err = io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("copy %s: %w", key, err)
	}
	return tmp.Name(), cleanup, nil
}

// Delete removes the object.
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	metrics.RecordBlobOp(s.Backend(), "delete", err)
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

// URL is the public URL of key.
func (s *S3) URL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}
