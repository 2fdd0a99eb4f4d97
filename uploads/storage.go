// Package uploads accepts files over multipart HTTP and stores them in an
// S3-compatible bucket.
package uploads

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/user/storefront-go/config"
)

// presignExpiry is the lifetime of presigned GET URLs.
const presignExpiry = 15 * time.Minute

// Object is a file to store. Body is read exactly once.
type Object struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
}

// Uploader stores an object and returns a URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// ObjectPutter is the part of *s3.Client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// GetPresigner is the part of *s3.PresignClient the uploader needs.
type GetPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Uploader implements Uploader on an S3 bucket.
type S3Uploader struct {
	bucket        string
	publicBaseURL string
	putter        ObjectPutter
	presigner     GetPresigner
}

// NewS3Uploader builds the S3 clients from the storage configuration.
// Static credentials are used when configured, otherwise the default AWS
// credential chain. A custom endpoint (MinIO and friends) switches to
// path-style addressing.
func NewS3Uploader(ctx context.Context, cfg config.StorageConfig) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3UploaderWithClients(cfg.Bucket, cfg.PublicBaseURL, client, s3.NewPresignClient(client)), nil
}

// NewS3UploaderWithClients creates an uploader from existing clients.
func NewS3UploaderWithClients(bucket, publicBaseURL string, putter ObjectPutter, presigner GetPresigner) *S3Uploader {
	return &S3Uploader{
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		putter:        putter,
		presigner:     presigner,
	}
}

// Upload implements Uploader. The URL is under the public base URL when one
// is configured, otherwise a presigned GET URL.
func (u *S3Uploader) Upload(ctx context.Context, obj Object) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(obj.Key),
		Body:        obj.Body,
		ContentType: aws.String(obj.ContentType),
	}
	if obj.Size > 0 {
		in.ContentLength = aws.Int64(obj.Size)
	}
	if _, err := u.putter.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object %s: %w", obj.Key, err)
	}

	if u.publicBaseURL != "" {
		return u.publicBaseURL + "/" + escapeKey(obj.Key), nil
	}

	req, err := u.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(obj.Key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", obj.Key, err)
	}
	return req.URL, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ Uploader = (*S3Uploader)(nil)
