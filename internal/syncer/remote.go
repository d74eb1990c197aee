package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kdbex/kdbexd/internal/models"
)

// RemoteStore is the remote vault copy used for multi-device
// reconciliation. Implementations are last-writer-wins at whole-object
// granularity; there is no content merge.
type RemoteStore interface {
	// LastModified returns the remote object's modification time.
	// ok is false when no remote copy exists yet.
	LastModified(ctx context.Context) (mod time.Time, ok bool, err error)
	// Download returns the remote object's content.
	Download(ctx context.Context) ([]byte, error)
	// Upload replaces the remote object's content.
	Upload(ctx context.Context, data []byte) error
}

// RemoteOptions configures the S3-compatible remote store.
type RemoteOptions struct {
	Bucket          string `json:"bucket"`
	Key             string `json:"key"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

// S3Remote implements RemoteStore on an S3-compatible object store.
type S3Remote struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Remote builds the S3 client from static credentials. A non-empty
// Endpoint switches to path-style addressing for MinIO-style deployments.
func NewS3Remote(ctx context.Context, opts RemoteOptions) (*S3Remote, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Remote{client: client, bucket: opts.Bucket, key: opts.Key}, nil
}

// LastModified queries the object's metadata. An absent object is not an
// error: it just means nothing has been uploaded yet.
func (r *S3Remote) LastModified(ctx context.Context) (time.Time, bool, error) {
	head, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &r.bucket,
		Key:    &r.key,
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("%w: head %s/%s: %v", models.ErrNetwork, r.bucket, r.key, err)
	}
	if head.LastModified == nil {
		return time.Time{}, false, nil
	}
	return *head.LastModified, true, nil
}

// Download fetches the remote vault content.
func (r *S3Remote) Download(ctx context.Context) ([]byte, error) {
	obj, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &r.bucket,
		Key:    &r.key,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %v", models.ErrNetwork, r.bucket, r.key, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s/%s: %v", models.ErrNetwork, r.bucket, r.key, err)
	}
	return data, nil
}

// Upload replaces the remote vault content.
func (r *S3Remote) Upload(ctx context.Context, data []byte) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &r.bucket,
		Key:    &r.key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", models.ErrNetwork, r.bucket, r.key, err)
	}
	return nil
}
