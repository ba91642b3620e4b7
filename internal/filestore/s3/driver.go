// Package s3 provides an AWS S3 implementation of filestore.BlobStore built
// on aws-sdk-go-v2. Any S3-compatible endpoint works when Endpoint and
// UsePathStyle are set.
package s3

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/filestore"
)

// Driver is an S3 implementation of filestore.BlobStore.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client  *awss3.Client
	presign *awss3.PresignClient
}

// New builds an S3 client from cfg and verifies the credentials by listing buckets.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	d, err := newDriver(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// newDriver builds the clients without touching the network.
func newDriver(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if ep := endpointURL(cfg); ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Driver{
		client:  client,
		presign: awss3.NewPresignClient(client),
	}, nil
}

// buildAWSConfig loads the default AWS config pinned to cfg.Region. Static
// keys take precedence over the default credential chain when both are set.
func buildAWSConfig(ctx context.Context, cfg *filestore.Config) (aws.Config, error) {
	if cfg.Region == "" {
		return aws.Config{}, errs.New(errs.ErrKindInvalidInput, "region is required for the s3 provider")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errs.Wrap(errs.ErrKindConnectionFailed, "failed to load aws config", err)
	}
	return awsCfg, nil
}

// endpointURL turns a host:port endpoint into a URL. Full URLs pass through.
func endpointURL(cfg *filestore.Config) string {
	ep := cfg.Endpoint
	if ep == "" || strings.Contains(ep, "://") {
		return ep
	}
	if cfg.UseSSL {
		return "https://" + ep
	}
	return "http://" + ep
}

// --- filestore.BlobStore implementation ---

// Ping verifies the credentials by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx, &awss3.ListBucketsInput{}); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (d *Driver) Close() error {
	return nil
}

// Sign presigns req locally with the presign client.
func (d *Driver) Sign(ctx context.Context, req filestore.SignRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	expires := awss3.WithPresignExpires(req.TTL)

	switch req.Method {
	case filestore.MethodGet:
		out, err := d.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
		}, expires)
		if err != nil {
			return "", mapError(err, "presign get failed")
		}
		return out.URL, nil

	default:
		in := &awss3.PutObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
		}
		if req.ContentType != "" {
			in.ContentType = aws.String(req.ContentType)
		}
		out, err := d.presign.PresignPutObject(ctx, in, expires)
		if err != nil {
			return "", mapError(err, "presign put failed")
		}
		return out.URL, nil
	}
}

// Delete removes the object at key inside bucket.
func (d *Driver) Delete(ctx context.Context, bucket, key string) error {
	_, err := d.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}
