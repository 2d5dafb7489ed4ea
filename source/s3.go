package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/poiesic/sheetvec/core"
)

// objectGetter is the subset of *s3.Client used by S3Opener.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config describes how to reach the object store. Empty credentials fall
// back to the default AWS credential chain. Endpoint targets S3-compatible
// stores such as MinIO and switches to path-style addressing.
type S3Config struct {
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// S3Opener reads sources addressed as s3://bucket/key.
type S3Opener struct {
	client objectGetter
}

// NewS3Opener wraps an existing S3 client.
func NewS3Opener(client objectGetter) (*S3Opener, error) {
	if client == nil {
		return nil, ErrS3ClientRequired
	}
	return &S3Opener{client: client}, nil
}

// NewS3OpenerFromConfig loads AWS configuration and builds an S3 opener.
func NewS3OpenerFromConfig(ctx context.Context, cfg S3Config) (*S3Opener, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Opener(client)
}

// Open fetches the object named by rawURL.
func (o *S3Opener) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, &core.FetchError{URL: rawURL, Err: err}
	}

	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &core.FetchError{URL: rawURL, Err: fmt.Errorf("s3 get object: %w", err)}
	}
	return out.Body, nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: expected s3://bucket/key", ErrInvalidURL)
	}
	return bucket, key, nil
}
