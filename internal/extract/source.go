//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

const s3Scheme = "s3://"

// Opener opens extract locations. A location is either a local path or
// an s3://bucket/key URI.
type Opener struct {
	cfg     config.S3Config
	options []func(*s3.Options)
	client  *s3.Client
}

// NewOpener returns an Opener. The S3 client is created on first use;
// options are applied to it after the configured endpoint settings.
func NewOpener(cfg config.S3Config, options ...func(*s3.Options)) *Opener {
	return &Opener{cfg: cfg, options: options}
}

// ParseS3URI splits an s3://bucket/key URI. ok is false for anything else.
func ParseS3URI(location string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(location, s3Scheme) {
		return "", "", false
	}
	bucket, key, found := strings.Cut(strings.TrimPrefix(location, s3Scheme), "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// Open opens the location for reading.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, s3Scheme) {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", location, err)
		}
		return f, nil
	}

	bucket, key, ok := ParseS3URI(location)
	if !ok {
		return nil, fmt.Errorf("invalid s3 location %q (want s3://bucket/key)", location)
	}

	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	logging.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Msg("Fetching extract from S3")

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", location, err)
	}
	return out.Body, nil
}

func (o *Opener) s3Client(ctx context.Context) (*s3.Client, error) {
	if o.client != nil {
		return o.client, nil
	}

	region := o.cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	options := append([]func(*s3.Options){func(opts *s3.Options) {
		if o.cfg.PathStyle {
			opts.UsePathStyle = true
		}
		if o.cfg.Endpoint != "" {
			opts.BaseEndpoint = aws.String(o.cfg.Endpoint)
		}
	}}, o.options...)

	o.client = s3.NewFromConfig(awsCfg, options...)
	return o.client, nil
}
