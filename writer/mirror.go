package writer

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "okxflow/config"
	"okxflow/logger"
)

// Mirror uploads finished parquet artifacts to an S3 bucket so a fleet of
// dumpers can share one artifact store. Uploads happen after the local
// atomic rename, so a mirrored object always corresponds to a complete
// artifact.
type Mirror struct {
	client *s3.Client
	bucket string
	prefix string
	log    *logger.Log

	objectsUploaded int64
	bytesUploaded   int64
}

// NewMirror builds the S3 client from the storage configuration. Static
// credentials take precedence over the default provider chain; a custom
// endpoint with path-style addressing supports S3-compatible stores.
func NewMirror(cfg *appconfig.Config) (*Mirror, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"bucket": cfg.Storage.S3.Bucket,
		"region": cfg.Storage.S3.Region,
	}).Debug("s3 mirror initialized")

	return &Mirror{
		client: client,
		bucket: cfg.Storage.S3.Bucket,
		prefix: strings.Trim(cfg.Storage.S3.Prefix, "/"),
		log:    log,
	}, nil
}

// Upload copies the artifact at localPath to the bucket under relKey, which
// is the artifact path relative to the local save directory. Upload failures
// do not remove the local artifact.
func (m *Mirror) Upload(ctx context.Context, localPath, relKey string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open artifact for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	key := path.Join(m.prefix, relKey)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.bucket, key, err)
	}

	atomic.AddInt64(&m.objectsUploaded, 1)
	atomic.AddInt64(&m.bytesUploaded, info.Size())

	m.log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"key":   key,
		"bytes": info.Size(),
	}).Debug("artifact mirrored")
	m.log.LogMetric("s3_mirror", "objects_uploaded", atomic.LoadInt64(&m.objectsUploaded), "counter", logger.Fields{})

	return nil
}
