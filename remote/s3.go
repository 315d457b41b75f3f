package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/session-sink/base"
	"github.com/relex/session-sink/defs"
)

// uploaderAPI is the slice of the S3 upload manager used here, for test fakes
type uploaderAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// s3Store uploads flushed session archives to an S3-compatible bucket. The
// multipart upload manager accepts non-seekable bodies, which the gzip pipe
// stream from the flush protocol requires.
type s3Store struct {
	logger  logger.Logger
	bucket  string
	api     uploaderAPI
	metrics s3Metrics
}

type s3Metrics struct {
	uploadsTotal      promext.RWCounter
	uploadErrorsTotal promext.RWCounter
}

// NewS3Store creates an ObjectStore backed by S3 or a compatible service
func NewS3Store(ctx context.Context, parentLogger logger.Logger, cfg Config, metricCreator promreg.MetricCreator) (base.ObjectStore, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newS3StoreWithAPI(parentLogger, cfg.Bucket, manager.NewUploader(client), metricCreator), nil
}

func newS3StoreWithAPI(parentLogger logger.Logger, bucket string, api uploaderAPI, metricCreator promreg.MetricCreator) base.ObjectStore {
	remoteMetricCreator := metricCreator.AddOrGetPrefix("", []string{"storage"}, []string{"s3"})
	return &s3Store{
		logger: parentLogger.WithField(defs.LabelComponent, "S3Store"),
		bucket: bucket,
		api:    api,
		metrics: s3Metrics{
			uploadsTotal:      remoteMetricCreator.AddOrGetCounter("uploads_total", "Numbers of completed uploads", nil, nil),
			uploadErrorsTotal: remoteMetricCreator.AddOrGetCounter("upload_errors_total", "Numbers of failed uploads", nil, nil),
		},
	}
}

// Upload streams the body into the bucket under the given key
func (store *s3Store) Upload(ctx context.Context, key string, body io.Reader) error {
	_, err := store.api.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(store.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		store.metrics.uploadErrorsTotal.Inc()
		return fmt.Errorf("upload object '%s': %w", key, err)
	}
	store.metrics.uploadsTotal.Inc()
	store.logger.Debugf("uploaded key=%s", key)
	return nil
}
