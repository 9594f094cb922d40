// Package objectstore is the object store gateway (component A): a thin
// facade over the S3 API wide enough to cover uploads, warehouse writes
// and query-result blobs, with a custom endpoint so MinIO/LocalStack
// work the same way in development as S3 does in production.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/apperrors"
)

// Config mirrors the STORE_* environment surface.
type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	ForcePathStyle bool
}

// Store is the S3-backed object store gateway.
type Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	log      *zap.Logger
}

// New builds a Store and verifies connectivity is at least configured;
// bucket existence is checked lazily by EnsureBucket rather than here,
// since a Store spans both the uploads and warehouse buckets.
func New(cfg Config, log *zap.Logger) (*Store, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, apperrors.WrapTransient(fmt.Errorf("create aws session: %w", err))
	}

	return &Store{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		log:      log,
	}, nil
}

// EnsureBucket creates bucket if it does not already exist, implementing
// the lazy-creation contract of component A.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchBucket) {
		_, err := s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
		if err != nil {
			return apperrors.WrapTransient(fmt.Errorf("create bucket %s: %w", bucket, err))
		}
		return nil
	}
	return apperrors.WrapTransient(fmt.Errorf("head bucket %s: %w", bucket, err))
}

// Put uploads r to bucket/path.
func (s *Store) Put(ctx context.Context, bucket, path string, r io.Reader, contentType string) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(path),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperrors.WrapTransient(fmt.Errorf("put %s/%s: %w", bucket, path, err))
	}
	return nil
}

// Get downloads bucket/path.
func (s *Store) Get(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, apperrors.NotFound(fmt.Sprintf("object not found: %s/%s", bucket, path))
		}
		return nil, apperrors.WrapTransient(fmt.Errorf("get %s/%s: %w", bucket, path, err))
	}
	return out.Body, nil
}

// UploadKey returns the uploads/<job_id>/<file_name> layout key.
func UploadKey(jobID, fileName string) string {
	return fmt.Sprintf("uploads/%s/%s", jobID, fileName)
}

// WarehouseTableKey returns the warehouse/wh/<project>/<table>/ prefix.
func WarehouseTableKey(project, table string) string {
	return fmt.Sprintf("warehouse/wh/%s/%s/", project, table)
}

// WarehouseQueryResultKey returns the query-result object key for a run
// at time t, matching the warehouse/wh/<project>/queries/query_<ts>/
// result.<ext> layout.
func WarehouseQueryResultKey(project string, t time.Time, ext string) string {
	return fmt.Sprintf("warehouse/wh/%s/queries/query_%s/result.%s", project, t.UTC().Format("20060102_150405"), ext)
}
