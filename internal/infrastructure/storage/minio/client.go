package minio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/ForeclosureWatch/internal/config"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

const connectTimeout = 10 * time.Second

// ObjectAPI is the subset of *minio.Client the archive uses.
type ObjectAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Client owns the connection to the payload bucket.
type Client struct {
	api    ObjectAPI
	cfg    config.ArchiveConfig
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// NewClient connects to the object store, verifies credentials and makes
// sure the archive bucket exists.
func NewClient(cfg config.ArchiveConfig, log logging.Logger) (*Client, error) {
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	c := newClient(api, cfg, log)
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("MinIO archive connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

func newClient(api ObjectAPI, cfg config.ArchiveConfig, log logging.Logger) *Client {
	return &Client{api: api, cfg: cfg, logger: log}
}

// EnsureBucket creates the archive bucket when missing and applies the
// retention rule. A lifecycle failure is logged; the bucket stays usable.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to check bucket existence")
	}
	if !exists {
		if err := c.api.MakeBucket(ctx, c.cfg.Bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
			return errors.Wrapf(err, errors.ErrCodeServiceUnavailable, "failed to create bucket %s", c.cfg.Bucket)
		}
		c.logger.Info("Created bucket", logging.String("bucket", c.cfg.Bucket))
	}

	if c.cfg.RetentionDays > 0 {
		if err := c.api.SetBucketLifecycle(ctx, c.cfg.Bucket, retentionRule(c.cfg.RetentionDays)); err != nil {
			c.logger.Warn("Failed to set archive retention",
				logging.String("bucket", c.cfg.Bucket), logging.Err(err))
		}
	}
	return nil
}

func retentionRule(days int) *lifecycle.Configuration {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     "payload-retention",
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(days),
			},
		},
	}
	return lc
}

// Ping verifies the endpoint answers with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c.isClosed() {
		return errors.New(errors.ErrCodeServiceUnavailable, "minio client is closed")
	}
	if _, err := c.api.ListBuckets(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio")
	}
	return nil
}

// Bucket is the archive bucket name.
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

// Close marks the client unusable. minio-go keeps no persistent connections
// that need releasing.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
