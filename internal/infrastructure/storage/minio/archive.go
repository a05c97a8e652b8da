package minio

import (
	"bytes"
	"context"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

const payloadContentType = "application/json"

// Archive stores raw consumed payloads for audit and replay.
type Archive struct {
	client *Client
}

// NewArchive wraps a connected client.
func NewArchive(client *Client) *Archive {
	return &Archive{client: client}
}

// Store writes body under key. Keys are slash separated; empty segments
// are dropped.
func (a *Archive) Store(ctx context.Context, key string, body []byte) error {
	if a.client.isClosed() {
		return errors.New(errors.ErrCodeServiceUnavailable, "minio client is closed")
	}
	name := cleanKey(key)
	if name == "" {
		return errors.InvalidParam("archive key is empty")
	}

	info, err := a.client.api.PutObject(ctx, a.client.cfg.Bucket, name,
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: payloadContentType})
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeServiceUnavailable, "failed to archive %s", name)
	}
	a.client.logger.Debug("Payload archived",
		logging.String("bucket", a.client.cfg.Bucket),
		logging.String("key", name),
		logging.Int64("size", info.Size))
	return nil
}

func cleanKey(key string) string {
	parts := strings.Split(key, "/")
	kept := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p != "." && p != ".." {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
