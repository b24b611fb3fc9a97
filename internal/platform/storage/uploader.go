package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// Uploader writes objects into the configured media bucket.
type Uploader struct {
	client *storage.Client
	bucket string
}

// NewUploader constructs an Uploader bound to one bucket.
func NewUploader(client *storage.Client, bucket string) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	return &Uploader{client: client, bucket: bucket}, nil
}

// Upload stores the payload under the object path built for the given
// purpose and returns that path.
func (u *Uploader) Upload(ctx context.Context, purpose AssetPurpose, params PathParams, contentType string, data []byte) (string, error) {
	if u == nil || u.client == nil {
		return "", errors.New("storage: uploader not initialised")
	}
	if len(data) == 0 {
		return "", errors.New("storage: payload is empty")
	}

	object, err := BuildObjectPath(purpose, params)
	if err != nil {
		return "", err
	}

	writer := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	if trimmed := strings.TrimSpace(contentType); trimmed != "" {
		writer.ContentType = trimmed
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: write object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: finalise object %s: %w", object, err)
	}
	return object, nil
}

// Delete removes a previously uploaded object. Missing objects are ignored.
func (u *Uploader) Delete(ctx context.Context, object string) error {
	if u == nil || u.client == nil {
		return errors.New("storage: uploader not initialised")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return errors.New("storage: object name is required")
	}
	err := u.client.Bucket(u.bucket).Object(object).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: delete object %s: %w", object, err)
	}
	return nil
}
