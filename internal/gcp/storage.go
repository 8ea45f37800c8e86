package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrBlobNotFound is returned by ReadJSON when the object does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// TenantPrefix maps a tenant id onto the object prefix that holds its blobs:
// lowercased, with '@' and '.' replaced by '_'.
func TenantPrefix(tenantID string) string {
	r := strings.NewReplacer("@", "_", ".", "_")
	return r.Replace(strings.ToLower(strings.TrimSpace(tenantID)))
}

// ReadJSON decodes the JSON object at objectName into out.
func ReadJSON(ctx context.Context, bucket *storage.BucketHandle, objectName string, out any) error {
	reader, err := bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrBlobNotFound, objectName)
		}
		return fmt.Errorf("failed to open GCS object %s: %w", objectName, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read GCS object %s: %w", objectName, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode GCS object %s: %w", objectName, err)
	}
	return nil
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// An existing object is not a failure: archived records are immutable.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, content string) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 412 {
			slog.Info("Object already exists, skipping write.", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}
