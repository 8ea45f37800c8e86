package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/doctagger/internal/gcp"
	"github.com/Lllllllleong/doctagger/internal/models"
)

const (
	tenantsObject = "global/tenants.json"
	targetsObject = "upload_targets.json"
	defaultLabel  = "Unnamed"
)

// BlobReader reads JSON configuration blobs.
type BlobReader interface {
	ReadJSON(ctx context.Context, objectName string, out any) error
}

// GCSBlobReader reads blobs from one configuration bucket.
type GCSBlobReader struct {
	bucket *storage.BucketHandle
}

// NewGCSBlobReader wraps a bucket handle.
func NewGCSBlobReader(bucket *storage.BucketHandle) *GCSBlobReader {
	return &GCSBlobReader{bucket: bucket}
}

func (r *GCSBlobReader) ReadJSON(ctx context.Context, objectName string, out any) error {
	return gcp.ReadJSON(ctx, r.bucket, objectName, out)
}

// ConfigStore resolves the tenants to scan and each tenant's upload targets.
type ConfigStore struct {
	blobs      BlobReader
	envTenants []string
}

// NewConfigStore creates a store. tenantsCSV is the DAEMON_TENANTS value; when it
// is blank the tenant list falls back to the global tenants blob.
func NewConfigStore(blobs BlobReader, tenantsCSV string) *ConfigStore {
	return &ConfigStore{blobs: blobs, envTenants: splitTenants(tenantsCSV)}
}

func splitTenants(csv string) []string {
	var out []string
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// TenantIDs returns the configured tenants in order. A missing tenants blob is an
// empty list, not an error.
func (s *ConfigStore) TenantIDs(ctx context.Context) ([]string, error) {
	if len(s.envTenants) > 0 {
		return append([]string(nil), s.envTenants...), nil
	}

	var raw []any
	if err := s.blobs.ReadJSON(ctx, tenantsObject, &raw); err != nil {
		if errors.Is(err, gcp.ErrBlobNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: tenants: %v", ErrConfigResolution, err)
	}
	var tenants []string
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			tenants = append(tenants, strings.TrimSpace(s))
		}
	}
	return tenants, nil
}

type targetRecord struct {
	Label   *string `json:"label"`
	SiteID  string  `json:"siteId"`
	DriveID string  `json:"driveId"`
	Folder  string  `json:"folder"`
	Enabled *bool   `json:"enabled"`
}

// Targets returns the tenant's upload targets in stored order. A missing blob
// yields no targets; a record without siteId or driveId fails the whole load.
func (s *ConfigStore) Targets(ctx context.Context, tenantID string) ([]models.Target, error) {
	object := gcp.TenantPrefix(tenantID) + "/" + targetsObject

	var raw json.RawMessage
	if err := s.blobs.ReadJSON(ctx, object, &raw); err != nil {
		if errors.Is(err, gcp.ErrBlobNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: tenant %s: %v", ErrConfigResolution, tenantID, err)
	}
	targets, err := decodeTargets(raw)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, err)
	}
	return targets, nil
}

// decodeTargets parses an upload_targets.json document, applying defaults and
// validating required fields.
func decodeTargets(data []byte) ([]models.Target, error) {
	var records []targetRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	targets := make([]models.Target, 0, len(records))
	for i, r := range records {
		var missing []string
		if strings.TrimSpace(r.SiteID) == "" {
			missing = append(missing, "siteId")
		}
		if strings.TrimSpace(r.DriveID) == "" {
			missing = append(missing, "driveId")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: target %d is missing %s", ErrConfigInvalid, i, strings.Join(missing, ", "))
		}

		t := models.Target{
			Label:   defaultLabel,
			SiteID:  r.SiteID,
			DriveID: r.DriveID,
			Folder:  r.Folder,
			Enabled: true,
		}
		if r.Label != nil && strings.TrimSpace(*r.Label) != "" {
			t.Label = *r.Label
		}
		if r.Enabled != nil {
			t.Enabled = *r.Enabled
		}
		targets = append(targets, t)
	}
	return targets, nil
}

