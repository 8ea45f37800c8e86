package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/doctagger/internal/gcp"
	"github.com/Lllllllleong/doctagger/internal/models"
)

// Status record field names.
const (
	FieldLastRun        = "last_run"
	FieldLastSuccess    = "last_success"
	FieldLastError      = "last_error"
	FieldFilesProcessed = "files_processed"
	FieldLastUpdated    = "last_updated"
)

// StatusPatch is a partial update of a target status record: only the keys
// present are written, and a nil value clears the field to null.
type StatusPatch map[string]any

// CheckpointPatch marks the start of target processing.
func CheckpointPatch(now time.Time) StatusPatch {
	return StatusPatch{FieldLastRun: now, FieldFilesProcessed: 0, FieldLastError: nil}
}

// SuccessPatch marks a target that completed its file loop.
func SuccessPatch(now time.Time, filesProcessed int) StatusPatch {
	return StatusPatch{FieldLastSuccess: now, FieldFilesProcessed: filesProcessed}
}

// ErrorPatch records the most recent failure for a target.
func ErrorPatch(err error) StatusPatch {
	return StatusPatch{FieldLastError: err.Error()}
}

// StatusSink persists run status and the tagging audit log.
type StatusSink interface {
	MergeStatus(ctx context.Context, tenantID, label string, patch StatusPatch) error
	AppendLog(ctx context.Context, tenantID string, entry models.LogEntry) error
}

// FirestoreStatusSink stores status under {collection}/{tenant}/daemonStatus/{label}
// and log entries under {collection}/{tenant}/uploadLog.
type FirestoreStatusSink struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreStatusSink creates a sink rooted at collection.
func NewFirestoreStatusSink(client *firestore.Client, collection string) *FirestoreStatusSink {
	return &FirestoreStatusSink{client: client, collection: collection, now: time.Now}
}

func (s *FirestoreStatusSink) tenantDoc(tenantID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(gcp.TenantPrefix(tenantID))
}

// MergeStatus applies patch to the target's status document, creating it if needed.
func (s *FirestoreStatusSink) MergeStatus(ctx context.Context, tenantID, label string, patch StatusPatch) error {
	data := make(map[string]any, len(patch)+3)
	for k, v := range patch {
		data[k] = v
	}
	data["tenant_id"] = tenantID
	data["label"] = label
	data[FieldLastUpdated] = s.now().UTC()

	ref := s.tenantDoc(tenantID).Collection("daemonStatus").Doc(statusDocID(label))
	if _, err := ref.Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to merge status for %s/%s: %w", tenantID, label, err)
	}
	return nil
}

// AppendLog adds one immutable audit entry.
func (s *FirestoreStatusSink) AppendLog(ctx context.Context, tenantID string, entry models.LogEntry) error {
	if _, _, err := s.tenantDoc(tenantID).Collection("uploadLog").Add(ctx, entry); err != nil {
		return fmt.Errorf("failed to append log entry for %s: %w", tenantID, err)
	}
	return nil
}

// statusDocID makes a label usable as a document id. Ids may not contain '/',
// be "." or "..", or match the reserved __.*__ form.
func statusDocID(label string) string {
	id := strings.ReplaceAll(strings.TrimSpace(label), "/", "_")
	switch {
	case id == "" || id == "." || id == "..":
		id = "_" + id
	case len(id) >= 4 && strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__"):
		id = "label" + id
	}
	return id
}
