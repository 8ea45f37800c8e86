package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/doctagger/internal/graph"
	"github.com/Lllllllleong/doctagger/internal/models"
	"github.com/Lllllllleong/doctagger/internal/tagging"
)

// Audit values stamped on every log entry the daemon writes.
const (
	DaemonUser   = "daemon@doctagger"
	DaemonMethod = "daemon"
	statusOK     = "success"
)

// ContentStore is the set of remote operations available for one tenant session.
type ContentStore interface {
	List(ctx context.Context, target models.Target) ([]models.FileItem, error)
	ReadFields(ctx context.Context, target models.Target, itemID string) (models.FieldSet, error)
	Download(ctx context.Context, target models.Target, itemID string) ([]byte, error)
	WriteTags(ctx context.Context, target models.Target, itemID, tagsCSV, etag string) error
}

// TagExtractor turns document bytes into tags.
type TagExtractor interface {
	ExtractAndTag(ctx context.Context, data []byte, filename string) ([]string, error)
}

// TargetResult tallies per-file outcomes for one target.
type TargetResult struct {
	Tagged  int
	Skipped int
	Failed  int
	Errors  []models.RunError
}

// Pipeline walks the files of one target and tags the untagged ones.
type Pipeline struct {
	extractor TagExtractor
	sink      StatusSink
	now       func() time.Time
}

// NewPipeline creates a document pipeline.
func NewPipeline(extractor TagExtractor, sink StatusSink) *Pipeline {
	return &Pipeline{extractor: extractor, sink: sink, now: time.Now}
}

// ProcessTarget lists the target folder and drives each file to a terminal state.
// Per-file problems never stop the loop; only a failed listing is returned.
func (p *Pipeline) ProcessTarget(ctx context.Context, store ContentStore, tenantID string, target models.Target) (TargetResult, error) {
	logCtx := slog.With("tenantId", tenantID, "target", target.Label, "folder", target.Folder)

	var result TargetResult
	items, err := store.List(ctx, target)
	if err != nil {
		return result, fmt.Errorf("failed to list target %s: %w", target.Label, err)
	}
	logCtx.Info("Listed target folder.", "items", len(items))

	for _, item := range items {
		if !item.Taggable() {
			continue
		}
		fileLog := logCtx.With("itemId", item.ID, "filename", item.Name)
		switch err := p.processFile(ctx, fileLog, store, tenantID, target, item); {
		case err == nil:
			result.Tagged++
		case errors.Is(err, errSkipped):
			result.Skipped++
		default:
			result.Failed++
			msg := fmt.Sprintf("%s: %v", item.Name, err)
			result.Errors = append(result.Errors, models.RunError{
				TenantID: tenantID,
				Target:   target.Label,
				File:     item.Name,
				Message:  err.Error(),
			})
			fileLog.Error("Failed to tag file.", "error", err)
			if serr := p.sink.MergeStatus(ctx, tenantID, target.Label, StatusPatch{FieldLastError: msg}); serr != nil {
				fileLog.Warn("Failed to record file error in status.", "error", serr)
			}
		}
	}
	return result, nil
}

var errSkipped = errors.New("skipped")

func (p *Pipeline) processFile(ctx context.Context, logCtx *slog.Logger, store ContentStore, tenantID string, target models.Target, item models.FileItem) error {
	fields, err := store.ReadFields(ctx, target, item.ID)
	if err != nil {
		logCtx.Warn("Could not read fields, skipping file.", "error", err)
		return errSkipped
	}
	if hasTags(fields.Values[models.TagsField]) {
		logCtx.Debug("File already tagged, skipping.")
		return errSkipped
	}

	data, err := store.Download(ctx, target, item.ID)
	if err != nil {
		logCtx.Warn("Could not download file, skipping.", "error", err)
		return errSkipped
	}

	tags, err := p.extractor.ExtractAndTag(ctx, data, item.Name)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return fmt.Errorf("%w: no tags produced for %s", tagging.ErrTaggingFailed, item.Name)
	}

	if err := store.WriteTags(ctx, target, item.ID, tagging.JoinTags(tags), fields.ETag); err != nil {
		if errors.Is(err, graph.ErrWriteConflict) {
			logCtx.Info("File changed since it was read, leaving it to the other writer.", "error", err)
			return errSkipped
		}
		return fmt.Errorf("failed to write tags: %w", err)
	}

	entry := models.LogEntry{
		Timestamp: p.now().UTC(),
		Filename:  item.Name,
		Folder:    target.Folder,
		Tags:      tags,
		User:      DaemonUser,
		Status:    statusOK,
		Method:    DaemonMethod,
	}
	if err := p.sink.AppendLog(ctx, tenantID, entry); err != nil {
		logCtx.Warn("Tags written but log entry could not be appended.", "error", err)
	}
	logCtx.Info("Tagged file.", "tags", tags)
	return nil
}

// hasTags reports whether the tags field already holds a value.
func hasTags(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return true
	}
}
