package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Lllllllleong/doctagger/internal/gcp"
	"github.com/Lllllllleong/doctagger/internal/models"
)

// fakeStore is an in-memory content store whose writes persist across runs.
type fakeStore struct {
	mu       sync.Mutex
	items    []models.FileItem
	listErr  error
	fields   map[string]map[string]any
	etags    map[string]string
	fieldErr map[string]error
	data     map[string][]byte
	dlErr    map[string]error
	writeErr map[string]error
	writes   []fakeWrite
}

type fakeWrite struct {
	ItemID string
	CSV    string
	ETag   string
}

func newFakeStore(items ...models.FileItem) *fakeStore {
	return &fakeStore{
		items:    items,
		fields:   map[string]map[string]any{},
		etags:    map[string]string{},
		fieldErr: map[string]error{},
		data:     map[string][]byte{},
		dlErr:    map[string]error{},
		writeErr: map[string]error{},
	}
}

func file(id, name string) models.FileItem {
	return models.FileItem{ID: id, Name: name, HasFile: true}
}

func (s *fakeStore) List(ctx context.Context, target models.Target) ([]models.FileItem, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.items, nil
}

func (s *fakeStore) ReadFields(ctx context.Context, target models.Target, itemID string) (models.FieldSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fieldErr[itemID]; err != nil {
		return models.FieldSet{}, err
	}
	values := map[string]any{}
	for k, v := range s.fields[itemID] {
		values[k] = v
	}
	return models.FieldSet{Values: values, ETag: s.etags[itemID]}, nil
}

func (s *fakeStore) Download(ctx context.Context, target models.Target, itemID string) ([]byte, error) {
	if err := s.dlErr[itemID]; err != nil {
		return nil, err
	}
	return s.data[itemID], nil
}

func (s *fakeStore) WriteTags(ctx context.Context, target models.Target, itemID, tagsCSV, etag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr[itemID]; err != nil {
		return err
	}
	s.writes = append(s.writes, fakeWrite{ItemID: itemID, CSV: tagsCSV, ETag: etag})
	if s.fields[itemID] == nil {
		s.fields[itemID] = map[string]any{}
	}
	s.fields[itemID][models.TagsField] = tagsCSV
	return nil
}

// fakeExtractor returns canned tags per filename.
type fakeExtractor struct {
	tags  map[string][]string
	errs  map[string]error
	calls []string
}

func (e *fakeExtractor) ExtractAndTag(ctx context.Context, data []byte, filename string) ([]string, error) {
	e.calls = append(e.calls, filename)
	if err := e.errs[filename]; err != nil {
		return nil, err
	}
	return e.tags[filename], nil
}

type statusKey struct{ tenant, label string }

// fakeSink merges patches the way the Firestore sink does.
type fakeSink struct {
	mu       sync.Mutex
	status   map[statusKey]map[string]any
	patches  map[statusKey][]StatusPatch
	logs     map[string][]models.LogEntry
	mergeErr error
	logErr   error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		status:  map[statusKey]map[string]any{},
		patches: map[statusKey][]StatusPatch{},
		logs:    map[string][]models.LogEntry{},
	}
}

func (s *fakeSink) MergeStatus(ctx context.Context, tenantID, label string, patch StatusPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mergeErr != nil {
		return s.mergeErr
	}
	k := statusKey{tenantID, label}
	if s.status[k] == nil {
		s.status[k] = map[string]any{}
	}
	for f, v := range patch {
		s.status[k][f] = v
	}
	s.patches[k] = append(s.patches[k], patch)
	return nil
}

func (s *fakeSink) AppendLog(ctx context.Context, tenantID string, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logErr != nil {
		return s.logErr
	}
	s.logs[tenantID] = append(s.logs[tenantID], entry)
	return nil
}

func (s *fakeSink) get(tenantID, label string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[statusKey{tenantID, label}]
}

// fakeBlobs serves JSON documents by object name.
type fakeBlobs struct {
	objects map[string]string
	err     error
	reads   []string
}

func (b *fakeBlobs) ReadJSON(ctx context.Context, objectName string, out any) error {
	b.reads = append(b.reads, objectName)
	if b.err != nil {
		return b.err
	}
	body, ok := b.objects[objectName]
	if !ok {
		return fmt.Errorf("%w: %s", gcp.ErrBlobNotFound, objectName)
	}
	return json.Unmarshal([]byte(body), out)
}

// fakeCreds hands out a token per tenant, failing for listed tenants and for
// the first failFirst calls.
type fakeCreds struct {
	fail      map[string]bool
	failFirst int
	calls     int
}

func (c *fakeCreds) AccessToken(ctx context.Context, tenantID string) (string, error) {
	c.calls++
	if c.fail[tenantID] || c.calls <= c.failFirst {
		return "", errors.New("AADSTS700016: application not found in tenant")
	}
	return "token-" + strings.ToLower(tenantID), nil
}

// fakeConfig returns fixed tenants and per-tenant targets.
type fakeConfig struct {
	tenants    []string
	tenantsErr error
	targets    map[string][]models.Target
	targetErr  map[string]error
}

func (c *fakeConfig) TenantIDs(ctx context.Context) ([]string, error) {
	return c.tenants, c.tenantsErr
}

func (c *fakeConfig) Targets(ctx context.Context, tenantID string) ([]models.Target, error) {
	if err := c.targetErr[tenantID]; err != nil {
		return nil, err
	}
	return c.targets[tenantID], nil
}
