package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Lllllllleong/doctagger/internal/backoff"
	"github.com/Lllllllleong/doctagger/internal/models"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL           = "https://graph.microsoft.com/v1.0"
	DefaultRequestsPerSecond = 8.0
	DefaultBurst             = 10

	etagField = "@odata.etag"
)

// Config holds the content store client settings.
type Config struct {
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	// ConditionalWrite sends If-Match with the list item eTag on write-back.
	ConditionalWrite bool
}

// Client reaches SharePoint document libraries through Microsoft Graph. All calls
// go through the shared backoff executor and a token-bucket limiter.
type Client struct {
	httpClient *http.Client
	executor   *backoff.Executor
	limiter    *rate.Limiter
	config     Config
}

// NewClient creates a content store client. A nil httpClient gets a client with
// a generous timeout suited to document downloads.
func NewClient(httpClient *http.Client, executor *backoff.Executor, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if executor == nil {
		executor = backoff.NewExecutor(nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	return &Client{
		httpClient: httpClient,
		executor:   executor,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		config:     cfg,
	}
}

// Session binds the client to one tenant access token for the duration of a target.
type Session struct {
	client *Client
	token  string
}

// Session returns a session that authenticates every call with token.
func (c *Client) Session(token string) *Session {
	return &Session{client: c, token: token}
}

type driveItem struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	File   *struct{} `json:"file"`
	Folder *struct{} `json:"folder"`
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// List returns the children of the target folder in the order Graph returns them,
// following nextLink pages. Folders are included; callers filter them.
func (s *Session) List(ctx context.Context, target models.Target) ([]models.FileItem, error) {
	next := s.client.childrenURL(target)
	var items []models.FileItem
	for next != "" {
		var page childrenPage
		if err := s.getJSON(ctx, "list", next, &page); err != nil {
			return nil, err
		}
		for _, it := range page.Value {
			items = append(items, models.FileItem{
				ID:       it.ID,
				Name:     it.Name,
				IsFolder: it.Folder != nil,
				HasFile:  it.File != nil,
			})
		}
		next = page.NextLink
	}
	return items, nil
}

// ReadFields returns the list item fields of one file, including its eTag.
func (s *Session) ReadFields(ctx context.Context, target models.Target, itemID string) (models.FieldSet, error) {
	values := map[string]any{}
	if err := s.getJSON(ctx, "read-fields", s.client.fieldsURL(target, itemID), &values); err != nil {
		return models.FieldSet{}, err
	}
	fs := models.FieldSet{Values: values}
	if etag, ok := values[etagField].(string); ok {
		fs.ETag = etag
	}
	return fs, nil
}

// Download returns the raw content of one file.
func (s *Session) Download(ctx context.Context, target models.Target, itemID string) ([]byte, error) {
	u := fmt.Sprintf("%s/items/%s/content", s.client.driveURL(target), url.PathEscape(itemID))
	resp, err := s.do(ctx, "download", http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}
	return data, nil
}

// WriteTags stores tagsCSV in the tags field of one file. With conditional writes
// enabled and a known etag, the write only lands if the item is unchanged since it
// was read; otherwise ErrWriteConflict is returned.
func (s *Session) WriteTags(ctx context.Context, target models.Target, itemID, tagsCSV, etag string) error {
	payload, err := json.Marshal(map[string]string{models.TagsField: tagsCSV})
	if err != nil {
		return fmt.Errorf("failed to marshal tags payload: %w", err)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if s.client.config.ConditionalWrite && etag != "" {
		headers.Set("If-Match", etag)
	}
	resp, err := s.do(ctx, "write-tags", http.MethodPatch, s.client.fieldsURL(target, itemID), payload, headers)
	if err != nil {
		var rce *RemoteCallError
		if errors.As(err, &rce) && rce.Status == http.StatusPreconditionFailed {
			// A retried PATCH can fail the precondition on our own earlier write.
			if s.holdsTags(ctx, target, itemID, tagsCSV) {
				return nil
			}
			return fmt.Errorf("%w: item %s changed since it was read", ErrWriteConflict, itemID)
		}
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// holdsTags reports whether the item's tags field already equals tagsCSV.
func (s *Session) holdsTags(ctx context.Context, target models.Target, itemID, tagsCSV string) bool {
	fs, err := s.ReadFields(ctx, target, itemID)
	if err != nil {
		return false
	}
	current, _ := fs.Values[models.TagsField].(string)
	return current == tagsCSV
}

func (s *Session) getJSON(ctx context.Context, op, u string, out any) error {
	resp, err := s.do(ctx, op, http.MethodGet, u, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode graph %s response: %w", op, err)
	}
	return nil
}

// do runs one request through the limiter and executor and converts a final
// non-2xx status into a RemoteCallError. The caller owns the returned body.
func (s *Session) do(ctx context.Context, op, method, u string, body []byte, headers http.Header) (*http.Response, error) {
	call := func(ctx context.Context) (*http.Response, error) {
		if err := s.client.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rdr)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+s.token)
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return s.client.httpClient.Do(req)
	}

	resp, err := s.client.executor.Execute(ctx, call)
	if err != nil {
		slog.Debug("Graph call exhausted retries.", "operation", op, "url", u, "error", err)
		return nil, fmt.Errorf("graph %s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyExcerpt))
		return nil, &RemoteCallError{
			Operation:   op,
			Status:      resp.StatusCode,
			BodyExcerpt: strings.TrimSpace(string(excerpt)),
		}
	}
	return resp, nil
}

func (c *Client) driveURL(target models.Target) string {
	return fmt.Sprintf("%s/sites/%s/drives/%s", c.config.BaseURL, url.PathEscape(target.SiteID), url.PathEscape(target.DriveID))
}

func (c *Client) fieldsURL(target models.Target, itemID string) string {
	return fmt.Sprintf("%s/items/%s/listItem/fields", c.driveURL(target), url.PathEscape(itemID))
}

func (c *Client) childrenURL(target models.Target) string {
	folder := strings.Trim(target.Folder, "/")
	if folder == "" {
		return c.driveURL(target) + "/root/children"
	}
	segments := strings.Split(folder, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/root:/%s:/children", c.driveURL(target), strings.Join(segments, "/"))
}
