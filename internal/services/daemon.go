package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/doctagger/internal/backoff"
	"github.com/Lllllllleong/doctagger/internal/gcp"
	"github.com/Lllllllleong/doctagger/internal/graph"
	"github.com/Lllllllleong/doctagger/internal/models"
	"github.com/Lllllllleong/doctagger/internal/tagging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DaemonConfig holds all configuration for the tagging daemon.
type DaemonConfig struct {
	ProjectID           string
	ConfigBucket        string
	DaemonTenants       string
	FirestoreCollection string
	FirestoreDatabase   string
	RunArchiveBucket    string
	WorkflowID          string
	WorkflowLocation    string
	VertexAIRegion      string
	TaggerModel         string
	Tagger              tagging.Config
	Graph               graph.Config
	Credentials         graph.CredentialConfig
	RetryMaxAttempts    int
}

// loadConfig loads and validates all necessary environment variables for the daemon.
func loadConfig() (*DaemonConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	configBucket := gcp.GetEnv("CONFIG_BUCKET", "")
	if configBucket == "" {
		return nil, fmt.Errorf("CONFIG_BUCKET environment variable must be set")
	}
	clientID := gcp.GetEnv("GRAPH_CLIENT_ID", "")
	clientSecret := gcp.GetEnv("GRAPH_CLIENT_SECRET", "")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("GRAPH_CLIENT_ID and GRAPH_CLIENT_SECRET environment variables must be set")
	}

	workflowID := gcp.GetEnv("WORKFLOW_ID", "")
	region := gcp.GetEnv("VERTEX_AI_REGION", "us-central1")

	return &DaemonConfig{
		ProjectID:           projectID,
		ConfigBucket:        configBucket,
		DaemonTenants:       gcp.GetEnv("DAEMON_TENANTS", ""),
		FirestoreCollection: gcp.GetEnv("FIRESTORE_COLLECTION", "tenants"),
		FirestoreDatabase:   gcp.GetEnv("FIRESTORE_DATABASE", ""),
		RunArchiveBucket:    gcp.GetEnv("RUN_ARCHIVE_BUCKET", ""),
		WorkflowID:          workflowID,
		WorkflowLocation:    gcp.GetEnv("WORKFLOW_LOCATION", region),
		VertexAIRegion:      region,
		TaggerModel:         gcp.GetEnv("TAGGER_MODEL", "gemini-1.5-flash"),
		Tagger: tagging.Config{
			Mode:         tagging.Mode(gcp.GetEnv("TAG_MODE", string(tagging.ModeKeywords))),
			CustomPrompt: gcp.GetEnv("TAG_CUSTOM_PROMPT", ""),
			NumTags:      gcp.GetEnvInt("TAG_COUNT", tagging.DefaultNumTags),
		},
		Graph: graph.Config{
			BaseURL:           gcp.GetEnv("GRAPH_BASE_URL", graph.DefaultBaseURL),
			RequestsPerSecond: gcp.GetEnvFloat("GRAPH_RPS", graph.DefaultRequestsPerSecond),
			Burst:             gcp.GetEnvInt("GRAPH_BURST", graph.DefaultBurst),
			ConditionalWrite:  gcp.GetEnvBool("CONDITIONAL_WRITE", true),
		},
		Credentials: graph.CredentialConfig{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			AuthorityURL: gcp.GetEnv("GRAPH_AUTHORITY_URL", ""),
		},
		RetryMaxAttempts: gcp.GetEnvInt("RETRY_MAX_ATTEMPTS", backoff.DefaultMaxAttempts),
	}, nil
}

// TargetConfig resolves tenants and their upload targets.
type TargetConfig interface {
	TenantIDs(ctx context.Context) ([]string, error)
	Targets(ctx context.Context, tenantID string) ([]models.Target, error)
}

// CredentialSource issues access tokens per tenant.
type CredentialSource interface {
	AccessToken(ctx context.Context, tenantID string) (string, error)
}

// RunArchiver persists a finished run summary.
type RunArchiver interface {
	Archive(ctx context.Context, summary models.RunSummary) error
}

// RunNotifier announces a finished run downstream.
type RunNotifier interface {
	Notify(ctx context.Context, payload any) error
}

// DaemonDeps are the collaborators of a DaemonFunction. Archiver and Notifier
// are optional.
type DaemonDeps struct {
	Config      TargetConfig
	Credentials CredentialSource
	Sessions    func(token string) ContentStore
	Extractor   TagExtractor
	Sink        StatusSink
	Archiver    RunArchiver
	Notifier    RunNotifier
}

// DaemonFunction runs the tagging loop over every tenant and target.
type DaemonFunction struct {
	deps     DaemonDeps
	pipeline *Pipeline
	closers  []func() error
	now      func() time.Time

	// mu serializes runs triggered inside one instance.
	mu sync.Mutex
}

// NewDaemonWithDeps wires a daemon from explicit collaborators.
func NewDaemonWithDeps(deps DaemonDeps) *DaemonFunction {
	return &DaemonFunction{
		deps:     deps,
		pipeline: NewPipeline(deps.Extractor, deps.Sink),
		now:      time.Now,
	}
}

// NewDaemon loads configuration from the environment and builds the cloud clients.
func NewDaemon(ctx context.Context) (*DaemonFunction, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var (
		firestoreClient *firestore.Client
		storageClient   *storage.Client
		vertexClient    *gcp.VertexClient
		workflowsClient *executions.Client
	)
	var eg errgroup.Group
	eg.Go(func() (err error) {
		firestoreClient, err = gcp.NewFirestoreClient(ctx, config.ProjectID, config.FirestoreDatabase)
		return err
	})
	eg.Go(func() (err error) {
		if storageClient, err = storage.NewClient(ctx); err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		return nil
	})
	eg.Go(func() (err error) {
		if vertexClient, err = gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.TaggerModel); err != nil {
			return fmt.Errorf("failed to create vertex client: %w", err)
		}
		return nil
	})
	if config.WorkflowID != "" {
		eg.Go(func() (err error) {
			if workflowsClient, err = executions.NewClient(ctx); err != nil {
				return fmt.Errorf("failed to create workflows client: %w", err)
			}
			return nil
		})
	}

	waitErr := eg.Wait()
	f := &DaemonFunction{now: time.Now}
	if firestoreClient != nil {
		f.closers = append(f.closers, firestoreClient.Close)
	}
	if storageClient != nil {
		f.closers = append(f.closers, storageClient.Close)
	}
	if vertexClient != nil {
		f.closers = append(f.closers, vertexClient.Close)
	}
	if workflowsClient != nil {
		f.closers = append(f.closers, workflowsClient.Close)
	}
	if waitErr != nil {
		f.Close()
		return nil, waitErr
	}

	creds, err := graph.NewCredentialProvider(config.Credentials, nil)
	if err != nil {
		f.Close()
		return nil, err
	}

	executor := backoff.NewExecutor(slog.Default())
	executor.MaxAttempts = config.RetryMaxAttempts
	graphClient := graph.NewClient(&http.Client{Timeout: 5 * time.Minute}, executor, config.Graph)

	deps := DaemonDeps{
		Config:      NewConfigStore(NewGCSBlobReader(storageClient.Bucket(config.ConfigBucket)), config.DaemonTenants),
		Credentials: creds,
		Sessions:    func(token string) ContentStore { return graphClient.Session(token) },
		Extractor:   tagging.NewTagger(vertexClient.TaggerModel, config.Tagger),
		Sink:        NewFirestoreStatusSink(firestoreClient, config.FirestoreCollection),
	}
	if config.RunArchiveBucket != "" {
		deps.Archiver = NewGCSRunArchiver(storageClient.Bucket(config.RunArchiveBucket))
	}
	if workflowsClient != nil {
		deps.Notifier = gcp.NewWorkflowNotifier(workflowsClient, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
	}

	f.deps = deps
	f.pipeline = NewPipeline(deps.Extractor, deps.Sink)
	slog.Info("Tagging daemon initialized.", "configBucket", config.ConfigBucket, "model", config.TaggerModel, "conditionalWrite", config.Graph.ConditionalWrite)
	return f, nil
}

// Close releases the cloud clients.
func (f *DaemonFunction) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}

// Run performs one full pass over all tenants and targets. It never fails:
// every problem is logged, recorded in status and collected in the summary.
func (f *DaemonFunction) Run(ctx context.Context) models.RunSummary {
	f.mu.Lock()
	defer f.mu.Unlock()

	summary := models.RunSummary{RunID: uuid.NewString(), StartedAt: f.now().UTC()}
	logCtx := slog.With("runId", summary.RunID)
	logCtx.Info("Daemon run started.")

	tenants, err := f.deps.Config.TenantIDs(ctx)
	if err != nil {
		logCtx.Error("Failed to resolve tenants.", "error", err)
		summary.Errors = append(summary.Errors, models.RunError{Message: err.Error()})
	} else if len(tenants) == 0 {
		logCtx.Warn("No tenants configured, nothing to do.")
	}
	summary.Tenants = len(tenants)

	for _, tenantID := range tenants {
		f.runTenant(ctx, logCtx.With("tenantId", tenantID), tenantID, &summary)
	}

	summary.FinishedAt = f.now().UTC()
	f.publish(ctx, logCtx, summary)
	logCtx.Info("Daemon run finished.",
		"targetsProcessed", summary.TargetsProcessed,
		"targetsFailed", summary.TargetsFailed,
		"filesTagged", summary.FilesTagged,
		"filesFailed", summary.FilesFailed)
	return summary
}

func (f *DaemonFunction) runTenant(ctx context.Context, logCtx *slog.Logger, tenantID string, summary *models.RunSummary) {
	targets, err := f.deps.Config.Targets(ctx, tenantID)
	if err != nil {
		logCtx.Error("Failed to resolve targets.", "error", err)
		summary.Errors = append(summary.Errors, models.RunError{TenantID: tenantID, Message: err.Error()})
		return
	}
	if len(targets) == 0 {
		logCtx.Info("Tenant has no upload targets.")
		return
	}

	for _, target := range targets {
		targetLog := logCtx.With("target", target.Label)
		if !target.Enabled {
			targetLog.Info("Target disabled, skipping.")
			summary.TargetsSkipped++
			continue
		}
		if err := f.runTarget(ctx, targetLog, tenantID, target, summary); err != nil {
			targetLog.Error("Target failed.", "error", err)
			summary.TargetsFailed++
			summary.Errors = append(summary.Errors, models.RunError{TenantID: tenantID, Target: target.Label, Message: err.Error()})
			f.mergeStatus(ctx, targetLog, tenantID, target.Label, ErrorPatch(err))
			continue
		}
		summary.TargetsProcessed++
	}
}

func (f *DaemonFunction) runTarget(ctx context.Context, logCtx *slog.Logger, tenantID string, target models.Target, summary *models.RunSummary) error {
	f.mergeStatus(ctx, logCtx, tenantID, target.Label, CheckpointPatch(f.now().UTC()))

	token, err := f.deps.Credentials.AccessToken(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to acquire credentials: %w", err)
	}

	result, err := f.pipeline.ProcessTarget(ctx, f.deps.Sessions(token), tenantID, target)
	summary.FilesTagged += result.Tagged
	summary.FilesSkipped += result.Skipped
	summary.FilesFailed += result.Failed
	summary.Errors = append(summary.Errors, result.Errors...)
	if err != nil {
		return err
	}

	f.mergeStatus(ctx, logCtx, tenantID, target.Label, SuccessPatch(f.now().UTC(), result.Tagged))
	logCtx.Info("Target processed.", "tagged", result.Tagged, "skipped", result.Skipped, "failed", result.Failed)
	return nil
}

// mergeStatus writes a status patch; a sink failure never aborts the run.
func (f *DaemonFunction) mergeStatus(ctx context.Context, logCtx *slog.Logger, tenantID, label string, patch StatusPatch) {
	if err := f.deps.Sink.MergeStatus(ctx, tenantID, label, patch); err != nil {
		logCtx.Warn("Failed to update target status.", "error", err)
	}
}

func (f *DaemonFunction) publish(ctx context.Context, logCtx *slog.Logger, summary models.RunSummary) {
	if f.deps.Archiver != nil {
		if err := f.deps.Archiver.Archive(ctx, summary); err != nil {
			logCtx.Warn("Failed to archive run summary.", "error", err)
		}
	}
	if f.deps.Notifier != nil {
		if err := f.deps.Notifier.Notify(ctx, summary); err != nil {
			logCtx.Warn("Failed to notify workflow of run.", "error", err)
		}
	}
}

// GCSRunArchiver stores each run summary as runs/YYYY/MM/DD/<runId>.json.
type GCSRunArchiver struct {
	bucket *storage.BucketHandle
}

// NewGCSRunArchiver wraps the archive bucket.
func NewGCSRunArchiver(bucket *storage.BucketHandle) *GCSRunArchiver {
	return &GCSRunArchiver{bucket: bucket}
}

func (a *GCSRunArchiver) Archive(ctx context.Context, summary models.RunSummary) error {
	content, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	return gcp.SaveToGCSAtomically(ctx, a.bucket, archiveObjectName(summary), string(content))
}

func archiveObjectName(summary models.RunSummary) string {
	return fmt.Sprintf("runs/%s/%s.json", summary.StartedAt.UTC().Format("2006/01/02"), summary.RunID)
}
