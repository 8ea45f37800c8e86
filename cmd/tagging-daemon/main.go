package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/doctagger/internal/gcp"
	"github.com/Lllllllleong/doctagger/internal/models"
	"github.com/Lllllllleong/doctagger/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	daemonInstance *services.DaemonFunction
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(gcp.GetEnv("LOG_LEVEL", "info"))}))
	slog.SetDefault(logger)

	functions.CloudEvent("HandleTaggingTick", handleTaggingTick)
	functions.HTTP("HandleRunDaemon", handleRunDaemon)
	functions.HTTP("HandlePing", handlePing)
}

// main is required by the Go Functions Framework.
func main() {}

func logLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getDaemon() (*services.DaemonFunction, error) {
	once.Do(func() {
		daemonInstance, initErr = services.NewDaemon(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
	}
	return daemonInstance, initErr
}

// handleTaggingTick runs the daemon on each Cloud Scheduler tick (every 10 minutes).
func handleTaggingTick(ctx context.Context, e cloudevents.Event) error {
	daemon, err := getDaemon()
	if err != nil {
		return err
	}

	var msg models.SchedulerMessage
	if err := json.Unmarshal(e.Data(), &msg); err != nil {
		slog.Warn("Ignoring undecodable scheduler payload.", "eventId", e.ID(), "error", err)
	}
	slog.Info("Scheduled tick received.", "eventId", e.ID(), "source", e.Source(), "payload", string(msg.Message.Data))

	// A run always finishes its pass, even if the trigger goes away.
	daemon.Run(context.WithoutCancel(ctx))
	return nil
}

// handleRunDaemon runs the daemon on demand and returns the run summary.
func handleRunDaemon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	daemon, err := getDaemon()
	if err != nil {
		http.Error(w, "daemon unavailable", http.StatusInternalServerError)
		return
	}

	summary := daemon.Run(context.WithoutCancel(r.Context()))
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(models.RunDaemonResponse{Status: "completed", Summary: summary}); err != nil {
		slog.Error("Failed to encode run response.", "error", err)
	}
}

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("pong"))
}
