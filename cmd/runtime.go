package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/api"
	"github.com/mywebintelligence/mwi/internal/archive"
	"github.com/mywebintelligence/mwi/internal/config"
	"github.com/mywebintelligence/mwi/internal/fetch"
	"github.com/mywebintelligence/mwi/internal/gate"
	"github.com/mywebintelligence/mwi/internal/logging"
	"github.com/mywebintelligence/mwi/internal/progress"
	"github.com/mywebintelligence/mwi/internal/progress/sinks"
	"github.com/mywebintelligence/mwi/internal/publisher"
	memorypublisher "github.com/mywebintelligence/mwi/internal/publisher/memory"
	gcppublisher "github.com/mywebintelligence/mwi/internal/publisher/pubsub"
	"github.com/mywebintelligence/mwi/internal/store"
)

// runtime carries the services shared by the verbs. It is built once
// per invocation and torn down by Close.
type runtime struct {
	cfg config.Config
	log *zap.Logger

	store     *store.Store
	registry  *prometheus.Registry
	hub       *progress.Hub
	publisher publisher.Publisher

	gcsClient  *gcs.Client
	metricsSrv *http.Server
}

// newRuntime loads configuration, builds the logger and connects the
// store. The metrics endpoint, when enabled, is served for the whole
// lifetime of the command.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, err
	}

	st, err := store.New(ctx, store.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.LifetimeMins) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}

	rt := &runtime{cfg: cfg, log: log, store: st, registry: prometheus.NewRegistry()}

	promSink, err := sinks.NewPrometheusSink(rt.registry)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	hubSinks := []progress.Sink{promSink}
	if cfg.Logging.Development {
		hubSinks = append(hubSinks, sinks.NewLogSink(log))
	}
	rt.hub = progress.NewHub(progress.Config{Logger: log}, hubSinks...)

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		pub, err := gcppublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.publisher = pub
	} else {
		rt.publisher = memorypublisher.New()
	}

	if cfg.Metrics.Enabled {
		rt.serveMetrics()
	}
	return rt, nil
}

// Close tears down services in reverse construction order.
func (rt *runtime) Close(ctx context.Context) {
	if rt.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.metricsSrv.Shutdown(shutdownCtx); err != nil {
			rt.log.Warn("metrics server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if rt.hub != nil {
		if err := rt.hub.Close(ctx); err != nil {
			rt.log.Warn("run hub close failed", zap.Error(err))
		}
	}
	if p, ok := rt.publisher.(*gcppublisher.Publisher); ok {
		if err := p.Close(); err != nil {
			rt.log.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if rt.gcsClient != nil {
		if err := rt.gcsClient.Close(); err != nil {
			rt.log.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if rt.store != nil {
		rt.store.Close()
	}
	if rt.log != nil {
		_ = rt.log.Sync()
	}
}

func (rt *runtime) serveMetrics() {
	srv := api.NewServer(rt.store, rt.registry, rt.log)
	rt.metricsSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", rt.cfg.Metrics.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		rt.log.Info("metrics server started", zap.Int("port", rt.cfg.Metrics.Port))
		if err := rt.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.log.Error("metrics server error", zap.Error(err))
		}
	}()
}

// newFetcher builds the shared page fetcher.
func (rt *runtime) newFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Config{
		UserAgent: rt.cfg.UserAgent,
		Timeout:   rt.cfg.Crawl.Timeout(),
	}, rt.log)
}

// newGate builds the optional relevance classifier; nil when disabled.
func (rt *runtime) newGate() *gate.Gate {
	or := rt.cfg.OpenRouter
	return gate.New(gate.Config{
		Enabled:  or.Enabled,
		Endpoint: or.Endpoint,
		APIKey:   or.APIKey,
		Model:    or.Model,
		Timeout:  time.Duration(or.TimeoutSeconds) * time.Second,
		MaxChars: or.ReadableMaxChars,
		MaxCalls: int64(or.MaxCallsPerRun),
	}, rt.log)
}

// newArchive selects the HTML archive backend, or NoOp when archiving
// is off.
func (rt *runtime) newArchive(ctx context.Context) (archive.Provider, error) {
	if !rt.cfg.Archive {
		return archive.NoOp{}, nil
	}
	if rt.cfg.Storage.Provider == "gcs" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		rt.gcsClient = client
		return archive.NewGCS(client, rt.cfg.Storage.GCSBucket)
	}
	return archive.NewLocal(rt.cfg.ArchiveRoot())
}

// trackRun brackets a pipeline run with hub events and, when a topic is
// configured, one published summary payload. fn receives the run ID so
// per-item events can share it.
func (rt *runtime) trackRun(ctx context.Context, operation, land string, fn func(ctx context.Context, runID [16]byte) (processed, errCount int, err error)) (int, int, error) {
	runID := progress.NewRunID()
	started := time.Now().UTC()
	rt.hub.Emit(progress.Event{
		RunID: runID, TS: started, Stage: progress.StageRunStart,
		Operation: operation, Land: land,
	})

	processed, errCount, err := fn(ctx, runID)

	ended := time.Now().UTC()
	evt := progress.Event{
		RunID: runID, TS: ended, Stage: progress.StageRunDone,
		Operation: operation, Land: land,
		Processed: int64(processed), Errors: int64(errCount),
		Dur: ended.Sub(started),
	}
	if err != nil {
		evt.Stage = progress.StageRunError
		evt.Note = err.Error()
	}
	rt.hub.Emit(evt)

	if rt.cfg.PubSub.TopicName != "" {
		payload := publisher.RunEvent{
			RunID:     progress.Event{RunID: runID}.RunUUID().String(),
			Operation: operation,
			Land:      land,
			Processed: processed,
			Errors:    errCount,
			StartedAt: started,
			EndedAt:   ended,
		}
		if _, pubErr := rt.publisher.Publish(ctx, rt.cfg.PubSub.TopicName, payload); pubErr != nil {
			rt.log.Warn("run event publish failed", zap.Error(pubErr))
		}
	}
	return processed, errCount, err
}

// notifyPage emits one page event into the hub and, when a topic is
// configured, publishes the per-expression JSON payload.
func (rt *runtime) notifyPage(ctx context.Context, runID [16]byte, land string, e store.Expression, dur time.Duration) {
	now := time.Now().UTC()
	rt.hub.Emit(progress.Event{
		RunID: runID, TS: now, Stage: progress.StagePageDone,
		Operation: "crawl", Land: land, URL: e.URL,
		StatusClass: progress.ClassifyStatus(e.HTTPStatus),
		Dur:         dur,
	})
	if rt.cfg.PubSub.TopicName == "" {
		return
	}
	payload := map[string]any{
		"run_id":    progress.Event{RunID: runID}.RunUUID().String(),
		"land":      land,
		"url":       e.URL,
		"status":    e.HTTPStatus,
		"relevance": e.Relevance,
		"timestamp": now,
	}
	if _, err := rt.publisher.Publish(ctx, rt.cfg.PubSub.TopicName, payload); err != nil {
		rt.log.Warn("page event publish failed", zap.Error(err))
	}
}

// confirm prompts on out and reads a yes/no answer from in.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// splitList splits a comma-separated argument into trimmed non-empty
// entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
