package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/leadflow/internal/channels"
	"github.com/wolfman30/leadflow/internal/channels/meta"
	"github.com/wolfman30/leadflow/internal/channels/zapi"
	"github.com/wolfman30/leadflow/internal/conversation"
	"github.com/wolfman30/leadflow/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/leadflow/internal/http/middleware"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/internal/worker"
	"github.com/wolfman30/leadflow/pkg/logging"
)

type noopPipeline struct{ ingested int }

func (p *noopPipeline) Ingest(ctx context.Context, evt channels.InboundEvent) (*conversation.Resolution, error) {
	p.ingested++
	return nil, conversation.ErrIntegrationNotFound
}

func (p *noopPipeline) Reply(ctx context.Context, res *conversation.Resolution) error { return nil }

func (p *noopPipeline) Process(ctx context.Context, evt channels.InboundEvent) error { return nil }

type noopRunner struct{}

func (noopRunner) Go(name string, fn worker.Task) error { return nil }

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) (http.Handler, *noopPipeline) {
	t.Helper()

	registry := channels.NewRegistry()
	registry.Register(channels.Channel{Codec: meta.NewCodec()})
	registry.Register(channels.Channel{Codec: zapi.NewCodec()})

	pipeline := &noopPipeline{}
	logger := logging.Default()
	webhooks := handlers.NewWebhookHandler(handlers.WebhookConfig{
		Registry:        registry,
		Pipeline:        pipeline,
		Runner:          noopRunner{},
		MetaVerifyToken: "token",
		Logger:          logger,
	})

	reg := prometheus.NewRegistry()
	metrics.NewPipelineMetrics(reg).ObserveInbound("zapi", "accepted")

	return New(&Config{
		Logger:         logger,
		Webhooks:       webhooks,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		WebhookLimiter: limiter,
	}), pipeline
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "leadflow_pipeline_inbound_total") {
		t.Fatalf("expected pipeline metrics in output, got %s", rr.Body.String())
	}
}

func TestRouterMetaVerification(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhooks/meta?hub.mode=subscribe&hub.verify_token=token&hub.challenge=abc", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != "abc" {
		t.Fatalf("unexpected verification response %d %q", rr.Code, rr.Body.String())
	}
}

func TestRouterZAPIWebhookUnknownInstance(t *testing.T) {
	router, pipeline := newTestRouter(t, nil)
	body := `{"type":"ReceivedCallback","instanceId":"x","messageId":"m1","phone":"5511988887777","text":{"message":"oi"}}`

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/zapi", strings.NewReader(body)))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if pipeline.ingested != 1 {
		t.Fatalf("expected one ingest, got %d", pipeline.ingested)
	}
}

func TestRouterUAZAPIWithoutChannel(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/uazapi", strings.NewReader(`{}`)))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unregistered channel, got %d", rr.Code)
	}
}

func TestRouterWebhookRateLimit(t *testing.T) {
	router, _ := newTestRouter(t, httpmiddleware.NewRateLimiter(0.001, 1))

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/webhooks/meta?hub.mode=subscribe&hub.verify_token=token&hub.challenge=1", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health must not be rate limited, got %d", rr.Code)
	}
}
