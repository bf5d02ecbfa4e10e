// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package notification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"shieldcore.dev/fwcore/internal/logging"
)

func TestDispatcher_Webhook(t *testing.T) {
	called := atomic.Int32{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["text"]; !ok {
			if _, ok := body["content"]; !ok {
				t.Errorf("expected 'text' or 'content' field in payload, got %v", body)
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := Config{
		Enabled: true,
		Channels: []Channel{
			{Name: "test-webhook", Type: "webhook", Enabled: true, WebhookURL: ts.URL},
		},
	}

	d := NewDispatcher(cfg, logging.New(logging.DefaultConfig()))
	d.Send(AlertEvent{Severity: SeverityInfo, Component: "tunnel", Message: "test message"})

	if called.Load() != 1 {
		t.Errorf("expected webhook to be called once, got %d", called.Load())
	}
}

func TestDispatcher_RateLimit(t *testing.T) {
	called := atomic.Int32{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := Config{
		Enabled: true,
		Channels: []Channel{
			{Name: "test-webhook-rl", Type: "webhook", Enabled: true, WebhookURL: ts.URL},
		},
	}

	d := NewDispatcher(cfg, logging.New(logging.DefaultConfig()))
	d.Send(AlertEvent{Component: "tunnel", Message: "duplicate"})
	d.Send(AlertEvent{Component: "tunnel", Message: "duplicate"})

	if called.Load() != 1 {
		t.Fatalf("expected webhook to be called once (rate limited), got %d", called.Load())
	}
}

func TestDispatcher_LevelFiltering(t *testing.T) {
	called := atomic.Int32{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := Config{
		Enabled: true,
		Channels: []Channel{
			{Name: "critical-only", Type: "webhook", Enabled: true, WebhookURL: ts.URL, Level: SeverityCritical},
		},
	}

	d := NewDispatcher(cfg, logging.New(logging.DefaultConfig()))
	d.Send(AlertEvent{Severity: SeverityInfo, Component: "tunnel", Message: "informational"})
	if called.Load() != 0 {
		t.Fatalf("expected info-level alert to be filtered out, got %d calls", called.Load())
	}

	d.Send(AlertEvent{Severity: SeverityCritical, Component: "tunnel", Message: "everything is down"})
	if called.Load() != 1 {
		t.Fatalf("expected critical alert to pass the filter, got %d calls", called.Load())
	}
}

func TestDispatcher_Alert_SatisfiesAlertSink(t *testing.T) {
	called := atomic.Int32{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := Config{
		Enabled:  true,
		Channels: []Channel{{Name: "alerts", Type: "webhook", Enabled: true, WebhookURL: ts.URL}},
	}
	d := NewDispatcher(cfg, logging.New(logging.DefaultConfig()))
	d.Alert("all backends failed to start")

	if called.Load() != 1 {
		t.Fatalf("expected Alert to dispatch to the webhook channel, got %d calls", called.Load())
	}
}
