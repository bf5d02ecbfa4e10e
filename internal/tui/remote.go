// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"shieldcore.dev/fwcore/internal/model"
)

// RemoteBackend implements Backend against a remote internal/adminapi
// instance, for the wish SSH front-end or any dashboard run off-host from
// the daemon.
type RemoteBackend struct {
	baseURL string
	client  *http.Client
}

// NewRemoteBackend builds a RemoteBackend talking to baseURL (e.g.
// "https://phone.local:8443"). insecure skips TLS verification, for
// self-signed local deployments only.
func NewRemoteBackend(baseURL string, insecure bool) *RemoteBackend {
	return &RemoteBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}},
		},
	}
}

func (b *RemoteBackend) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		log.Debug("adminapi request failed", "method", method, "path", path, "err", err)
		return nil, err
	}
	log.Debug("adminapi request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

type remoteState struct {
	Kind    string `json:"kind"`
	Backend string `json:"backend"`
	Message string `json:"message,omitempty"`
}

func parseBackendKind(s string) model.BackendKind {
	switch s {
	case "packet_filter":
		return model.BackendPacketFilter
	case "conn_mgr":
		return model.BackendConnMgr
	case "net_policy":
		return model.BackendNetPolicy
	default:
		return model.BackendTunnel
	}
}

func (rs remoteState) toState() model.FirewallState {
	kind := model.StateStopped
	switch rs.Kind {
	case "starting":
		kind = model.StateStarting
	case "running":
		kind = model.StateRunning
	case "error":
		kind = model.StateError
	}
	return model.FirewallState{Kind: kind, Backend: parseBackendKind(rs.Backend), Message: rs.Message}
}

func (b *RemoteBackend) State() model.FirewallState {
	resp, err := b.do(context.Background(), http.MethodGet, "/v1/state", nil)
	if err != nil {
		return model.FirewallState{Kind: model.StateError, Message: err.Error()}
	}
	defer resp.Body.Close()

	var rs remoteState
	if err := json.NewDecoder(resp.Body).Decode(&rs); err != nil {
		return model.FirewallState{Kind: model.StateError, Message: err.Error()}
	}
	return rs.toState()
}

func (b *RemoteBackend) Start(ctx context.Context, mode model.FirewallMode) error {
	body, _ := json.Marshal(map[string]string{"mode": mode.String()})
	resp, err := b.do(ctx, http.MethodPost, "/v1/start", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("adminapi start: %s", resp.Status)
	}
	return nil
}

func (b *RemoteBackend) Stop(ctx context.Context) error {
	resp, err := b.do(ctx, http.MethodPost, "/v1/stop", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("adminapi stop: %s", resp.Status)
	}
	return nil
}

// StateStream dials the adminapi websocket endpoint and relays each
// decoded state onto a channel until ctx is canceled or the connection drops.
func (b *RemoteBackend) StateStream(ctx context.Context) (<-chan model.FirewallState, func()) {
	out := make(chan model.FirewallState)
	streamCtx, cancel := context.WithCancel(ctx)

	wsURL := strings.Replace(b.baseURL, "http", "ws", 1) + "/v1/stream"
	go func() {
		defer close(out)
		conn, _, err := websocket.DefaultDialer.DialContext(streamCtx, wsURL, nil)
		if err != nil {
			log.Debug("adminapi stream dial failed", "err", err)
			return
		}
		defer conn.Close()

		go func() {
			<-streamCtx.Done()
			conn.Close()
		}()

		for {
			var rs remoteState
			if err := conn.ReadJSON(&rs); err != nil {
				return
			}
			select {
			case out <- rs.toState():
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return out, cancel
}
