// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package notification implements A8: best-effort outbound alerting for the
// "user-visible alert" spec.md §4.4.a/§4.5 calls for when C4's tunnel keeps
// failing or C8 exhausts every backend fallback.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"shieldcore.dev/fwcore/internal/logging"
)

// Severity mirrors the teacher's notification level constants.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertEvent is the payload dispatched to every enabled channel.
type AlertEvent struct {
	Severity  Severity
	Component string
	Message   string
	Timestamp time.Time
}

// Channel is one configured notification destination.
type Channel struct {
	Name    string
	Type    string // webhook, slack, discord, ntfy, pushover, email
	Level   Severity
	Enabled bool

	WebhookURL string
	Username   string

	Server  string
	Topic   string
	Password string
	Headers map[string]string

	APIToken string
	UserKey  string
	Sound    string
	Priority int

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
	To           []string
}

// Config holds the notifications block of the daemon config.
type Config struct {
	Enabled  bool
	Channels []Channel
}

// Dispatcher fans an AlertEvent out to every enabled, level-matching
// channel, rate-limited per channel, component and message to avoid alert
// storms.
type Dispatcher struct {
	logger *logging.Logger
	mu     sync.Mutex

	config   Config
	lastSent map[string]time.Time

	httpClient  *http.Client
	emailSender func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewDispatcher builds a Dispatcher over cfg.
func NewDispatcher(cfg Config, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default().WithComponent("notification")
	}
	return &Dispatcher{
		logger:      logger,
		config:      cfg,
		lastSent:    make(map[string]time.Time),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		emailSender: smtp.SendMail,
	}
}

// UpdateConfig swaps in a reloaded notifications config.
func (d *Dispatcher) UpdateConfig(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
}

// Alert implements orchestrator.AlertSink and the tunnel backend's
// AlertSink: a single free-text reason becomes a critical AlertEvent with
// no particular component label.
func (d *Dispatcher) Alert(reason string) {
	d.Send(AlertEvent{Severity: SeverityCritical, Message: reason})
}

// ClearAlert implements the remaining half of the tunnel backend's
// AlertSink, dispatched once establishing the tunnel succeeds again after
// prior failures. Also an info event, not suppressed by the critical-alert
// rate limit key since its message differs.
func (d *Dispatcher) ClearAlert() {
	d.Send(AlertEvent{Severity: SeverityInfo, Message: "tunnel backend recovered"})
}

// Send dispatches an AlertEvent to every enabled, level-matching channel.
func (d *Dispatcher) Send(event AlertEvent) {
	d.mu.Lock()
	cfg := d.config
	d.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var wg sync.WaitGroup
	for _, ch := range cfg.Channels {
		if !ch.Enabled || !shouldSend(event.Severity, ch.Level) {
			continue
		}
		if d.isRateLimited(ch.Name, event.Component+event.Message) {
			d.logger.Debug("notification rate limited", "channel", ch.Name, "component", event.Component)
			continue
		}
		wg.Add(1)
		go func(channel Channel) {
			defer wg.Done()
			if err := d.sendToChannel(channel, event); err != nil {
				d.logger.Error("failed to send notification", "channel", channel.Name, "type", channel.Type, "error", err)
			}
		}(ch)
	}
	wg.Wait()
}

// isRateLimited skips a repeat of the same channel+key within 60s.
func (d *Dispatcher) isRateLimited(channelName, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	full := channelName + ":" + key
	last, ok := d.lastSent[full]
	now := time.Now()
	if ok && now.Sub(last) < 60*time.Second {
		return true
	}
	d.lastSent[full] = now
	if len(d.lastSent) > 1000 {
		d.lastSent = map[string]time.Time{full: now}
	}
	return false
}

func shouldSend(eventLevel, channelLevel Severity) bool {
	if channelLevel == "" {
		return true
	}
	rank := map[Severity]int{SeverityInfo: 1, SeverityWarning: 2, SeverityCritical: 3}
	return rank[eventLevel] >= rank[channelLevel]
}

func (d *Dispatcher) sendToChannel(ch Channel, event AlertEvent) error {
	switch strings.ToLower(ch.Type) {
	case "webhook", "slack", "discord":
		return d.sendWebhook(ch, event)
	case "ntfy":
		return d.sendNtfy(ch, event)
	case "pushover":
		return d.sendPushover(ch, event)
	case "email":
		return d.sendEmail(ch, event)
	default:
		return fmt.Errorf("unknown notification channel type: %s", ch.Type)
	}
}

func (d *Dispatcher) sendWebhook(ch Channel, event AlertEvent) error {
	if ch.WebhookURL == "" {
		return fmt.Errorf("missing webhook_url")
	}
	title := event.Component
	if title == "" {
		title = "shieldcore"
	}
	payload := map[string]interface{}{
		"text": fmt.Sprintf("*%s*\n%s\n_Severity: %s_", title, event.Message, event.Severity),
	}
	if ch.Type == "discord" {
		payload = map[string]interface{}{"content": fmt.Sprintf("**%s**\n%s", title, event.Message)}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, ch.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) sendNtfy(ch Channel, event AlertEvent) error {
	server := ch.Server
	if server == "" {
		server = "https://ntfy.sh"
	}
	if ch.Topic == "" {
		return fmt.Errorf("missing topic for ntfy")
	}
	url := strings.TrimSuffix(server, "/") + "/" + ch.Topic

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(event.Message))
	if err != nil {
		return err
	}
	title := event.Component
	if title == "" {
		title = "shieldcore"
	}
	req.Header.Set("Title", title)
	switch event.Severity {
	case SeverityCritical:
		req.Header.Set("Priority", "high")
		req.Header.Set("Tags", "rotating_light")
	case SeverityWarning:
		req.Header.Set("Priority", "default")
		req.Header.Set("Tags", "warning")
	default:
		req.Header.Set("Priority", "low")
		req.Header.Set("Tags", "information_source")
	}
	for k, v := range ch.Headers {
		req.Header.Set(k, v)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ntfy failed with status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) sendPushover(ch Channel, event AlertEvent) error {
	if ch.APIToken == "" || ch.UserKey == "" {
		return fmt.Errorf("missing api_token or user_key")
	}
	payload := map[string]interface{}{
		"token":     ch.APIToken,
		"user":      ch.UserKey,
		"message":   event.Message,
		"title":     event.Component,
		"timestamp": event.Timestamp.Unix(),
	}
	if ch.Sound != "" {
		payload["sound"] = ch.Sound
	}
	if event.Severity == SeverityCritical {
		payload["priority"] = 1
	} else if ch.Priority != 0 {
		payload["priority"] = ch.Priority
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, "https://api.pushover.net/1/messages.json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("pushover failed with status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) sendEmail(ch Channel, event AlertEvent) error {
	if ch.SMTPHost == "" || len(ch.To) == 0 {
		return fmt.Errorf("missing smtp_host or recipients")
	}
	port := ch.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", ch.SMTPHost, port)

	var auth smtp.Auth
	if ch.SMTPUser != "" {
		auth = smtp.PlainAuth("", ch.SMTPUser, ch.SMTPPassword, ch.SMTPHost)
	}

	from := ch.From
	if from == "" {
		from = "shieldcore@localhost"
	}
	headers := map[string]string{
		"From":         from,
		"To":           strings.Join(ch.To, ","),
		"Subject":      fmt.Sprintf("[%s] %s", event.Severity, event.Component),
		"MIME-Version": "1.0",
		"Content-Type": `text/plain; charset="utf-8"`,
	}
	var headerStr strings.Builder
	for k, v := range headers {
		fmt.Fprintf(&headerStr, "%s: %s\r\n", k, v)
	}
	msg := []byte(headerStr.String() + "\r\n" + event.Message + "\r\n")

	if d.emailSender != nil {
		return d.emailSender(addr, auth, from, ch.To, msg)
	}
	return smtp.SendMail(addr, auth, from, ch.To, msg)
}
