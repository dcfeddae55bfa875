package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"

	DefaultTimeout     = 10 * time.Second
	DefaultQueueSize   = 256
	DefaultWorkers     = 4
	DefaultMaxAttempts = 3

	maxMessageLen  = 500
	maxResponseLen = 64 << 10
)

var (
	_ service.Notifier      = (*Dispatcher)(nil)
	_ service.WebhookTester = (*Dispatcher)(nil)
)

// EndpointSource supplies the current webhook target. It is read per delivery
// so settings changes apply without a restart.
type EndpointSource interface {
	WebhookEndpoint() (url, secret string)
}

// StatusError is a non-2xx answer from the receiver
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, truncate(e.Body, 200))
}

// RejectedError is a 2xx answer whose JSON body reports success=false
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "receiver rejected delivery: " + e.Message
}

type delivery struct {
	id      string
	payload Payload
}

// Dispatcher delivers signed game results from a bounded queue with retries
type Dispatcher struct {
	source      EndpointSource
	client      *http.Client
	queue       chan delivery
	workers     int
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	now         func() time.Time

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

func WithWorkers(n int) Option {
	return func(d *Dispatcher) { d.workers = n }
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan delivery, n) }
}

// WithRetry sets the attempt budget and the backoff bounds between attempts
func WithRetry(maxAttempts int, min, max time.Duration) Option {
	return func(d *Dispatcher) {
		d.maxAttempts = maxAttempts
		d.minBackoff = min
		d.maxBackoff = max
	}
}

// NewDispatcher creates a dispatcher; Start must be called before results are queued
func NewDispatcher(source EndpointSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source:      source,
		client:      &http.Client{Timeout: DefaultTimeout},
		queue:       make(chan delivery, DefaultQueueSize),
		workers:     DefaultWorkers,
		maxAttempts: DefaultMaxAttempts,
		minBackoff:  500 * time.Millisecond,
		maxBackoff:  5 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers < 1 {
		d.workers = 1
	}
	if d.maxAttempts < 1 {
		d.maxAttempts = 1
	}
	return d
}

// Start launches the delivery workers
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop closes the queue and waits for in-flight deliveries or ctx
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify queues a result for delivery without blocking. A full queue drops the result.
func (d *Dispatcher) Notify(r engine.Result) {
	if url, secret := d.source.WebhookEndpoint(); url == "" || secret == "" {
		log.Warn().Str("session_id", r.SessionID).Msg("webhook URL or secret not configured, skipping delivery")
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		id = r.SessionID
	}
	dl := delivery{id: id, payload: NewPayload(r, d.now())}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Warn().Str("session_id", r.SessionID).Msg("webhook dispatcher stopped, dropping result")
		return
	}
	select {
	case d.queue <- dl:
	default:
		log.Error().
			Str("session_id", r.SessionID).
			Str("delivery_id", id).
			Msg("webhook queue full, dropping result")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	budget := time.Duration(d.maxAttempts) * (d.client.Timeout + d.maxBackoff)
	for dl := range d.queue {
		url, secret := d.source.WebhookEndpoint()
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		err := d.Deliver(ctx, service.WebhookTarget{URL: url, Secret: secret}, dl.id, dl.payload)
		cancel()

		logger := log.With().
			Str("session_id", dl.payload.GameID).
			Str("delivery_id", dl.id).
			Str("player_id", dl.payload.Data.PlayerEmail).
			Logger()
		if err != nil {
			logger.Error().Err(err).Msg("webhook delivery failed")
			continue
		}
		logger.Info().Int("points_change", dl.payload.Data.PointsChange).Msg("webhook delivered")
	}
}

// Deliver posts p to target, retrying transient failures with jittered backoff
func (d *Dispatcher) Deliver(ctx context.Context, target service.WebhookTarget, id string, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", engine.ErrWebhookDeliveryFailed, err)
	}

	b := &backoff.Backoff{Min: d.minBackoff, Max: d.maxBackoff, Factor: 2, Jitter: true}
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		_, _, err := d.post(ctx, target, id, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == d.maxAttempts {
			break
		}

		wait := b.Duration()
		log.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Str("delivery_id", id).Msg("webhook attempt failed, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", engine.ErrWebhookDeliveryFailed, ctx.Err())
		}
	}
	return fmt.Errorf("%w: %w", engine.ErrWebhookDeliveryFailed, lastErr)
}

// Test sends one synthetic payload and reports the raw outcome
func (d *Dispatcher) Test(ctx context.Context, target service.WebhookTarget) service.WebhookTestResult {
	body, err := json.Marshal(TestPayload(d.now()))
	if err != nil {
		return service.WebhookTestResult{Message: "Error: " + err.Error()}
	}
	id, _ := gonanoid.New()

	status, text, err := d.post(ctx, target, id, body)
	if status == 0 && err != nil {
		return service.WebhookTestResult{Success: false, Message: "Error: " + err.Error()}
	}
	return service.WebhookTestResult{
		Success:    err == nil,
		StatusCode: status,
		Message:    fmt.Sprintf("Status: %d, Response: %s", status, truncate(text, maxMessageLen)),
	}
}

func (d *Dispatcher) post(ctx context.Context, target service.WebhookTarget, id string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(body, target.Secret))
	req.Header.Set(HeaderEvent, EventGameCompleted)
	req.Header.Set(HeaderDelivery, id)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	text := string(raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, text, &StatusError{Code: resp.StatusCode, Body: text}
	}

	var ack struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &ack) == nil && ack.Success != nil && !*ack.Success {
		return resp.StatusCode, text, &RejectedError{Message: ack.Message}
	}
	return resp.StatusCode, text, nil
}

func retryable(err error) bool {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusRequestTimeout || se.Code == http.StatusTooManyRequests
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
