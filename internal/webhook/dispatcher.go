package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/session-gateway/internal/errors"
)

const (
	HeaderAPIKey    = "x-api-key"
	HeaderSignature = "x-signature"
)

type Config struct {
	// DefaultKey signs payloads for sessions without an auth token and is sent as x-api-key.
	DefaultKey string
	UserAgent  string
	Timeout    time.Duration
	Workers    int
	QueueSize  int
}

// Body is the JSON document posted to webhook URLs.
type Body struct {
	DataType  string `json:"dataType"`
	Data      any    `json:"data"`
	SessionID string `json:"sessionId"`
}

type Stats struct {
	Delivered int64
	Failed    int64
	Dropped   int64
}

type delivery struct {
	url       string
	sessionID string
	eventType string
	signature string
	body      []byte
}

// Dispatcher delivers signed events on a fixed pool of workers. Delivery is best-effort:
// failures are logged, never retried and never reported back to the caller.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	queue  chan delivery
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	d := &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		queue:  make(chan delivery, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	log.Info().
		Int("workers", cfg.Workers).
		Int("queueSize", cfg.QueueSize).
		Msg("webhook dispatcher started")

	return d
}

// Dispatch signs payload and queues it for delivery to url. It never blocks; it returns
// false when the event could not be queued. A nil payload is replaced by eventType.
func (d *Dispatcher) Dispatch(url, sessionID, authToken, eventType string, payload any) bool {
	secret := authToken
	if secret == "" {
		secret = d.cfg.DefaultKey
	}
	if payload == nil {
		payload = eventType
	}

	signature, err := Sign(secret, payload)
	if err != nil {
		log.Error().Err(err).
			Str("sessionId", sessionID).
			Str("dataType", eventType).
			Msg("failed to sign webhook payload")
		return false
	}

	body, err := json.Marshal(Body{DataType: eventType, Data: payload, SessionID: sessionID})
	if err != nil {
		log.Error().Err(err).
			Str("sessionId", sessionID).
			Str("dataType", eventType).
			Msg("failed to encode webhook body")
		return false
	}

	job := delivery{
		url:       url,
		sessionID: sessionID,
		eventType: eventType,
		signature: signature,
		body:      body,
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- job:
		return true
	default:
		d.dropped.Add(1)
		log.Warn().
			Str("sessionId", sessionID).
			Str("dataType", eventType).
			Msg("webhook queue full, dropping event")
		return false
	}
}

// Close stops accepting events and waits for queued deliveries to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	log.Info().Msg("webhook dispatcher stopped")
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		if err := d.deliver(job); err != nil {
			d.failed.Add(1)
			log.Error().
				Err(err).
				Str("sessionId", job.sessionID).
				Str("dataType", job.eventType).
				Str("url", job.url).
				Msg("failed to send webhook")
			continue
		}
		d.delivered.Add(1)
	}
}

func (d *Dispatcher) deliver(job delivery) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.url, bytes.NewReader(job.body))
	if err != nil {
		return apperrors.DeliveryFailed(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, d.cfg.DefaultKey)
	req.Header.Set(HeaderSignature, job.signature)
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	start := time.Now()
	resp, err := d.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return apperrors.DeliveryFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.DeliveryFailed(fmt.Errorf("webhook responded with status %d", resp.StatusCode))
	}

	log.Debug().
		Str("sessionId", job.sessionID).
		Str("dataType", job.eventType).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("webhook delivered")

	return nil
}
