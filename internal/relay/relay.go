// Package relay publishes recorded events to Kafka.
package relay

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"roadwork/internal/config"
	"roadwork/internal/domain"
	"roadwork/internal/logging"
	"roadwork/internal/metrics"
	"roadwork/internal/repo"
)

// CursorName identifies the relay's row in relay_cursors.
const CursorName = "kafka"

const (
	defaultInterval = 5 * time.Second
	defaultBatch    = 100
)

// Writer is the subset of kafka.Writer the dispatcher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer for cfg.Topic. Messages with the same key
// land on the same partition.
func NewKafkaWriter(cfg config.RelayConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

type Dispatcher struct {
	Repo      repo.Repo
	Writer    Writer
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
	Log       logging.Logger
	Metrics   *metrics.Metrics
}

func NewDispatcher(r repo.Repo, w Writer, cfg config.RelayConfig, log logging.Logger, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		Repo:      r,
		Writer:    w,
		Interval:  time.Duration(cfg.IntervalSeconds) * time.Second,
		BatchSize: cfg.BatchSize,
		Now:       time.Now,
		Log:       logging.OrNop(log).Named("relay"),
		Metrics:   m,
	}
	if d.Interval <= 0 {
		d.Interval = defaultInterval
	}
	if d.BatchSize <= 0 {
		d.BatchSize = defaultBatch
	}
	return d
}

// Run dispatches on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.Log.Warn("relay tick failed", logging.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce publishes up to one batch of events after the stored cursor
// and returns how many were published. The cursor only moves past events
// the writer accepted.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	cursor, err := d.Repo.RelayCursor(ctx, CursorName)
	if err != nil {
		return 0, err
	}
	events, err := d.Repo.EventsAfter(ctx, d.BatchSize, cursor)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, evt := range events {
		msg, err := message(evt)
		if err != nil {
			return sent, err
		}
		if err := d.Writer.WriteMessages(ctx, msg); err != nil {
			d.Metrics.ObserveRelay(false)
			d.Log.Warn("publish failed",
				logging.Int64("event_id", evt.ID),
				logging.String("type", evt.Type),
				logging.Err(err))
			return sent, err
		}
		d.Metrics.ObserveRelay(true)
		if err := d.Repo.SetRelayCursor(ctx, CursorName, evt.ID, d.Now().UTC().Format(time.RFC3339)); err != nil {
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		d.Log.Debug("published events", logging.Int("count", sent), logging.Int64("cursor", events[sent-1].ID))
	}
	return sent, nil
}

type envelope struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	ActivityID string          `json:"activity_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func message(evt domain.Event) (kafka.Message, error) {
	payload := json.RawMessage("{}")
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage(evt.Payload)
		} else {
			raw = evt.Payload
		}
	}
	data, err := json.Marshal(envelope{
		ID:         evt.ID,
		Type:       evt.Type,
		ActivityID: evt.ActivityID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
		PayloadRaw: raw,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	key := evt.ActivityID
	if key == "" {
		key = evt.EntityID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
			{Key: "event-id", Value: []byte(strconv.FormatInt(evt.ID, 10))},
		},
	}, nil
}
