// Package events streams appended activity log entries to NATS so that
// downstream consumers (SIEM, archival) can follow the audit trail.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sakif/student-data-vault/internal/model"
)

// AuditEvent is the JSON payload published for each entry.
type AuditEvent struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prevHash,omitempty"`
	Scheme    string    `json:"scheme"`
}

func newAuditEvent(e model.LogEntry) AuditEvent {
	return AuditEvent{
		ID:        e.ID,
		Seq:       e.Seq,
		UserID:    e.UserID,
		Role:      e.Role,
		Action:    e.Action,
		Timestamp: e.Timestamp,
		Hash:      e.Hash,
		PrevHash:  e.PrevHash,
		Scheme:    e.Scheme,
	}
}

// publisher is the part of *nats.Conn the Producer uses.
type publisher interface {
	Publish(subj string, data []byte) error
}

// Producer publishes audit events to one subject.
type Producer struct {
	conn    publisher
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewProducer connects to the NATS server at url.
func NewProducer(url, subject string, logger *slog.Logger) (*Producer, error) {
	nc, err := nats.Connect(url,
		nats.Name("student-data-vault"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connecting to %s: %w", url, err)
	}

	logger.Info("NATS producer initialized", slog.String("url", url), slog.String("subject", subject))

	return &Producer{conn: nc, nc: nc, subject: subject, logger: logger}, nil
}

// Publish sends one entry. It does not wait for delivery.
func (p *Producer) Publish(ctx context.Context, e model.LogEntry) error {
	data, err := json.Marshal(newAuditEvent(e))
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("events: publish to %s: %w", p.subject, err)
	}

	p.logger.DebugContext(ctx, "audit event published",
		slog.String("subject", p.subject),
		slog.String("action", e.Action),
	)
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Producer) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("events: draining: %w", err)
	}
	return nil
}
