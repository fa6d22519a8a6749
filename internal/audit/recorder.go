package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/repository"
)

// Publisher forwards appended entries to an external stream.
type Publisher interface {
	Publish(ctx context.Context, entry model.LogEntry) error
}

// Recorder appends entries to the activity log.
type Recorder struct {
	logs      repository.LogRepository
	scheme    string
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	// mu serializes appends from this process. The store's transaction
	// covers writers in other processes.
	mu sync.Mutex
}

// NewRecorder creates a Recorder stamping new entries with scheme.
// publisher may be nil.
func NewRecorder(logs repository.LogRepository, scheme string, publisher Publisher, logger *slog.Logger) (*Recorder, error) {
	if !ValidScheme(scheme) {
		return nil, fmt.Errorf("audit: unknown digest scheme %q", scheme)
	}
	return &Recorder{
		logs:      logs,
		scheme:    scheme,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Record appends one entry for actor. It returns an error if the entry
// could not be stored; publishing is best effort.
func (r *Recorder) Record(ctx context.Context, userID, role, action string) (*model.LogEntry, error) {
	r.mu.Lock()
	entry := &model.LogEntry{
		UserID:    userID,
		Role:      role,
		Action:    action,
		Timestamp: r.now().UTC(),
		Scheme:    r.scheme,
	}
	err := r.logs.Append(ctx, entry, func(e *model.LogEntry) error {
		h, err := Digest(e.Scheme, *e)
		if err != nil {
			return err
		}
		e.Hash = h
		return nil
	})
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("audit: recording %q: %w", action, err)
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, *entry); err != nil {
			r.logger.Warn("audit entry not published",
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
		}
	}

	return entry, nil
}
