package revokesessions

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
)

// Publisher is the part of *nats.Conn used to emit revocation events.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type eventEnvelope struct {
	EventID    string     `json:"event_id"`
	EventType  string     `json:"event_type"`
	OccurredAt int64      `json:"occurred_at"`
	Payload    AuditEntry `json:"payload"`
}

// EventAuditor publishes each audit entry on
// <prefix>.salesforce.sessions.<status>.
type EventAuditor struct {
	conn          Publisher
	subjectPrefix string
}

func NewEventAuditor(conn Publisher, subjectPrefix string) *EventAuditor {
	if subjectPrefix == "" {
		subjectPrefix = "salesforce-workers"
	}
	return &EventAuditor{conn: conn, subjectPrefix: subjectPrefix}
}

func (a *EventAuditor) Subject(status string) string {
	return fmt.Sprintf("%s.salesforce.sessions.%s", a.subjectPrefix, status)
}

func (a *EventAuditor) Record(_ context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	data, err := json.Marshal(eventEnvelope{
		EventID:    entry.ID,
		EventType:  "salesforce.sessions." + entry.Status,
		OccurredAt: entry.RecordedAt.Unix(),
		Payload:    entry,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := a.conn.Publish(a.Subject(entry.Status), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// MultiAuditor records to every auditor in order and joins their errors.
type MultiAuditor []Auditor

func (m MultiAuditor) Record(ctx context.Context, entry AuditEntry) error {
	var errs []error
	for _, a := range m {
		if err := a.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
