package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ForeclosureWatch/internal/config"
	"github.com/turtacn/ForeclosureWatch/internal/domain/discrepancy"
	"github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// Event types carried in EventEnvelope.EventType.
const (
	EventCaseEvents            = "case.events"
	EventCaseExtraction        = "case.extraction"
	EventClassificationChanged = "case.classification_changed"
	EventLedgerUpdated         = "case.ledger_updated"
	EventDiscrepanciesDetected = "case.discrepancies_detected"
)

const (
	SchemaVersion = "v1"
	DefaultSource = "fwatch-worker"

	headerEventType     = "event_type"
	headerSourceService = "source_service"
	headerSchemaVersion = "schema_version"
)

// EventEnvelope wraps every payload on the wire.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CaseEventsPayload is the full current docket of one case as scraped by
// the ingestion collaborator. CaseID may be empty for a case seen for the
// first time; CaseNumber and County then identify it.
type CaseEventsPayload struct {
	CaseID          string                 `json:"case_id,omitempty"`
	CaseNumber      string                 `json:"case_number"`
	County          string                 `json:"county"`
	PropertyAddress string                 `json:"property_address,omitempty"`
	Defendants      []string               `json:"defendants,omitempty"`
	Events          []foreclosure.RawEvent `json:"events"`
}

// Details returns the case page's identity fields.
func (p CaseEventsPayload) Details() foreclosure.CaseDetails {
	return foreclosure.CaseDetails{PropertyAddress: p.PropertyAddress, Defendants: p.Defendants}
}

// ExtractionPayload is one document's candidate field values.
type ExtractionPayload struct {
	CaseID     string                  `json:"case_id"`
	DocumentID string                  `json:"document_id,omitempty"`
	Fields     discrepancy.RawFieldMap `json:"fields"`
	// ObservedOn is the event date of the bid the document reports
	// (YYYY-MM-DD). Blank when the document carries no bid.
	ObservedOn string `json:"observed_on,omitempty"`
}

// ClassificationChangedPayload announces an applied transition.
type ClassificationChangedPayload struct {
	CaseID     string                     `json:"case_id"`
	CaseNumber string                     `json:"case_number"`
	County     string                     `json:"county"`
	From       foreclosure.Classification `json:"from"`
	To         foreclosure.Classification `json:"to"`
	Reason     string                     `json:"reason"`
	Source     foreclosure.Source         `json:"source"`
	ChangedAt  time.Time                  `json:"changed_at"`
}

// LedgerUpdatedPayload announces an applied ledger change.
type LedgerUpdatedPayload struct {
	CaseID string             `json:"case_id"`
	Before foreclosure.Ledger `json:"before"`
	After  foreclosure.Ledger `json:"after"`
	Reason string             `json:"reason"`
}

// DiscrepanciesDetectedPayload carries newly queued review records.
type DiscrepanciesDetectedPayload struct {
	CaseID  string               `json:"case_id"`
	Records []discrepancy.Record `json:"records"`
}

// NewEventEnvelope marshals payload into a fresh envelope.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target. An empty payload is
// malformed input.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.MalformedInput("envelope has no payload").WithDetail("event_id=" + e.EventID)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage encodes the envelope for topic, keyed by key.
func (e *EventEnvelope) ToMessage(topic, key string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
		Headers: map[string]string{
			headerEventType:     e.EventType,
			headerSourceService: e.Source,
			headerSchemaVersion: e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

// DecodeEnvelope reads an envelope from a consumed message.
func DecodeEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.MalformedInput("empty message value").WithDetail("topic=" + msg.Topic)
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// EventPublisher
// ─────────────────────────────────────────────────────────────────────────────

type messagePublisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// EventPublisher turns engine outcomes into envelopes on the outbound
// topics. Every message is keyed by case id.
type EventPublisher struct {
	producer messagePublisher
	topics   config.TopicConfig
	source   string
	logger   logging.Logger
}

// NewEventPublisher builds a publisher over p.
func NewEventPublisher(p *Producer, topics config.TopicConfig, logger logging.Logger) *EventPublisher {
	return &EventPublisher{producer: p, topics: topics, source: DefaultSource, logger: logger}
}

func (p *EventPublisher) publish(ctx context.Context, topic, eventType, key string, payload interface{}) error {
	env, err := NewEventEnvelope(eventType, p.source, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic, key)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

// PublishTransition announces a classification change.
func (p *EventPublisher) PublishTransition(ctx context.Context, c *foreclosure.Case, t foreclosure.Transition) error {
	return p.publish(ctx, p.topics.Classified, EventClassificationChanged, c.ID, ClassificationChangedPayload{
		CaseID:     c.ID,
		CaseNumber: c.CaseNumber,
		County:     c.County,
		From:       t.From,
		To:         t.To,
		Reason:     t.Reason,
		Source:     t.Source,
		ChangedAt:  t.At,
	})
}

// PublishLedger announces an applied ledger update.
func (p *EventPublisher) PublishLedger(ctx context.Context, caseID string, u foreclosure.LedgerUpdate) error {
	return p.publish(ctx, p.topics.Ledger, EventLedgerUpdated, caseID, LedgerUpdatedPayload{
		CaseID: caseID,
		Before: u.Before,
		After:  u.After,
		Reason: u.Reason,
	})
}

// PublishDiscrepancies announces newly queued discrepancy records.
func (p *EventPublisher) PublishDiscrepancies(ctx context.Context, caseID string, records []discrepancy.Record) error {
	if len(records) == 0 {
		return nil
	}
	return p.publish(ctx, p.topics.Discrepancies, EventDiscrepanciesDetected, caseID, DiscrepanciesDetectedPayload{
		CaseID:  caseID,
		Records: records,
	})
}
