// Package worker turns consumed Kafka messages into case monitor service
// calls and runs the periodic staleness sweep.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	appForeclosure "github.com/turtacn/ForeclosureWatch/internal/application/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// MessageHandler processes the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, msg *kafka.Message) error
}

// MessageRecorder counts handled messages.
type MessageRecorder interface {
	RecordMessage(topic string, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordMessage(string, error) {}

// Archiver keeps a copy of every consumed payload.
type Archiver interface {
	Store(ctx context.Context, key string, body []byte) error
}

// Subscriber is the part of kafka.Consumer the worker needs.
type Subscriber interface {
	Subscribe(topic string, handler kafka.MessageHandler) error
}

// HandlerOptions are shared by all handlers.
type HandlerOptions struct {
	// Timeout bounds one message; zero means no bound.
	Timeout  time.Duration
	Recorder MessageRecorder
	// Archive is optional. Archive failures never block processing.
	Archive Archiver
	Logger  logging.Logger
}

func (o HandlerOptions) withDefaults() HandlerOptions {
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
	return o
}

// Register subscribes every handler on s.
func Register(s Subscriber, handlers ...MessageHandler) error {
	for _, h := range handlers {
		if err := s.Subscribe(h.Topic(), h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// permanent reports errors that a retry cannot fix. Such messages are
// logged, counted and acknowledged instead of going through the retry and
// dead-letter path.
func permanent(err error) bool {
	switch errors.GetCode(err) {
	case errors.ErrCodeMalformedInput,
		errors.ErrCodeSerialization,
		errors.ErrCodeBadRequest,
		errors.ErrCodeValidation,
		errors.ErrCodeNotFound,
		errors.ErrCodeCaseNotFound,
		errors.ErrCodeInvariantViolation:
		return true
	}
	return false
}

// run applies the timeout, the metric and the retry policy around fn.
func run(ctx context.Context, opts HandlerOptions, msg *kafka.Message, fn func(context.Context) error) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	log := opts.Logger.With(
		logging.String("topic", msg.Topic),
		logging.Int("partition", msg.Partition),
		logging.Int64("offset", msg.Offset),
		logging.String("key", string(msg.Key)))

	if opts.Archive != nil {
		if aerr := opts.Archive.Store(ctx, archiveKey(msg), msg.Value); aerr != nil {
			log.Warn("Payload archive failed", logging.Err(aerr))
		}
	}

	err := fn(ctx)
	opts.Recorder.RecordMessage(msg.Topic, err)
	if err == nil {
		return nil
	}

	if permanent(err) {
		log.Warn("Dropping unprocessable message", logging.Err(err))
		return nil
	}
	log.Error("Message handling failed", logging.Err(err))
	return err
}

// archiveKey is topic/key/timestamp-partition-offset.json. Offsets are
// unique per partition, so redeliveries overwrite the same object.
func archiveKey(msg *kafka.Message) string {
	key := strings.ReplaceAll(string(msg.Key), "/", "_")
	if key == "" {
		key = "unkeyed"
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("%s/%s/%s-%d-%d.json",
		msg.Topic, key, ts.UTC().Format("20060102T150405Z"), msg.Partition, msg.Offset)
}

// ─────────────────────────────────────────────────────────────────────────────
// Case events
// ─────────────────────────────────────────────────────────────────────────────

// CaseEventsHandler ingests scraped dockets.
type CaseEventsHandler struct {
	topic string
	svc   appForeclosure.CaseMonitorService
	opts  HandlerOptions
}

// NewCaseEventsHandler handles kafka.EventCaseEvents envelopes on topic.
func NewCaseEventsHandler(topic string, svc appForeclosure.CaseMonitorService, opts HandlerOptions) *CaseEventsHandler {
	opts = opts.withDefaults()
	opts.Logger = opts.Logger.Named("case-events")
	return &CaseEventsHandler{topic: topic, svc: svc, opts: opts}
}

func (h *CaseEventsHandler) Topic() string { return h.topic }

func (h *CaseEventsHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	return run(ctx, h.opts, msg, func(ctx context.Context) error {
		var p kafka.CaseEventsPayload
		if err := decode(msg, kafka.EventCaseEvents, &p); err != nil {
			return err
		}

		caseID := p.CaseID
		if caseID == "" {
			c, err := h.svc.EnsureCase(ctx, p.County, p.CaseNumber)
			if err != nil {
				return err
			}
			caseID = c.ID
		}

		res, err := h.svc.IngestEvents(ctx, caseID, p.Events, p.Details())
		if err != nil {
			return err
		}
		h.opts.Logger.Debug("Docket ingested",
			logging.CaseID(caseID),
			logging.Int("received", len(p.Events)),
			logging.Int("new", res.NewEvents),
			logging.Int("page_bids", res.PageBids),
			logging.Bool("saved", res.Saved))
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Extractions
// ─────────────────────────────────────────────────────────────────────────────

// ExtractionHandler reconciles extracted document fields.
type ExtractionHandler struct {
	topic string
	svc   appForeclosure.CaseMonitorService
	opts  HandlerOptions
}

// NewExtractionHandler handles kafka.EventCaseExtraction envelopes on topic.
func NewExtractionHandler(topic string, svc appForeclosure.CaseMonitorService, opts HandlerOptions) *ExtractionHandler {
	opts = opts.withDefaults()
	opts.Logger = opts.Logger.Named("extractions")
	return &ExtractionHandler{topic: topic, svc: svc, opts: opts}
}

func (h *ExtractionHandler) Topic() string { return h.topic }

func (h *ExtractionHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	return run(ctx, h.opts, msg, func(ctx context.Context) error {
		var p kafka.ExtractionPayload
		if err := decode(msg, kafka.EventCaseExtraction, &p); err != nil {
			return err
		}
		if p.CaseID == "" {
			return errors.MalformedInput("extraction has no case id")
		}

		var observedOn *time.Time
		if p.ObservedOn != "" {
			d, err := calendar.ParseDate(p.ObservedOn)
			if err != nil {
				// The fields are still worth reconciling without the bid date.
				h.opts.Logger.Warn("Unparsable observed_on; bid observation skipped",
					logging.CaseID(p.CaseID),
					logging.String("raw", p.ObservedOn))
			} else {
				observedOn = &d
			}
		}

		res, err := h.svc.ReconcileExtraction(ctx, p.CaseID, p.Fields, observedOn)
		if err != nil {
			return err
		}
		h.opts.Logger.Debug("Extraction reconciled",
			logging.CaseID(p.CaseID),
			logging.String("document_id", p.DocumentID),
			logging.Int("discrepancies", len(res.Records)),
			logging.Bool("bid_recorded", res.BidRecorded))
		return nil
	})
}

func decode(msg *kafka.Message, eventType string, target interface{}) error {
	env, err := kafka.DecodeEnvelope(msg)
	if err != nil {
		return err
	}
	if env.EventType != eventType {
		return errors.MalformedInput("unexpected event type").
			WithDetailf("want=%s got=%s", eventType, env.EventType)
	}
	return env.DecodePayload(target)
}
