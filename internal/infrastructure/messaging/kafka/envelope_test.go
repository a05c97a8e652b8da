package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
	"github.com/turtacn/ForeclosureWatch/internal/domain/discrepancy"
	"github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	in := CaseEventsPayload{
		CaseNumber:      "25SP000123-910",
		County:          "Wake",
		PropertyAddress: "123 Main St, Raleigh",
		Defendants:      []string{"John Doe"},
		Events: []foreclosure.RawEvent{
			{Date: "06/02/2025", Type: "Report Of Foreclosure Sale", Amount: "$100,000.00"},
		},
	}
	env, err := NewEventEnvelope(EventCaseEvents, "scraper", in)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)

	pm, err := env.ToMessage("foreclosure.case.events", "25SP000123-910")
	require.NoError(t, err)
	assert.Equal(t, EventCaseEvents, pm.Headers["event_type"])

	decoded, err := DecodeEnvelope(&Message{Topic: pm.Topic, Value: pm.Value})
	require.NoError(t, err)
	var out CaseEventsPayload
	require.NoError(t, decoded.DecodePayload(&out))
	assert.Equal(t, in, out)
	assert.Equal(t, foreclosure.CaseDetails{PropertyAddress: "123 Main St, Raleigh", Defendants: []string{"John Doe"}}, out.Details())
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	_, err := DecodeEnvelope(&Message{Topic: "t"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedInput))

	_, err = DecodeEnvelope(&Message{Topic: "t", Value: []byte("{not json")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))

	env := &EventEnvelope{EventID: "e1"}
	assert.True(t, errors.IsCode(env.DecodePayload(&CaseEventsPayload{}), errors.ErrCodeMalformedInput))
}

func TestEventPublisher(t *testing.T) {
	w := &mockKafkaWriter{}
	topics := defaultTopics()
	pub := &EventPublisher{producer: newTestProducer(w), topics: topics, source: DefaultSource, logger: logging.NewNopLogger()}
	ctx := context.Background()

	c := &foreclosure.Case{ID: "case-1", CaseNumber: "25SP1", County: "Wake"}
	at := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	tr := foreclosure.Transition{CaseID: c.ID, From: foreclosure.UpsetBid, To: foreclosure.ClosedSold, Reason: foreclosure.ReasonDeadlineExpired, Source: foreclosure.SourceSweep, At: at}
	require.NoError(t, pub.PublishTransition(ctx, c, tr))

	amt := decimal.RequireFromString("100000")
	deadline := calendar.Date(2025, 6, 12)
	upd := foreclosure.LedgerUpdate{After: foreclosure.Ledger{CurrentBidAmount: &amt, NextBidDeadline: &deadline}, Applied: true, Reason: "recorded"}
	require.NoError(t, pub.PublishLedger(ctx, c.ID, upd))

	require.NoError(t, pub.PublishDiscrepancies(ctx, c.ID, nil), "nothing to publish")
	recs := []discrepancy.Record{{CaseID: c.ID, Field: discrepancy.FieldCurrentBidAmount, RecordedValue: "50000.00", ExtractedValue: "60000.00", Status: discrepancy.StatusPending}}
	require.NoError(t, pub.PublishDiscrepancies(ctx, c.ID, recs))

	msgs := w.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, topics.Classified, msgs[0].Topic)
	assert.Equal(t, topics.Ledger, msgs[1].Topic)
	assert.Equal(t, topics.Discrepancies, msgs[2].Topic)
	for _, m := range msgs {
		assert.Equal(t, "case-1", string(m.Key))
	}

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(msgs[0].Value, &env))
	var changed map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &changed))
	assert.Equal(t, "upset_bid", changed["from"])
	assert.Equal(t, "closed_sold", changed["to"])
	assert.Equal(t, "sweep", changed["source"])
}
