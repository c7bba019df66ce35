package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/normalizer"
)

type captureSink struct {
	records []*normalizer.RawRecord
}

func (s *captureSink) Submit(_ context.Context, rec *normalizer.RawRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func TestNewSubscriberValidation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := config.DefaultConfig().Ingest

	_, err := NewSubscriber(nil, cfg, &captureSink{})
	assert.Error(t, err)

	_, err = NewSubscriber(logger, cfg, nil)
	assert.Error(t, err)

	empty := cfg
	empty.Subjects = nil
	_, err = NewSubscriber(logger, empty, &captureSink{})
	assert.Error(t, err)

	sub, err := NewSubscriber(logger, cfg, &captureSink{})
	require.NoError(t, err)
	assert.NotNil(t, sub.limiter)
}

func TestUnlimitedRateWhenUnconfigured(t *testing.T) {
	cfg := config.DefaultConfig().Ingest
	cfg.RatePerSec = 0

	sub, err := NewSubscriber(zaptest.NewLogger(t), cfg, &captureSink{})
	require.NoError(t, err)
	assert.True(t, sub.limiter.Limit() == 0 || sub.limiter.Limit() > 1e9,
		"zero config means no throttling")
}

func TestHandleMessageParsesAndForwards(t *testing.T) {
	sink := &captureSink{}
	sub, err := NewSubscriber(zaptest.NewLogger(t), config.DefaultConfig().Ingest, sink)
	require.NoError(t, err)
	sub.ctx, sub.cancel = context.WithCancel(context.Background())
	defer sub.cancel()

	payload, err := json.Marshal(map[string]interface{}{
		"schema_id": normalizer.SchemaOrders,
		"event_id":  "evt-1",
		"fields": map[string]interface{}{
			"order_id":   "o1",
			"order_date": "2024-03-15T12:00:00Z",
			"status":     "Failed",
		},
	})
	require.NoError(t, err)

	sub.handleMessage(&nats.Msg{Subject: "records.orders", Data: payload})

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, normalizer.SchemaOrders, rec.SchemaID)
	assert.Equal(t, "evt-1", rec.EventID)
	assert.False(t, rec.IngestedAt.IsZero(), "ingestion timestamp backfilled")
	assert.WithinDuration(t, time.Now(), rec.IngestedAt, time.Minute)

	received, dropped := sub.Stats()
	assert.Equal(t, int64(1), received)
	assert.Zero(t, dropped)
}

func TestHandleMessageDropsGarbage(t *testing.T) {
	sink := &captureSink{}
	sub, err := NewSubscriber(zaptest.NewLogger(t), config.DefaultConfig().Ingest, sink)
	require.NoError(t, err)
	sub.ctx, sub.cancel = context.WithCancel(context.Background())
	defer sub.cancel()

	sub.handleMessage(&nats.Msg{Subject: "records.orders", Data: []byte("not json")})
	sub.handleMessage(&nats.Msg{Subject: "records.orders", Data: []byte(`{"fields":{}}`)})

	assert.Empty(t, sink.records)
	received, dropped := sub.Stats()
	assert.Equal(t, int64(2), received)
	assert.Equal(t, int64(2), dropped)
}
