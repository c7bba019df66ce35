package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/normalizer"
)

// Sink receives parsed raw records from the subscriber. The pipeline
// implements this.
type Sink interface {
	Submit(ctx context.Context, rec *normalizer.RawRecord) error
}

// Subscriber consumes JSON raw records from NATS subjects and feeds
// them into the pipeline, rate limited so an upstream burst cannot
// flood the analysis stages.
type Subscriber struct {
	logger  *zap.Logger
	cfg     config.IngestConfig
	sink    Sink
	limiter *rate.Limiter

	nc   *nats.Conn
	subs []*nats.Subscription

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc

	received atomic.Int64
	dropped  atomic.Int64
}

// NewSubscriber creates a NATS subscriber feeding the sink
func NewSubscriber(logger *zap.Logger, cfg config.IngestConfig, sink Sink) (*Subscriber, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if len(cfg.Subjects) == 0 {
		return nil, fmt.Errorf("at least one subject is required")
	}

	limit := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Subscriber{
		logger:  logger,
		cfg:     cfg,
		sink:    sink,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// Start connects and subscribes. Reconnection is left to the NATS
// client; messages published while fully disconnected are lost, which
// is acceptable for telemetry-grade feeds.
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("subscriber already started")
	}

	nc, err := nats.Connect(s.cfg.URL,
		nats.Name(s.cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(10*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", s.cfg.URL, err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	for _, subject := range s.cfg.Subjects {
		sub, err := nc.Subscribe(subject, s.handleMessage)
		if err != nil {
			nc.Close()
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}
		if s.cfg.MaxPending > 0 {
			sub.SetPendingLimits(s.cfg.MaxPending, -1)
		}
		s.subs = append(s.subs, sub)
	}

	s.nc = nc
	s.started = true
	s.logger.Info("Ingest subscriber started",
		zap.String("url", s.cfg.URL),
		zap.Strings("subjects", s.cfg.Subjects))
	return nil
}

// Stop unsubscribes and closes the connection
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}

	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("Unsubscribe failed", zap.Error(err))
		}
	}
	s.cancel()
	s.nc.Close()
	s.started = false

	s.logger.Info("Ingest subscriber stopped",
		zap.Int64("received", s.received.Load()),
		zap.Int64("dropped", s.dropped.Load()))
	return nil
}

func (s *Subscriber) handleMessage(msg *nats.Msg) {
	s.received.Add(1)

	if err := s.limiter.Wait(s.ctx); err != nil {
		return
	}

	rec, err := normalizer.ParseRawRecord(msg.Data)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("Dropping undecodable record",
			zap.String("subject", msg.Subject),
			zap.Error(err))
		return
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}

	if err := s.sink.Submit(s.ctx, rec); err != nil {
		s.dropped.Add(1)
		s.logger.Warn("Pipeline rejected record",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}

// Stats returns received and dropped message counts
func (s *Subscriber) Stats() (received, dropped int64) {
	return s.received.Load(), s.dropped.Load()
}
