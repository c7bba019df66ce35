package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

// Engine orchestrates the correlators over the shared event window.
// New events only re-evaluate correlations inside the configured
// window of their timestamp; cost stays bounded as volume grows.
type Engine struct {
	logger  *zap.Logger
	cfg     config.CorrelationConfig
	metrics *Metrics

	correlators []Correlator
	window      *EventWindow
	lateness    *LatenessBuffer
	store       Store

	eventChan  chan *domain.Event
	resultChan chan *domain.Correlation

	// Dedup of retained correlations by deterministic key
	seenMu sync.Mutex
	seen   map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// janitor lives past the worker drain, on its own WaitGroup
	janitorWg sync.WaitGroup

	// stopMu serializes Submit sends against the Stop close
	stopMu  sync.RWMutex
	stopped bool
}

// NewEngine creates a correlation engine with the standard four
// correlators. store may be nil for purely in-process use.
func NewEngine(logger *zap.Logger, cfg config.CorrelationConfig, store Store) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create correlation metrics: %w", err)
	}

	scorer := NewConfidenceScorer(DefaultFeatureWeights())
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		logger:  logger,
		cfg:     cfg,
		metrics: metrics,
		correlators: []Correlator{
			NewTemporalCorrelator(logger, scorer, cfg.TemporalWindow, cfg.SpatialRadiusKM),
			NewSpatialCorrelator(logger, scorer, cfg.SpatialRadiusKM, cfg.TemporalWindow),
			NewCausalCorrelator(logger, scorer, DefaultCausalRules(), cfg.TemporalWindow, cfg.SpatialRadiusKM),
			NewStatisticalCorrelator(logger, scorer, cfg.BinSize, cfg.MinCoOccur),
		},
		window:     NewEventWindow(2*cfg.TemporalWindow, cfg.WindowCapacity),
		lateness:   NewLatenessBuffer(cfg.MaxLateness),
		store:      store,
		eventChan:  make(chan *domain.Event, cfg.EventBufferSize),
		resultChan: make(chan *domain.Correlation, cfg.ResultBufferSize),
		seen:       make(map[string]time.Time),
		ctx:        ctx,
		cancel:     cancel,
	}

	logger.Info("Correlation engine created",
		zap.Int("correlators", len(e.correlators)),
		zap.Duration("temporal_window", cfg.TemporalWindow),
		zap.Float64("spatial_radius_km", cfg.SpatialRadiusKM),
		zap.Float64("min_strength", cfg.MinStrength),
	)
	return e, nil
}

// Start launches the worker pool
func (e *Engine) Start() error {
	for i := 0; i < e.cfg.WorkerCount; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.janitorWg.Add(1)
	go e.janitor()
	return nil
}

// Stop drains the lateness buffer and shuts the workers down.
// In-flight events complete before termination.
func (e *Engine) Stop() error {
	e.stopMu.Lock()
	if e.stopped {
		e.stopMu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.eventChan)
	e.stopMu.Unlock()

	e.logger.Info("Stopping correlation engine")
	e.wg.Wait()

	// Anything still held back by the watermark gets processed now
	for _, buffered := range e.lateness.Flush() {
		e.handleEvent(context.Background(), buffered)
	}

	e.cancel()
	e.janitorWg.Wait()
	close(e.resultChan)
	return nil
}

// Submit queues an event for asynchronous correlation. The read lock
// holds the event channel open for the duration of the send.
func (e *Engine) Submit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}

	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return fmt.Errorf("engine is shutting down")
	}

	timer := time.NewTimer(e.cfg.ProcessTimeout)
	defer timer.Stop()

	select {
	case e.eventChan <- event:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout submitting event %s", event.ID)
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return fmt.Errorf("engine is shutting down")
	}
}

// Results returns the stream of retained correlations
func (e *Engine) Results() <-chan *domain.Correlation {
	return e.resultChan
}

// Correlate runs one event through the engine synchronously and
// returns the retained correlations. Used by batch analysis; the
// streaming path goes through Submit/Results.
func (e *Engine) Correlate(ctx context.Context, event *domain.Event) ([]*domain.Correlation, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	buffered, warn := e.lateness.Offer(event)
	if warn != nil {
		e.metrics.eventsLate.Add(ctx, 1)
		e.logger.Warn("Out-of-order event beyond lateness tolerance", zap.Error(warn))
	}

	var all []*domain.Correlation
	for _, be := range buffered {
		all = append(all, e.handleEvent(ctx, be)...)
	}
	return all, nil
}

// CorrelateBatch correlates a time-ordered batch and flushes the
// lateness buffer at the end
func (e *Engine) CorrelateBatch(ctx context.Context, events []*domain.Event) ([]*domain.Correlation, error) {
	var all []*domain.Correlation
	for _, evt := range events {
		found, err := e.Correlate(ctx, evt)
		if err != nil {
			e.logger.Warn("Skipping invalid event in batch",
				zap.String("event_id", evt.ID), zap.Error(err))
			continue
		}
		all = append(all, found...)
	}
	for _, be := range e.lateness.Flush() {
		all = append(all, e.handleEvent(ctx, be)...)
	}
	return all, nil
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()

	for event := range e.eventChan {
		correlations, err := e.Correlate(e.ctx, event)
		if err != nil {
			e.logger.Warn("Dropping invalid event",
				zap.String("event_id", event.ID), zap.Error(err))
			continue
		}
		for _, c := range correlations {
			select {
			case e.resultChan <- c:
			case <-e.ctx.Done():
				return
			default:
				e.logger.Warn("Result channel full, dropping correlation",
					zap.String("correlation_id", c.ID))
			}
		}
	}
}

// handleEvent adds an event to the window, runs the correlators, and
// filters, dedups, and persists the results
func (e *Engine) handleEvent(ctx context.Context, be BufferedEvent) []*domain.Correlation {
	event := be.Event
	start := time.Now()

	// Re-submitting an already-windowed event is a no-op: correlation
	// of the same batch twice yields the identical set
	if e.window.Contains(event.ID) {
		return nil
	}
	e.window.Add(event)
	e.metrics.eventsProcessed.Add(ctx, 1)

	var retained []*domain.Correlation
	for _, correlator := range e.correlators {
		found, err := correlator.Process(ctx, event, e.window)
		if err != nil {
			e.logger.Error("Correlator failed",
				zap.String("correlator", correlator.Name()),
				zap.String("event_id", event.ID),
				zap.Error(err))
			continue
		}

		for _, c := range found {
			if c.Strength <= e.cfg.MinStrength {
				e.metrics.correlationsWeak.Add(ctx, 1)
				continue
			}
			if err := c.Validate(); err != nil {
				e.logger.Error("Discarding invalid correlation", zap.Error(err))
				continue
			}
			// IDs derive from the dedup key so a replayed batch hits the
			// same storage rows
			c.ID = domain.NewCorrelationID(c.Key())
			if !e.markSeen(c.Key(), event.Timestamp) {
				e.metrics.duplicatesSkipped.Add(ctx, 1)
				continue
			}
			c.Late = be.Late
			e.metrics.recordRetained(ctx, string(c.Type), c.Strength)

			if e.store != nil {
				if err := e.store.AppendCorrelation(ctx, c); err != nil {
					e.logger.Error("Failed to persist correlation",
						zap.String("correlation_id", c.ID), zap.Error(err))
				}
			}
			retained = append(retained, c)
		}
	}

	e.window.Clean()
	e.metrics.processingLatency.Record(ctx, time.Since(start).Seconds())
	return retained
}

// markSeen records a correlation key, reporting false for duplicates
func (e *Engine) markSeen(key string, ts time.Time) bool {
	e.seenMu.Lock()
	defer e.seenMu.Unlock()
	if _, dup := e.seen[key]; dup {
		return false
	}
	e.seen[key] = ts
	return true
}

// pruner is implemented by correlators that keep state outside the
// shared event window
type pruner interface {
	Prune(cutoff time.Time)
}

// janitor prunes the dedup index and correlator state alongside
// window expiry
func (e *Engine) janitor() {
	defer e.janitorWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-4 * e.cfg.TemporalWindow)
			e.seenMu.Lock()
			for key, ts := range e.seen {
				if ts.Before(cutoff) {
					delete(e.seen, key)
				}
			}
			e.seenMu.Unlock()
			for _, c := range e.correlators {
				if p, ok := c.(pruner); ok {
					p.Prune(cutoff)
				}
			}
		case <-e.ctx.Done():
			return
		}
	}
}
