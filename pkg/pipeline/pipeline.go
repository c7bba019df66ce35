package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/correlation"
	"github.com/causewaylabs/causeway/pkg/domain"
	"github.com/causewaylabs/causeway/pkg/normalizer"
	"github.com/causewaylabs/causeway/pkg/patterns"
	"github.com/causewaylabs/causeway/pkg/recommend"
	"github.com/causewaylabs/causeway/pkg/rootcause"
	"github.com/causewaylabs/causeway/pkg/storage"
)

// BatchResult summarizes one processed batch of raw records
type BatchResult struct {
	RecordsIn       int
	Normalized      int
	Quarantined     int
	Correlations    int
	Analyses        int
	Inconclusive    int
	Recommendations int
}

// Merge accumulates counts from another batch
func (r *BatchResult) Merge(other BatchResult) {
	r.RecordsIn += other.RecordsIn
	r.Normalized += other.Normalized
	r.Quarantined += other.Quarantined
	r.Correlations += other.Correlations
	r.Analyses += other.Analyses
	r.Inconclusive += other.Inconclusive
	r.Recommendations += other.Recommendations
}

// Pipeline wires the five analysis stages over shared storage:
// normalize, correlate, detect, resolve, recommend. Records stream in
// through Submit and assemble into batches; correlation runs on a
// single writer so the event-time watermark stays coherent, and
// failure analyses fan out across entity-sharded workers so one
// entity's analyses land in timestamp order.
type Pipeline struct {
	logger  *zap.Logger
	cfg     config.PipelineConfig
	metrics *Metrics

	normalizer  *normalizer.Normalizer
	engine      *correlation.Engine
	detector    *patterns.Detector
	resolver    *rootcause.Resolver
	synthesizer *recommend.Synthesizer
	store       storage.Store

	recordCh chan *normalizer.RawRecord
	batchCh  chan []*normalizer.RawRecord
	shards   []chan *domain.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu serializes Submit sends against the Stop close: readers hold
	// the record channel open for the duration of a send
	mu      sync.RWMutex
	started bool
}

// New assembles the full pipeline from configuration
func New(logger *zap.Logger, cfg *config.Config, store storage.Store) (*Pipeline, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	engine, err := correlation.NewEngine(logger.Named("correlation"), cfg.Correlation, store)
	if err != nil {
		return nil, fmt.Errorf("creating correlation engine: %w", err)
	}

	detector := patterns.NewDetector(logger.Named("patterns"), cfg.Patterns)

	resolver, err := rootcause.NewResolver(logger.Named("rootcause"), cfg.RootCause, store, store, detector)
	if err != nil {
		return nil, fmt.Errorf("creating resolver: %w", err)
	}

	synthesizer, err := recommend.NewSynthesizer(logger.Named("recommend"), cfg.Recommend, cfg.RootCause.SeverityMap)
	if err != nil {
		return nil, fmt.Errorf("creating synthesizer: %w", err)
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating pipeline metrics: %w", err)
	}

	return &Pipeline{
		logger:      logger,
		cfg:         cfg.Pipeline,
		metrics:     metrics,
		normalizer:  normalizer.New(logger.Named("normalizer")),
		engine:      engine,
		detector:    detector,
		resolver:    resolver,
		synthesizer: synthesizer,
		store:       store,
	}, nil
}

// Start brings up the streaming stages. Batch-only callers can skip
// Start and use ProcessBatch directly.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("pipeline already started")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.recordCh = make(chan *normalizer.RawRecord, p.cfg.QueueSize)
	p.batchCh = make(chan []*normalizer.RawRecord, 4)

	p.shards = make([]chan *domain.Event, p.cfg.ShardCount)
	for i := range p.shards {
		p.shards[i] = make(chan *domain.Event, p.cfg.QueueSize/p.cfg.ShardCount+1)
		p.wg.Add(1)
		go p.resolveShard(i)
	}

	p.wg.Add(2)
	go p.batcher()
	go p.processor()

	p.started = true
	p.logger.Info("Pipeline started",
		zap.Int("shards", p.cfg.ShardCount),
		zap.Int("batch_size", p.cfg.BatchSize))
	return nil
}

// Stop drains in-flight work: pending records finish batching, the
// last batch finishes processing, and every queued failure analysis
// completes before Stop returns.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	close(p.recordCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()

	p.logger.Info("Pipeline stopped")
	return nil
}

// Submit enqueues one raw record for streaming processing
func (p *Pipeline) Submit(ctx context.Context, rec *normalizer.RawRecord) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started {
		return fmt.Errorf("pipeline not started")
	}

	select {
	case p.recordCh <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// batcher assembles records into batches, flushing on size or timeout
func (p *Pipeline) batcher() {
	defer p.wg.Done()
	defer close(p.batchCh)

	ticker := time.NewTicker(p.cfg.FlushTimeout)
	defer ticker.Stop()

	batch := make([]*normalizer.RawRecord, 0, p.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.batchCh <- batch
		batch = make([]*normalizer.RawRecord, 0, p.cfg.BatchSize)
	}

	for {
		select {
		case rec, ok := <-p.recordCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// processor runs normalize, correlate and detect for each batch and
// fans failures out to the resolve shards
func (p *Pipeline) processor() {
	defer p.wg.Done()
	defer func() {
		for _, shard := range p.shards {
			close(shard)
		}
	}()

	for batch := range p.batchCh {
		result, failures := p.runAnalysis(p.ctx, batch)
		for _, evt := range failures {
			p.shards[p.shardFor(evt)] <- evt
		}
		p.metrics.recordBatch(p.ctx, result)
	}
}

// resolveShard is the single writer for its slice of the entity space
func (p *Pipeline) resolveShard(id int) {
	defer p.wg.Done()
	for evt := range p.shards[id] {
		if _, err := p.analyzeFailure(p.ctx, evt); err != nil {
			p.logger.Error("Failure analysis errored",
				zap.Int("shard", id),
				zap.String("event_id", evt.ID),
				zap.Error(err))
		}
	}
}

func (p *Pipeline) shardFor(evt *domain.Event) int {
	h := fnv.New32a()
	if len(evt.Entities) > 0 {
		h.Write([]byte(evt.Entities[0].Key()))
	} else {
		h.Write([]byte(evt.ID))
	}
	return int(h.Sum32()) % len(p.shards)
}

// ProcessBatch runs one batch synchronously end to end, including
// failure analysis, and reports what happened. This is the batch
// analysis entry point; it does not require Start.
func (p *Pipeline) ProcessBatch(ctx context.Context, records []*normalizer.RawRecord) (*BatchResult, error) {
	result, failures := p.runAnalysis(ctx, records)

	for _, evt := range failures {
		counts, err := p.analyzeFailure(ctx, evt)
		if err != nil {
			return nil, err
		}
		result.Merge(counts)
	}

	p.metrics.recordBatch(ctx, result)
	return &result, nil
}

// runAnalysis performs the normalize, correlate and detect stages for
// one batch and returns the failure events needing analysis
func (p *Pipeline) runAnalysis(ctx context.Context, records []*normalizer.RawRecord) (BatchResult, []*domain.Event) {
	result := BatchResult{RecordsIn: len(records)}

	events := p.normalizer.NormalizeBatch(records)
	result.Normalized = len(events)
	result.Quarantined = len(records) - len(events)

	byID := make(map[string]*domain.Event, len(events))
	var failures []*domain.Event
	var latest time.Time

	for _, evt := range events {
		byID[evt.ID] = evt
		if err := p.store.AppendEvent(ctx, evt); err != nil {
			p.logger.Error("Persisting event failed",
				zap.String("event_id", evt.ID), zap.Error(err))
			continue
		}
		p.detector.ObserveEvent(evt)
		if evt.IsFailure() {
			failures = append(failures, evt)
		}
		if evt.Timestamp.After(latest) {
			latest = evt.Timestamp
		}
	}

	corrs, err := p.engine.CorrelateBatch(ctx, events)
	if err != nil {
		p.logger.Error("Correlating batch failed", zap.Error(err))
	}
	result.Correlations = len(corrs)

	for _, corr := range corrs {
		p.observeCorrelation(ctx, corr, byID)
	}
	if !latest.IsZero() {
		p.detector.Reevaluate(latest)
	}

	return result, failures
}

// observeCorrelation feeds one retained correlation into pattern
// detection, resolving event types from the batch or storage
func (p *Pipeline) observeCorrelation(ctx context.Context, corr *domain.Correlation, byID map[string]*domain.Event) {
	primary := p.lookupEvent(ctx, corr.PrimaryEventID, byID)
	secondary := p.lookupEvent(ctx, corr.SecondaryEventID, byID)
	if primary == nil || secondary == nil {
		return
	}

	entities := append([]domain.EntityRef{}, primary.Entities...)
	entities = append(entities, secondary.Entities...)
	p.detector.ObserveCorrelation(corr, primary.Type, secondary.Type, entities)
}

func (p *Pipeline) lookupEvent(ctx context.Context, id string, byID map[string]*domain.Event) *domain.Event {
	if evt, ok := byID[id]; ok {
		return evt
	}
	evt, err := p.store.EventByID(ctx, id)
	if err != nil {
		p.logger.Warn("Event lookup failed", zap.String("event_id", id), zap.Error(err))
		return nil
	}
	return evt
}

// analyzeFailure resolves one failure and synthesizes its
// recommendations, returning the resulting counts
func (p *Pipeline) analyzeFailure(ctx context.Context, evt *domain.Event) (BatchResult, error) {
	rc, err := p.resolver.Resolve(ctx, evt)
	if err != nil {
		return BatchResult{}, fmt.Errorf("resolving %s: %w", evt.ID, err)
	}

	if err := p.store.SaveAnalysis(ctx, rc); err != nil {
		return BatchResult{}, fmt.Errorf("saving analysis %s: %w", rc.AnalysisID, err)
	}

	counts := BatchResult{Analyses: 1}
	if rc.Inconclusive() {
		counts.Inconclusive = 1
	}

	recs, err := p.synthesizer.Synthesize(ctx, rc)
	if err != nil {
		return counts, fmt.Errorf("synthesizing for %s: %w", rc.AnalysisID, err)
	}
	if len(recs) > 0 {
		if err := p.store.AppendRecommendations(ctx, recs); err != nil {
			return counts, fmt.Errorf("saving recommendations for %s: %w", rc.AnalysisID, err)
		}
	}
	counts.Recommendations = len(recs)
	return counts, nil
}

// Detector exposes the pattern detector for the query surfaces
func (p *Pipeline) Detector() *patterns.Detector {
	return p.detector
}
