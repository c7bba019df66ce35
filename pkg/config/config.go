package config

import (
	"time"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// Config is the full analysis configuration. Thresholds are read at
// startup and refreshed on RefreshInterval; the core never writes back.
type Config struct {
	Correlation CorrelationConfig `yaml:"correlation" json:"correlation"`
	Patterns    PatternsConfig    `yaml:"patterns" json:"patterns"`
	RootCause   RootCauseConfig   `yaml:"root_cause" json:"root_cause"`
	Recommend   RecommendConfig   `yaml:"recommend" json:"recommend"`
	Pipeline    PipelineConfig    `yaml:"pipeline" json:"pipeline"`
	Ingest      IngestConfig      `yaml:"ingest" json:"ingest"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`

	// How often thresholds are re-read from the config source
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
}

// CorrelationConfig holds correlation engine thresholds
type CorrelationConfig struct {
	TemporalWindow  time.Duration `yaml:"temporal_window" json:"temporal_window"`
	SpatialRadiusKM float64       `yaml:"spatial_radius_km" json:"spatial_radius_km"`
	MinStrength     float64       `yaml:"min_strength" json:"min_strength"`
	MaxLateness     time.Duration `yaml:"max_lateness" json:"max_lateness"`

	// Statistical correlator
	BinSize        time.Duration `yaml:"bin_size" json:"bin_size"`
	MinCoOccur     int           `yaml:"min_co_occur" json:"min_co_occur"`
	WindowCapacity int           `yaml:"window_capacity" json:"window_capacity"`

	WorkerCount      int           `yaml:"worker_count" json:"worker_count"`
	EventBufferSize  int           `yaml:"event_buffer_size" json:"event_buffer_size"`
	ResultBufferSize int           `yaml:"result_buffer_size" json:"result_buffer_size"`
	ProcessTimeout   time.Duration `yaml:"process_timeout" json:"process_timeout"`
}

// PatternsConfig holds pattern detector thresholds
type PatternsConfig struct {
	SupportThreshold int           `yaml:"support_threshold" json:"support_threshold"`
	SlidingWindow    time.Duration `yaml:"sliding_window" json:"sliding_window"`
	AnomalySigma     float64       `yaml:"anomaly_sigma" json:"anomaly_sigma"`
	BaselineWindow   time.Duration `yaml:"baseline_window" json:"baseline_window"`
	SeasonalBin      time.Duration `yaml:"seasonal_bin" json:"seasonal_bin"`
	SeasonalPeriod   int           `yaml:"seasonal_period" json:"seasonal_period"`
	TrendSlopeMin    float64       `yaml:"trend_slope_min" json:"trend_slope_min"`
	SeasonalAmpMin   float64       `yaml:"seasonal_amp_min" json:"seasonal_amp_min"`
	ConfidenceFloor  float64       `yaml:"confidence_floor" json:"confidence_floor"`
}

// RootCauseConfig holds resolver scoring parameters
type RootCauseConfig struct {
	MinScore      float64                                `yaml:"min_score" json:"min_score"`
	ImpactWeights map[domain.FailureCategory]float64     `yaml:"impact_weights" json:"impact_weights"`
	SeverityMap   map[domain.FailureCategory]domain.Severity `yaml:"severity_map" json:"severity_map"`
}

// RecommendConfig holds synthesizer parameters
type RecommendConfig struct {
	MaxPerCause int `yaml:"max_per_cause" json:"max_per_cause"`
}

// PipelineConfig holds stage orchestration settings
type PipelineConfig struct {
	ShardCount   int           `yaml:"shard_count" json:"shard_count"`
	BatchSize    int           `yaml:"batch_size" json:"batch_size"`
	FlushTimeout time.Duration `yaml:"flush_timeout" json:"flush_timeout"`
	QueueSize    int           `yaml:"queue_size" json:"queue_size"`
}

// IngestConfig holds NATS ingestion settings
type IngestConfig struct {
	URL         string   `yaml:"url" json:"url"`
	Subjects    []string `yaml:"subjects" json:"subjects"`
	Name        string   `yaml:"name" json:"name"`
	RatePerSec  float64  `yaml:"rate_per_sec" json:"rate_per_sec"`
	RateBurst   int      `yaml:"rate_burst" json:"rate_burst"`
	MaxPending  int      `yaml:"max_pending" json:"max_pending"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Backend string `yaml:"backend" json:"backend"` // "memory", "sqlite", "neo4j"

	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`

	Neo4jURI      string `yaml:"neo4j_uri" json:"neo4j_uri"`
	Neo4jUser     string `yaml:"neo4j_user" json:"neo4j_user"`
	Neo4jPassword string `yaml:"neo4j_password" json:"neo4j_password"`
	Neo4jDatabase string `yaml:"neo4j_database" json:"neo4j_database"`

	MaxAge  time.Duration `yaml:"max_age" json:"max_age"`
	MaxSize int           `yaml:"max_size" json:"max_size"`
}

// DefaultConfig returns production-ready defaults
func DefaultConfig() *Config {
	return &Config{
		Correlation: CorrelationConfig{
			TemporalWindow:   120 * time.Minute,
			SpatialRadiusKM:  5.0,
			MinStrength:      0.1,
			MaxLateness:      10 * time.Minute,
			BinSize:          15 * time.Minute,
			MinCoOccur:       3,
			WindowCapacity:   10000,
			WorkerCount:      4,
			EventBufferSize:  1000,
			ResultBufferSize: 1000,
			ProcessTimeout:   30 * time.Second,
		},
		Patterns: PatternsConfig{
			SupportThreshold: 4,
			SlidingWindow:    24 * time.Hour,
			AnomalySigma:     3.0,
			BaselineWindow:   7 * 24 * time.Hour,
			SeasonalBin:      1 * time.Hour,
			SeasonalPeriod:   24,
			TrendSlopeMin:    0.05,
			SeasonalAmpMin:   0.3,
			ConfidenceFloor:  0.5,
		},
		RootCause: RootCauseConfig{
			MinScore:      0.05,
			ImpactWeights: DefaultImpactWeights(),
			SeverityMap:   DefaultSeverityMap(),
		},
		Recommend: RecommendConfig{
			MaxPerCause: 3,
		},
		Pipeline: PipelineConfig{
			ShardCount:   8,
			BatchSize:    100,
			FlushTimeout: 5 * time.Second,
			QueueSize:    1000,
		},
		Ingest: IngestConfig{
			URL:        "nats://localhost:4222",
			Subjects:   []string{"records.>"},
			Name:       "causeway-ingest",
			RatePerSec: 1000,
			RateBurst:  2000,
			MaxPending: 10000,
		},
		Storage: StorageConfig{
			Backend: "memory",
			MaxAge:  24 * time.Hour,
			MaxSize: 100000,
		},
		RefreshInterval: 1 * time.Minute,
	}
}

// DefaultImpactWeights weights failure categories by operational impact
func DefaultImpactWeights() map[domain.FailureCategory]float64 {
	return map[domain.FailureCategory]float64{
		domain.CategoryAddressInvalid:      0.8,
		domain.CategoryCustomerUnavailable: 0.6,
		domain.CategoryWeather:             0.9,
		domain.CategoryTraffic:             0.85,
		domain.CategoryWarehouseDelay:      0.75,
		domain.CategoryFleetBreakdown:      0.9,
		domain.CategoryStockout:            0.7,
		domain.CategoryOperational:         0.5,
	}
}

// DefaultSeverityMap assigns severity per failure category
func DefaultSeverityMap() map[domain.FailureCategory]domain.Severity {
	return map[domain.FailureCategory]domain.Severity{
		domain.CategoryAddressInvalid:      domain.SeverityHigh,
		domain.CategoryCustomerUnavailable: domain.SeverityMedium,
		domain.CategoryWeather:             domain.SeverityHigh,
		domain.CategoryTraffic:             domain.SeverityHigh,
		domain.CategoryWarehouseDelay:      domain.SeverityMedium,
		domain.CategoryFleetBreakdown:      domain.SeverityCritical,
		domain.CategoryStockout:            domain.SeverityMedium,
		domain.CategoryOperational:         domain.SeverityLow,
	}
}

// Validate checks all thresholds. A failing config is fatal at
// startup: the pipeline refuses to run.
func (c *Config) Validate() error {
	if c.Correlation.TemporalWindow <= 0 {
		return NewConfigError("correlation.temporal_window", "must be positive",
			"set a duration like 120m")
	}
	if c.Correlation.SpatialRadiusKM <= 0 {
		return NewConfigError("correlation.spatial_radius_km", "must be positive",
			"set a radius like 5.0")
	}
	if c.Correlation.MinStrength < 0 || c.Correlation.MinStrength > 1 {
		return NewConfigError("correlation.min_strength", "must be in [0,1]",
			"typical values are 0.1-0.3")
	}
	if c.Correlation.MaxLateness < 0 {
		return NewConfigError("correlation.max_lateness", "cannot be negative",
			"set 0 to disable the lateness buffer")
	}
	if c.Correlation.WorkerCount <= 0 {
		return NewConfigError("correlation.worker_count", "must be positive",
			"use the number of cores as a starting point")
	}
	if c.Patterns.SupportThreshold < 1 {
		return NewConfigError("patterns.support_threshold", "must be at least 1",
			"a pattern needs at least one supporting correlation")
	}
	if c.Patterns.AnomalySigma <= 0 {
		return NewConfigError("patterns.anomaly_sigma", "must be positive",
			"3.0 flags entities beyond three standard deviations")
	}
	if c.Patterns.ConfidenceFloor < 0 || c.Patterns.ConfidenceFloor > 1 {
		return NewConfigError("patterns.confidence_floor", "must be in [0,1]",
			"default is 0.5")
	}
	if c.RootCause.MinScore < 0 {
		return NewConfigError("root_cause.min_score", "cannot be negative",
			"candidates below this score yield an inconclusive result")
	}
	for cat, w := range c.RootCause.ImpactWeights {
		if w < 0 || w > 1 {
			return NewConfigError("root_cause.impact_weights."+string(cat),
				"must be in [0,1]", "weights scale candidate scores")
		}
	}
	if c.Pipeline.ShardCount <= 0 {
		return NewConfigError("pipeline.shard_count", "must be positive",
			"shards bound single-writer store partitions")
	}
	if c.Pipeline.BatchSize <= 0 {
		return NewConfigError("pipeline.batch_size", "must be positive", "")
	}
	switch c.Storage.Backend {
	case "memory", "sqlite", "neo4j":
	default:
		return NewConfigError("storage.backend", "unknown backend "+c.Storage.Backend,
			"valid backends: memory, sqlite, neo4j")
	}
	if c.Storage.Backend == "sqlite" && c.Storage.SQLitePath == "" {
		return NewConfigError("storage.sqlite_path", "required for sqlite backend", "")
	}
	if c.Storage.Backend == "neo4j" && c.Storage.Neo4jURI == "" {
		return NewConfigError("storage.neo4j_uri", "required for neo4j backend",
			"e.g. bolt://localhost:7687")
	}
	return nil
}
