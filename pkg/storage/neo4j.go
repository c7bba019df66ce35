package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

// GraphStore persists the analysis state as an evidence graph in
// Neo4j: events are nodes, correlations are CORRELATED relationships
// between them, analyses hang off their subject event. The graph shape
// makes "walk the evidence from this failure" a native traversal.
type GraphStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewGraphStore connects to Neo4j and prepares the schema constraints
func NewGraphStore(cfg config.StorageConfig, logger *zap.Logger) (*GraphStore, error) {
	if cfg.Neo4jURI == "" {
		return nil, fmt.Errorf("storage.neo4j_uri is required for the neo4j backend")
	}

	auth := neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, "")
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, auth)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	s := &GraphStore{driver: driver, database: cfg.Neo4jDatabase, logger: logger}
	if err := s.ensureConstraints(ctx); err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("preparing neo4j constraints: %w", err)
	}

	logger.Info("Neo4j graph store connected",
		zap.String("uri", cfg.Neo4jURI),
		zap.String("database", cfg.Neo4jDatabase))
	return s, nil
}

func (s *GraphStore) ensureConstraints(ctx context.Context) error {
	constraints := []string{
		`CREATE CONSTRAINT event_id IF NOT EXISTS FOR (e:Event) REQUIRE e.id IS UNIQUE`,
		`CREATE CONSTRAINT analysis_id IF NOT EXISTS FOR (a:Analysis) REQUIRE a.id IS UNIQUE`,
		`CREATE CONSTRAINT recommendation_id IF NOT EXISTS FOR (r:Recommendation) REQUIRE r.id IS UNIQUE`,
		`CREATE CONSTRAINT entity_key IF NOT EXISTS FOR (n:Entity) REQUIRE n.key IS UNIQUE`,
	}
	for _, c := range constraints {
		if err := s.write(ctx, c, nil); err != nil {
			return err
		}
	}
	return nil
}

// write runs one Cypher statement in a write transaction
func (s *GraphStore) write(ctx context.Context, cypher string, params map[string]interface{}) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, cypher, params)
		return nil, err
	})
	return err
}

// readPayloads runs a read query returning a single `payload` column
func (s *GraphStore) readPayloads(ctx context.Context, cypher string, params map[string]interface{}) ([]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var payloads []string
		for res.Next(ctx) {
			if payload, ok := res.Record().Get("payload"); ok {
				if str, ok := payload.(string); ok {
					payloads = append(payloads, str)
				}
			}
		}
		return payloads, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (s *GraphStore) AppendEvent(ctx context.Context, evt *domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", evt.ID, err)
	}

	entityKeys := make([]string, 0, len(evt.Entities))
	for _, ref := range evt.Entities {
		entityKeys = append(entityKeys, ref.Key())
	}

	return s.write(ctx, `
		MERGE (e:Event {id: $id})
		ON CREATE SET e.type = $type, e.timestamp = $timestamp, e.payload = $payload
		WITH e
		UNWIND $entities AS key
		MERGE (n:Entity {key: key})
		MERGE (e)-[:INVOLVES]->(n)`,
		map[string]interface{}{
			"id":        evt.ID,
			"type":      string(evt.Type),
			"timestamp": evt.Timestamp.UnixNano(),
			"payload":   string(payload),
			"entities":  entityKeys,
		})
}

func (s *GraphStore) EventByID(ctx context.Context, id string) (*domain.Event, error) {
	payloads, err := s.readPayloads(ctx,
		`MATCH (e:Event {id: $id}) RETURN e.payload AS payload`,
		map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, nil
	}
	return unmarshalEvent(payloads[0])
}

func (s *GraphStore) EventsByEntity(ctx context.Context, ref domain.EntityRef, from, to time.Time) ([]*domain.Event, error) {
	payloads, err := s.readPayloads(ctx, `
		MATCH (e:Event)-[:INVOLVES]->(:Entity {key: $key})
		WHERE e.timestamp >= $from AND e.timestamp <= $to
		RETURN e.payload AS payload ORDER BY e.timestamp`,
		map[string]interface{}{
			"key":  ref.Key(),
			"from": rangeBound(from, false),
			"to":   rangeBound(to, true),
		})
	if err != nil {
		return nil, err
	}
	return decodeEvents(payloads)
}

func (s *GraphStore) EventsInRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	payloads, err := s.readPayloads(ctx, `
		MATCH (e:Event)
		WHERE e.timestamp >= $from AND e.timestamp <= $to
		RETURN e.payload AS payload ORDER BY e.timestamp`,
		map[string]interface{}{
			"from": rangeBound(from, false),
			"to":   rangeBound(to, true),
		})
	if err != nil {
		return nil, err
	}
	return decodeEvents(payloads)
}

func (s *GraphStore) AppendCorrelation(ctx context.Context, c *domain.Correlation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling correlation %s: %w", c.ID, err)
	}

	return s.write(ctx, `
		MATCH (p:Event {id: $primary}), (se:Event {id: $secondary})
		MERGE (p)-[r:CORRELATED {id: $id}]->(se)
		ON CREATE SET r.created_at = $created_at, r.payload = $payload`,
		map[string]interface{}{
			"id":         c.ID,
			"primary":    c.PrimaryEventID,
			"secondary":  c.SecondaryEventID,
			"created_at": c.CreatedAt.UnixNano(),
			"payload":    string(payload),
		})
}

func (s *GraphStore) CorrelationsForEvent(ctx context.Context, eventID string) ([]*domain.Correlation, error) {
	payloads, err := s.readPayloads(ctx, `
		MATCH (e:Event {id: $id})-[r:CORRELATED]-(:Event)
		RETURN r.payload AS payload ORDER BY r.created_at`,
		map[string]interface{}{"id": eventID})
	if err != nil {
		return nil, err
	}
	return decodeCorrelations(payloads)
}

func (s *GraphStore) CorrelationsInRange(ctx context.Context, from, to time.Time) ([]*domain.Correlation, error) {
	payloads, err := s.readPayloads(ctx, `
		MATCH ()-[r:CORRELATED]->()
		WHERE r.created_at >= $from AND r.created_at <= $to
		RETURN r.payload AS payload ORDER BY r.created_at`,
		map[string]interface{}{
			"from": rangeBound(from, false),
			"to":   rangeBound(to, true),
		})
	if err != nil {
		return nil, err
	}
	return decodeCorrelations(payloads)
}

func (s *GraphStore) SaveAnalysis(ctx context.Context, rc *domain.RootCause) error {
	payload, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshaling analysis %s: %w", rc.AnalysisID, err)
	}

	return s.write(ctx, `
		MERGE (a:Analysis {id: $id})
		SET a.subject_event_id = $subject, a.created_at = $created_at, a.payload = $payload
		WITH a
		MATCH (e:Event {id: $subject})
		MERGE (a)-[:EXPLAINS]->(e)`,
		map[string]interface{}{
			"id":         rc.AnalysisID,
			"subject":    rc.SubjectEventID,
			"created_at": rc.CreatedAt.UnixNano(),
			"payload":    string(payload),
		})
}

func (s *GraphStore) AnalysisByID(ctx context.Context, analysisID string) (*domain.RootCause, error) {
	payloads, err := s.readPayloads(ctx,
		`MATCH (a:Analysis {id: $id}) RETURN a.payload AS payload`,
		map[string]interface{}{"id": analysisID})
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, &NotFoundError{Kind: "analysis", Key: analysisID}
	}
	return decodeAnalysis(payloads[0])
}

func (s *GraphStore) AnalysisForEvent(ctx context.Context, subjectEventID string) (*domain.RootCause, error) {
	payloads, err := s.readPayloads(ctx, `
		MATCH (a:Analysis {subject_event_id: $subject})
		RETURN a.payload AS payload ORDER BY a.created_at DESC LIMIT 1`,
		map[string]interface{}{"subject": subjectEventID})
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, &NotFoundError{Kind: "analysis for event", Key: subjectEventID}
	}
	return decodeAnalysis(payloads[0])
}

func (s *GraphStore) AnalysesInRange(ctx context.Context, from, to time.Time) ([]*domain.RootCause, error) {
	payloads, err := s.readPayloads(ctx, `
		MATCH (a:Analysis)
		WHERE a.created_at >= $from AND a.created_at <= $to
		RETURN a.payload AS payload ORDER BY a.created_at`,
		map[string]interface{}{
			"from": rangeBound(from, false),
			"to":   rangeBound(to, true),
		})
	if err != nil {
		return nil, err
	}

	out := make([]*domain.RootCause, 0, len(payloads))
	for _, p := range payloads {
		rc, err := decodeAnalysis(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

func (s *GraphStore) AppendRecommendations(ctx context.Context, recs []*domain.Recommendation) error {
	for _, rec := range recs {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling recommendation %s: %w", rec.ID, err)
		}
		if err := s.write(ctx, `
			MERGE (r:Recommendation {id: $id})
			ON CREATE SET r.root_cause_id = $root_cause, r.payload = $payload
			WITH r
			MATCH (a:Analysis {id: $root_cause})
			MERGE (a)-[:RECOMMENDS]->(r)`,
			map[string]interface{}{
				"id":         rec.ID,
				"root_cause": rec.RootCauseID,
				"payload":    string(payload),
			}); err != nil {
			return err
		}
	}
	return nil
}

func (s *GraphStore) RecommendationsForAnalysis(ctx context.Context, analysisID string) ([]*domain.Recommendation, error) {
	payloads, err := s.readPayloads(ctx, `
		MATCH (:Analysis {id: $id})-[:RECOMMENDS]->(r:Recommendation)
		RETURN r.payload AS payload`,
		map[string]interface{}{"id": analysisID})
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Recommendation, 0, len(payloads))
	for _, p := range payloads {
		var rec domain.Recommendation
		if err := json.Unmarshal([]byte(p), &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func decodeEvents(payloads []string) ([]*domain.Event, error) {
	out := make([]*domain.Event, 0, len(payloads))
	for _, p := range payloads {
		evt, err := unmarshalEvent(p)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}

func decodeCorrelations(payloads []string) ([]*domain.Correlation, error) {
	out := make([]*domain.Correlation, 0, len(payloads))
	for _, p := range payloads {
		var c domain.Correlation
		if err := json.Unmarshal([]byte(p), &c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, nil
}

func decodeAnalysis(payload string) (*domain.RootCause, error) {
	var rc domain.RootCause
	if err := json.Unmarshal([]byte(payload), &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}
