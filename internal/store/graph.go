package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jConfig holds connection settings for the graph store.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
}

// Graph is the temporal graph adapter. Entries are stored as Episode nodes:
// point-in-time facts that reference memory entries weakly by id.
type Graph struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

var _ Adapter = (*Graph)(nil)

// NewGraph creates a Neo4j-backed graph adapter.
func NewGraph(cfg Neo4jConfig, logger *zap.Logger) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Graph{driver: driver, logger: logger}, nil
}

func (g *Graph) Name() string { return "graph" }

// Close shuts down the Neo4j driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// Ping verifies the Neo4j connection.
func (g *Graph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// Insert creates an Episode node. The vector is not stored; temporal
// relevance comes from the valid_at timestamp.
func (g *Graph) Insert(ctx context.Context, content string, _ []float32, metadata map[string]string) (string, error) {
	id := metadata["id"]
	if id == "" {
		id = uuid.New().String()
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (e:Episode {id: $id})
		 SET e.content = $content, e.source = $source,
		     e.content_type = $contentType, e.created_at = $createdAt,
		     e.valid_at = datetime()`,
		map[string]interface{}{
			"id":          id,
			"content":     content,
			"source":      metadata["source"],
			"contentType": metadata["content_type"],
			"createdAt":   metadata["created_at"],
		})
	if err != nil {
		return "", fmt.Errorf("graph insert: %v: %w", err, ErrUnavailable)
	}
	return id, nil
}

// Search returns temporally relevant episodes whose content mentions the
// query keywords, most recent first. Episodes carry no similarity score;
// the orchestrator assigns a default weight during fusion.
func (g *Graph) Search(ctx context.Context, q Query) ([]Result, error) {
	keywords := searchKeywords(q.Text)
	if len(keywords) == 0 {
		return nil, nil
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	records, err := session.Run(ctx,
		`MATCH (e:Episode)
		 WHERE any(kw IN $keywords WHERE toLower(e.content) CONTAINS kw)
		 RETURN e.id AS id, e.content AS content, e.source AS source,
		        e.content_type AS content_type, e.created_at AS created_at
		 ORDER BY e.valid_at DESC LIMIT $limit`,
		map[string]interface{}{"keywords": keywords, "limit": q.Limit})
	if err != nil {
		return nil, fmt.Errorf("graph search: %v: %w", err, ErrUnavailable)
	}

	var results []Result
	for records.Next(ctx) {
		rec := records.Record()
		md := map[string]string{}
		for _, key := range []string{"source", "content_type", "created_at"} {
			if v, ok := rec.Get(key); ok {
				if s, ok := v.(string); ok && s != "" {
					md[key] = s
				}
			}
		}
		id, _ := rec.Get("id")
		content, _ := rec.Get("content")
		results = append(results, Result{
			ID:       asString(id),
			Content:  asString(content),
			Metadata: md,
		})
	}
	if err := records.Err(); err != nil {
		return nil, fmt.Errorf("graph search: %v: %w", err, ErrUnavailable)
	}
	return results, nil
}

// Delete removes an episode and its relationships.
func (g *Graph) Delete(ctx context.Context, id string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (e:Episode {id: $id}) DETACH DELETE e`,
		map[string]interface{}{"id": id})
	if err != nil {
		return fmt.Errorf("graph delete %s: %v: %w", id, err, ErrUnavailable)
	}
	return nil
}

// DeleteAll removes every episode and returns the count.
func (g *Graph) DeleteAll(ctx context.Context) (int, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (e:Episode)
		 WITH collect(e) AS nodes, count(e) AS total
		 FOREACH (n IN nodes | DETACH DELETE n)
		 RETURN total AS deleted`,
		nil)
	if err != nil {
		return 0, fmt.Errorf("graph delete all: %v: %w", err, ErrUnavailable)
	}
	var deleted int
	if result.Next(ctx) {
		if v, ok := result.Record().Get("deleted"); ok {
			deleted = int(v.(int64))
		}
	}
	if err := result.Err(); err != nil {
		return deleted, fmt.Errorf("graph delete all: %v: %w", err, ErrUnavailable)
	}
	return deleted, nil
}

// Count returns the number of episodes.
func (g *Graph) Count(ctx context.Context) (int, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (e:Episode) RETURN count(e) AS total`, nil)
	if err != nil {
		return 0, fmt.Errorf("graph count: %v: %w", err, ErrUnavailable)
	}
	if result.Next(ctx) {
		if v, ok := result.Record().Get("total"); ok {
			return int(v.(int64)), nil
		}
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("graph count: %v: %w", err, ErrUnavailable)
	}
	return 0, nil
}

// IDs returns every episode id, used by graph reconciliation.
func (g *Graph) IDs(ctx context.Context) ([]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (e:Episode) RETURN e.id AS id`, nil)
	if err != nil {
		return nil, fmt.Errorf("graph ids: %v: %w", err, ErrUnavailable)
	}
	var ids []string
	for result.Next(ctx) {
		if v, ok := result.Record().Get("id"); ok {
			if s := asString(v); s != "" {
				ids = append(ids, s)
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph ids: %v: %w", err, ErrUnavailable)
	}
	return ids, nil
}

// Health reports whether the Neo4j service responds.
func (g *Graph) Health(ctx context.Context) bool {
	return g.driver.VerifyConnectivity(ctx) == nil
}

// searchKeywords lowercases the query and keeps up to five word tokens of
// three or more characters.
func searchKeywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	keywords := make([]string, 0, 5)
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if len(f) >= 3 {
			keywords = append(keywords, f)
		}
		if len(keywords) == 5 {
			break
		}
	}
	return keywords
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
