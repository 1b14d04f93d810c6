// Package neo4j implements store.Store on a Neo4j graph database.
//
// Content nodes are (:Content {node_id}) vertices carrying the indexed identity
// fields plus the full record as JSON in a data property. Relationship targets
// are references, not node ids, so every edge points at a (:Ref {ref}) vertex
// named "<type>:<object_id>"; queries join Ref to Content on content type and
// object id when they need the resolved node. Derived pack dependencies are
// (:Content)-[:PACK_DEPENDS_ON]->(:Content) edges between pack nodes and are
// replaced inside one write transaction.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/store"
)

// Config holds connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// Store is a store.Store backed by Neo4j.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ store.Store = (*Store)(nil)

// Open connects to Neo4j, verifies connectivity and ensures the schema
// constraints exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j at %s: %w", cfg.URI, err)
	}
	s := &Store{driver: driver, database: cfg.Database}
	for _, q := range schemaQueries {
		if err := s.write(ctx, q, nil); err != nil {
			_ = driver.Close(ctx)
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return s, nil
}

var schemaQueries = []string{
	`CREATE CONSTRAINT content_node_id IF NOT EXISTS FOR (c:Content) REQUIRE c.node_id IS UNIQUE`,
	`CREATE CONSTRAINT ref_id IF NOT EXISTS FOR (r:Ref) REQUIRE r.ref IS UNIQUE`,
	`CREATE CONSTRAINT meta_key IF NOT EXISTS FOR (m:GraphMeta) REQUIRE m.key IS UNIQUE`,
	`CREATE INDEX content_pack IF NOT EXISTS FOR (c:Content) ON (c.pack_id)`,
	`CREATE INDEX content_object IF NOT EXISTS FOR (c:Content) ON (c.content_type, c.object_id)`,
}

// =============================================================================
// Queries
// =============================================================================

const (
	upsertNodesQuery = `
		UNWIND $nodes AS n
		MERGE (c:Content {node_id: n.node_id})
		SET c.content_type = n.content_type,
		    c.object_id = n.object_id,
		    c.pack_id = n.pack_id,
		    c.file_path = n.file_path,
		    c.data = n.data`

	missingSourcesQuery = `
		UNWIND $ids AS id
		OPTIONAL MATCH (c:Content {node_id: id})
		WITH id, c WHERE c IS NULL
		RETURN id`

	deletePacksQuery = `
		MATCH (c:Content) WHERE c.pack_id IN $packs
		WITH c, c.node_id AS id
		DETACH DELETE c
		RETURN count(id) AS removed`

	deleteNodesQuery = `
		MATCH (c:Content) WHERE c.node_id IN $ids
		DETACH DELETE c`

	nodesQuery = `
		MATCH (c:Content)
		RETURN c.data AS data
		ORDER BY c.node_id`

	relationshipsQuery = `
		MATCH (:Content)-[e]->(:Ref)
		RETURN e.data AS data
		ORDER BY e.key`

	deletePackDependenciesQuery = `
		MATCH (:Content)-[d:PACK_DEPENDS_ON]->(:Content)
		DELETE d`

	createPackDependenciesQuery = `
		UNWIND $deps AS d
		MATCH (s:Content {node_id: d.source}), (t:Content {node_id: d.target})
		CREATE (s)-[:PACK_DEPENDS_ON {mandatory: d.mandatory, min_depth: d.min_depth}]->(t)`

	packDependenciesQuery = `
		MATCH (s:Content)-[d:PACK_DEPENDS_ON]->(t:Content)
		RETURN s.object_id AS source, t.object_id AS target, d.mandatory AS mandatory, d.min_depth AS min_depth
		ORDER BY source, target`

	setMetaQuery = `
		MERGE (m:GraphMeta {key: $key})
		SET m.value = $value`

	metaQuery = `
		MATCH (m:GraphMeta {key: $key})
		RETURN m.value AS value`

	clearQuery = `MATCH (n) DETACH DELETE n`
)

// upsertRelationshipsQuery builds the MERGE for one relationship type.
// Cypher cannot parameterize relationship types, so the type is spliced in
// after validation against the closed enum.
func upsertRelationshipsQuery(t content.RelationshipType) (string, error) {
	if !t.IsValid() {
		return "", fmt.Errorf("neo4j: invalid relationship type %q", t)
	}
	return `
		UNWIND $rels AS r
		MATCH (s:Content {node_id: r.source})
		MERGE (t:Ref {ref: r.target})
		ON CREATE SET t.content_type = r.target_type, t.object_id = r.target_id
		MERGE (s)-[e:` + string(t) + ` {key: r.key}]->(t)
		SET e.mandatory = r.mandatory, e.is_direct = r.is_direct, e.data = r.data`, nil
}

func nodeParams(nodes []content.Node) ([]map[string]any, error) {
	params := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.NodeID, err)
		}
		params = append(params, map[string]any{
			"node_id":      n.NodeID,
			"content_type": string(n.ContentType),
			"object_id":    n.ObjectID,
			"pack_id":      n.PackID,
			"file_path":    n.FilePath,
			"data":         string(data),
		})
	}
	return params, nil
}

// relationshipParams groups relationships by type in enum order.
func relationshipParams(rels []content.Relationship) (map[content.RelationshipType][]map[string]any, error) {
	grouped := make(map[content.RelationshipType][]map[string]any)
	for _, r := range rels {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode relationship %s: %w", r.Key(), err)
		}
		grouped[r.Type] = append(grouped[r.Type], map[string]any{
			"key":         r.Key(),
			"source":      r.SourceID,
			"target":      r.Target.String(),
			"target_type": string(r.Target.Type),
			"target_id":   r.Target.ObjectID,
			"mandatory":   r.Mandatory,
			"is_direct":   r.IsDirect,
			"data":        string(data),
		})
	}
	return grouped, nil
}

func packDependencyParams(deps []content.PackDependency) []map[string]any {
	params := make([]map[string]any, 0, len(deps))
	for _, d := range deps {
		params = append(params, map[string]any{
			"source":    content.PackNodeID(d.Source),
			"target":    content.PackNodeID(d.Target),
			"mandatory": d.Mandatory,
			"min_depth": int64(d.MinDepth),
		})
	}
	return params
}

// =============================================================================
// Store
// =============================================================================

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

func (s *Store) write(ctx context.Context, query string, params map[string]any) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// read runs query and hands every record to fn.
func (s *Store) read(ctx context.Context, query string, params map[string]any, fn func(*neo4j.Record) error) error {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	for result.Next(ctx) {
		if err := fn(result.Record()); err != nil {
			return err
		}
	}
	return result.Err()
}

func (s *Store) UpsertNodes(ctx context.Context, nodes []content.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	params, err := nodeParams(nodes)
	if err != nil {
		return err
	}
	if err := s.write(ctx, upsertNodesQuery, map[string]any{"nodes": params}); err != nil {
		return fmt.Errorf("upsert nodes: %w", err)
	}
	return nil
}

func (s *Store) UpsertRelationships(ctx context.Context, rels []content.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	ids := store.MissingSources(rels, func(string) bool { return false })
	var missing []string
	err := s.read(ctx, missingSourcesQuery, map[string]any{"ids": ids}, func(rec *neo4j.Record) error {
		missing = append(missing, recordString(rec, "id"))
		return nil
	})
	if err != nil {
		return fmt.Errorf("check relationship sources: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", store.ErrReferentialOrder, strings.Join(missing, ", "))
	}

	grouped, err := relationshipParams(rels)
	if err != nil {
		return err
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, t := range content.AllRelationshipTypes {
			batch := grouped[t]
			if len(batch) == 0 {
				continue
			}
			query, err := upsertRelationshipsQuery(t)
			if err != nil {
				return nil, err
			}
			result, err := tx.Run(ctx, query, map[string]any{"rels": batch})
			if err != nil {
				return nil, fmt.Errorf("upsert %s relationships: %w", t, err)
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) DeletePacks(ctx context.Context, packIDs []string) (int, error) {
	if len(packIDs) == 0 {
		return 0, nil
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx, deletePacksQuery, map[string]any{"packs": packIDs})
	if err != nil {
		return 0, fmt.Errorf("delete packs: %w", err)
	}
	removed := 0
	if result.Next(ctx) {
		removed = int(recordInt(result.Record(), "removed"))
	}
	return removed, result.Err()
}

func (s *Store) DeleteNodes(ctx context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	if err := s.write(ctx, deleteNodesQuery, map[string]any{"ids": nodeIDs}); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	return nil
}

func (s *Store) Nodes(ctx context.Context) ([]content.Node, error) {
	var out []content.Node
	err := s.read(ctx, nodesQuery, nil, func(rec *neo4j.Record) error {
		var n content.Node
		if err := json.Unmarshal([]byte(recordString(rec, "data")), &n); err != nil {
			return fmt.Errorf("decode node: %w", err)
		}
		out = append(out, n)
		return nil
	})
	return out, err
}

func (s *Store) Relationships(ctx context.Context) ([]content.Relationship, error) {
	var out []content.Relationship
	err := s.read(ctx, relationshipsQuery, nil, func(rec *neo4j.Record) error {
		var r content.Relationship
		if err := json.Unmarshal([]byte(recordString(rec, "data")), &r); err != nil {
			return fmt.Errorf("decode relationship: %w", err)
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) ReplacePackDependencies(ctx context.Context, deps []content.PackDependency) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, deletePackDependenciesQuery, nil)
		if err != nil {
			return nil, err
		}
		if _, err := result.Consume(ctx); err != nil {
			return nil, err
		}
		if len(deps) == 0 {
			return nil, nil
		}
		result, err = tx.Run(ctx, createPackDependenciesQuery, map[string]any{"deps": packDependencyParams(deps)})
		if err != nil {
			return nil, err
		}
		_, err = result.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("replace pack dependencies: %w", err)
	}
	return nil
}

func (s *Store) PackDependencies(ctx context.Context) ([]content.PackDependency, error) {
	var out []content.PackDependency
	err := s.read(ctx, packDependenciesQuery, nil, func(rec *neo4j.Record) error {
		mandatory, _ := rec.Get("mandatory")
		m, _ := mandatory.(bool)
		out = append(out, content.PackDependency{
			Source:    recordString(rec, "source"),
			Target:    recordString(rec, "target"),
			Mandatory: m,
			MinDepth:  int(recordInt(rec, "min_depth")),
		})
		return nil
	})
	return out, err
}

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return s.write(ctx, setMetaQuery, map[string]any{"key": key, "value": value})
}

func (s *Store) Meta(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.read(ctx, metaQuery, map[string]any{"key": key}, func(rec *neo4j.Record) error {
		value, found = recordString(rec, "value"), true
		return nil
	})
	return value, found, err
}

func (s *Store) Clear(ctx context.Context) error {
	return s.write(ctx, clearQuery, nil)
}

func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func recordInt(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	n, _ := v.(int64)
	return n
}
