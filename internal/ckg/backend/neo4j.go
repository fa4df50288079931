package backend

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// Node properties reserved for bookkeeping alongside the user property set.
const (
	propID         = "id"
	propCreatedAt  = "createdAt"
	propModifiedAt = "modifiedAt"
)

// Neo4jBackend implements ckg.Backend on the native graph engine.
// Labels and relation types are interpolated into Cypher (they cannot be
// query parameters); both are validated against the closed vocabulary or
// the identifier grammar before any query text is built.
type Neo4jBackend struct {
	config Neo4jConfig
	driver neo4j.DriverWithContext
}

// NewNeo4jBackend creates a Neo4j-backed store backend.
// The backend must be connected via Connect() before use.
func NewNeo4jBackend(config Neo4jConfig) (*Neo4jBackend, error) {
	if config.URI == "" {
		return nil, ckg.NewConfigError("neo4j URI cannot be empty", nil)
	}
	return &Neo4jBackend{config: config}, nil
}

// Connect establishes a connection to the Neo4j database.
// Uses exponential backoff for connection retries.
func (b *Neo4jBackend) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(b.config.Username, b.config.Password, "")

	driverConfig := func(config *neo4j.Config) {
		if b.config.PoolSize > 0 {
			config.MaxConnectionPoolSize = b.config.PoolSize
		}
		config.ConnectionAcquisitionTimeout = b.config.ConnectionTimeout
		config.MaxTransactionRetryTime = b.config.MaxTransactionRetryTime
	}

	var driver neo4j.DriverWithContext
	var lastErr error
	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		var err error
		driver, err = neo4j.NewDriverWithContext(b.config.URI, auth, driverConfig)
		if err == nil {
			err = driver.VerifyConnectivity(ctx)
			if err == nil {
				b.driver = driver
				return nil
			}
		}

		lastErr = err

		if ctx.Err() != nil {
			return ckg.NewBackendUnavailableError("native graph engine", ctx.Err())
		}

		// Backoff delay: baseDelay * 2^attempt, capped at the connection timeout.
		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > b.config.ConnectionTimeout {
			delay = b.config.ConnectionTimeout
		}

		select {
		case <-time.After(delay):
			continue
		case <-ctx.Done():
			return ckg.NewBackendUnavailableError("native graph engine", ctx.Err())
		}
	}

	return ckg.NewBackendUnavailableError("native graph engine",
		fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr))
}

// Close releases all resources and closes the database connection.
func (b *Neo4jBackend) Close(ctx context.Context) error {
	if b.driver == nil {
		return nil
	}
	if err := b.driver.Close(ctx); err != nil {
		return ckg.NewQueryError("failed to close driver", err)
	}
	b.driver = nil
	return nil
}

// Health returns the current health status of the Neo4j connection.
func (b *Neo4jBackend) Health(ctx context.Context) types.HealthStatus {
	if b.driver == nil {
		return types.Unhealthy("driver not initialized")
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := b.driver.VerifyConnectivity(healthCtx); err != nil {
		return types.Unhealthy(fmt.Sprintf("connectivity check failed: %v", err))
	}

	return types.Healthy("connected to Neo4j")
}

// Kind reports this backend as the native graph engine.
func (b *Neo4jBackend) Kind() ckg.Source {
	return ckg.SourceNative
}

// runRead executes a Cypher read query and collects the records.
func (b *Neo4jBackend) runRead(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if b.driver == nil {
		return nil, ckg.NewBackendUnavailableError("native graph engine", fmt.Errorf("driver not connected"))
	}

	session := b.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: b.config.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, ckg.NewQueryError("query execution failed", err)
	}
	return result.([]*neo4j.Record), nil
}

// runWrite executes a Cypher write query and collects the records.
func (b *Neo4jBackend) runWrite(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if b.driver == nil {
		return nil, ckg.NewBackendUnavailableError("native graph engine", fmt.Errorf("driver not connected"))
	}

	session := b.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: b.config.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, ckg.NewWriteError("write execution failed", err)
	}
	return result.([]*neo4j.Record), nil
}

// nodeFromValue converts a Cypher node value into a ckg.Node, restoring
// composite property values and splitting off the bookkeeping fields.
func nodeFromValue(value any, nodeType ckg.NodeType, requiredProps []string) (*ckg.Node, error) {
	dbNode, ok := value.(dbtype.Node)
	if !ok {
		return nil, ckg.NewSerializationError("unexpected record value for node", nil)
	}

	stored := make(map[string]any, len(dbNode.Props))
	for k, v := range dbNode.Props {
		stored[k] = v
	}

	id := types.ID(stringProp(stored, propID))
	createdAt := fromMillis(asInt64(stored[propCreatedAt]))
	modifiedAt := fromMillis(asInt64(stored[propModifiedAt]))
	delete(stored, propID)
	delete(stored, propCreatedAt)
	delete(stored, propModifiedAt)

	props, err := decodeProps(stored)
	if err != nil {
		return nil, err
	}

	return &ckg.Node{
		ID:         id,
		Type:       nodeType,
		Properties: projectProps(props, requiredProps),
		CreatedAt:  createdAt,
		ModifiedAt: modifiedAt,
	}, nil
}

func stringProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

// GetNodeByID fetches a single node by label and ID.
// Returns (nil, nil) when the node does not exist.
func (b *Neo4jBackend) GetNodeByID(ctx context.Context, query ckg.GetQuery) (*ckg.Node, error) {
	cypher := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n LIMIT 1", query.Type)
	records, err := b.runRead(ctx, cypher, map[string]any{"id": query.ID.String()})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	value, _ := records[0].Get("n")
	return nodeFromValue(value, query.Type, query.RequiredProps)
}

// FindNodesByLabel returns nodes of one label matching the property filter.
func (b *Neo4jBackend) FindNodesByLabel(ctx context.Context, query ckg.NodeQuery) ([]ckg.Node, error) {
	params := map[string]any{
		"limit":  query.Limit,
		"offset": query.Offset,
	}

	var where []string
	i := 0
	for key, value := range query.Filter {
		param := fmt.Sprintf("f%d", i)
		// Filter keys passed schema validation; dynamic access keeps the
		// value itself out of the query text.
		where = append(where, fmt.Sprintf("n[$k%d] = $%s", i, param))
		params[fmt.Sprintf("k%d", i)] = key
		params[param] = value
		i++
	}

	cypher := fmt.Sprintf("MATCH (n:%s)", query.Type)
	if len(where) > 0 {
		cypher += " WHERE " + strings.Join(where, " AND ")
	}
	cypher += " RETURN n ORDER BY n.id SKIP $offset LIMIT $limit"

	records, err := b.runRead(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	nodes := make([]ckg.Node, 0, len(records))
	for _, record := range records {
		value, _ := record.Get("n")
		node, err := nodeFromValue(value, query.Type, nil)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

// FindRelatedNodes returns nodes connected over one relation type.
func (b *Neo4jBackend) FindRelatedNodes(ctx context.Context, query ckg.RelatedQuery) ([]ckg.Node, error) {
	target := ""
	if query.TargetType != nil {
		target = ":" + query.TargetType.String()
	}
	cypher := fmt.Sprintf(
		"MATCH (:%s {id: $id})-[:%s]->(m%s) RETURN m, labels(m) AS lbls ORDER BY m.id LIMIT $limit",
		query.Type, query.RelationType, target,
	)

	records, err := b.runRead(ctx, cypher, map[string]any{
		"id":    query.ID.String(),
		"limit": query.Limit,
	})
	if err != nil {
		return nil, err
	}

	nodes := make([]ckg.Node, 0, len(records))
	for _, record := range records {
		value, _ := record.Get("m")
		node, err := nodeFromValue(value, labelOf(record, query.TargetType), nil)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

// labelOf resolves the node label from the record's labels column,
// preferring the query's explicit target type.
func labelOf(record *neo4j.Record, target *ckg.NodeType) ckg.NodeType {
	if target != nil {
		return *target
	}
	if value, ok := record.Get("lbls"); ok {
		if labels, ok := value.([]any); ok {
			for _, l := range labels {
				if s, ok := l.(string); ok && ckg.NodeType(s).IsValid() {
					return ckg.NodeType(s)
				}
			}
		}
	}
	return ""
}

// KeywordSearch scans string properties of the given labels for a keyword.
func (b *Neo4jBackend) KeywordSearch(ctx context.Context, query ckg.KeywordQuery) ([]ckg.Node, error) {
	var nodes []ckg.Node
	perLabel := query.Limit

	for _, nodeType := range query.Types {
		cypher := fmt.Sprintf(
			"MATCH (n:%s) WHERE any(k IN keys(n) WHERE toString(n[k]) CONTAINS $kw) RETURN n ORDER BY n.id LIMIT $limit",
			nodeType,
		)
		records, err := b.runRead(ctx, cypher, map[string]any{
			"kw":    query.Keyword,
			"limit": perLabel,
		})
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			value, _ := record.Get("n")
			node, err := nodeFromValue(value, nodeType, nil)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, *node)
			if len(nodes) >= query.Limit {
				return nodes, nil
			}
		}
	}
	return nodes, nil
}

// VectorSearch queries the engine's vector index for the given field.
// Requires an index named "<label>_<field>_idx" per searched label.
func (b *Neo4jBackend) VectorSearch(ctx context.Context, query ckg.VectorQuery) ([]ckg.Node, error) {
	searchTypes := query.Types
	if len(searchTypes) == 0 {
		return nil, ckg.NewValidationError("vector search requires at least one node label")
	}

	var nodes []ckg.Node
	for _, nodeType := range searchTypes {
		indexName := fmt.Sprintf("%s_%s_idx", strings.ToLower(nodeType.String()), query.Field)
		cypher := "CALL db.index.vector.queryNodes($index, $k, $vector) YIELD node RETURN node"
		records, err := b.runRead(ctx, cypher, map[string]any{
			"index":  indexName,
			"k":      query.Limit,
			"vector": query.Vector,
		})
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			value, _ := record.Get("node")
			node, err := nodeFromValue(value, nodeType, nil)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, *node)
			if len(nodes) >= query.Limit {
				return nodes, nil
			}
		}
	}
	return nodes, nil
}

// TraversePath walks relationships up to MaxDepth hops from a start node.
func (b *Neo4jBackend) TraversePath(ctx context.Context, query ckg.TraverseQuery) ([]ckg.Node, error) {
	relFilter := ""
	if len(query.RelationTypes) > 0 {
		parts := make([]string, len(query.RelationTypes))
		for i, rt := range query.RelationTypes {
			parts[i] = rt.String()
		}
		relFilter = ":" + strings.Join(parts, "|")
	}

	cypher := fmt.Sprintf(
		"MATCH path = (s:%s {id: $id})-[%s*1..%d]->(m) "+
			"RETURN DISTINCT m, labels(m) AS lbls, min(length(path)) AS depth "+
			"ORDER BY depth, m.id LIMIT $limit",
		query.Type, relFilter, query.MaxDepth,
	)

	records, err := b.runRead(ctx, cypher, map[string]any{
		"id":    query.ID.String(),
		"limit": query.Limit,
	})
	if err != nil {
		return nil, err
	}

	nodes := make([]ckg.Node, 0, len(records))
	for _, record := range records {
		value, _ := record.Get("m")
		node, err := nodeFromValue(value, labelOf(record, nil), nil)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

// AggregateData counts nodes of one label grouped by a property value.
func (b *Neo4jBackend) AggregateData(ctx context.Context, query ckg.AggregateQuery) (map[string]int, error) {
	cypher := fmt.Sprintf(
		"MATCH (n:%s) RETURN coalesce(toString(n[$key]), '') AS grp, count(*) AS cnt",
		query.Type,
	)
	records, err := b.runRead(ctx, cypher, map[string]any{"key": query.GroupBy})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(records))
	for _, record := range records {
		grp, _ := record.Get("grp")
		cnt, _ := record.Get("cnt")
		key, _ := grp.(string)
		counts[key] = int(asInt64(cnt))
	}
	return counts, nil
}

// InsertNode persists a fully-formed node.
func (b *Neo4jBackend) InsertNode(ctx context.Context, node ckg.Node) error {
	stored, err := encodeProps(node.Properties)
	if err != nil {
		return err
	}
	stored[propID] = node.ID.String()
	stored[propCreatedAt] = millis(node.CreatedAt)
	stored[propModifiedAt] = millis(node.ModifiedAt)

	cypher := fmt.Sprintf("CREATE (n:%s) SET n = $props", node.Type)
	if _, err := b.runWrite(ctx, cypher, map[string]any{"props": stored}); err != nil {
		return err
	}
	return nil
}

// UpdateNodeProperties merges properties into the node and bumps modifiedAt.
// Returns NODE_NOT_FOUND if the node does not exist.
func (b *Neo4jBackend) UpdateNodeProperties(ctx context.Context, nodeType ckg.NodeType, id types.ID, props map[string]any, modifiedAt time.Time) (*ckg.Node, error) {
	stored, err := encodeProps(props)
	if err != nil {
		return nil, err
	}
	jsonKeys := []string{}
	if keys, ok := stored[jsonKeysProp].([]string); ok {
		jsonKeys = keys
	}
	delete(stored, jsonKeysProp) // merged in Cypher to keep prior encoded keys intact

	cypher := fmt.Sprintf(
		"MATCH (n:%s {id: $id}) "+
			"SET n += $props, n.modifiedAt = $modifiedAt, "+
			"n.%s = [k IN coalesce(n.%s, []) WHERE NOT k IN $jsonKeys] + $jsonKeys "+
			"RETURN n",
		nodeType, jsonKeysProp, jsonKeysProp,
	)

	records, err := b.runWrite(ctx, cypher, map[string]any{
		"id":         id.String(),
		"props":      stored,
		"modifiedAt": millis(modifiedAt),
		"jsonKeys":   jsonKeys,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ckg.NewNodeNotFoundError(nodeType, id)
	}

	value, _ := records[0].Get("n")
	return nodeFromValue(value, nodeType, nil)
}

// DeleteNode removes a node and, because the graph engine cannot keep
// dangling edges, its incident relationships. TimePoints referring to the
// entity are never cascaded.
func (b *Neo4jBackend) DeleteNode(ctx context.Context, nodeType ckg.NodeType, id types.ID) error {
	cypher := fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", nodeType)
	_, err := b.runWrite(ctx, cypher, map[string]any{"id": id.String()})
	return err
}

// CreateRelationship creates one directed edge between existing nodes.
func (b *Neo4jBackend) CreateRelationship(ctx context.Context, rel ckg.Relationship) error {
	cypher := fmt.Sprintf(
		"MATCH (a:%s {id: $sourceId}), (b:%s {id: $targetId}) MERGE (a)-[r:%s]->(b) RETURN r",
		rel.SourceType, rel.TargetType, rel.Type,
	)
	records, err := b.runWrite(ctx, cypher, map[string]any{
		"sourceId": rel.SourceID.String(),
		"targetId": rel.TargetID.String(),
	})
	if err != nil {
		return ckg.NewRelationshipError("failed to create relationship", err)
	}
	if len(records) == 0 {
		return ckg.NewRelationshipError("relationship endpoints not found", nil).
			WithContext("sourceId", rel.SourceID.String()).
			WithContext("targetId", rel.TargetID.String())
	}
	return nil
}

// DeleteRelationship removes one directed edge.
func (b *Neo4jBackend) DeleteRelationship(ctx context.Context, rel ckg.Relationship) error {
	cypher := fmt.Sprintf(
		"MATCH (a:%s {id: $sourceId})-[r:%s]->(b:%s {id: $targetId}) DELETE r",
		rel.SourceType, rel.Type, rel.TargetType,
	)
	_, err := b.runWrite(ctx, cypher, map[string]any{
		"sourceId": rel.SourceID.String(),
		"targetId": rel.TargetID.String(),
	})
	if err != nil {
		return ckg.NewRelationshipError("failed to delete relationship", err)
	}
	return nil
}

// InsertTimePoint appends one immutable lifecycle event as a TimePoint node.
func (b *Neo4jBackend) InsertTimePoint(ctx context.Context, tp ckg.TimePoint) error {
	metadata := ""
	if tp.Metadata != nil {
		encoded, err := encodeProps(map[string]any{"metadata": tp.Metadata})
		if err != nil {
			return err
		}
		metadata, _ = encoded["metadata"].(string)
	}

	cypher := "CREATE (t:TimePoint {id: $id, entityId: $entityId, entityType: $entityType, " +
		"eventType: $eventType, timestamp: $timestamp, metadata: $metadata})"
	_, err := b.runWrite(ctx, cypher, map[string]any{
		"id":         tp.ID.String(),
		"entityId":   tp.EntityID.String(),
		"entityType": tp.EntityType.String(),
		"eventType":  tp.EventType.String(),
		"timestamp":  millis(tp.Timestamp),
		"metadata":   metadata,
	})
	return err
}

// FindTimePoints scans lifecycle events in a window across all entities.
func (b *Neo4jBackend) FindTimePoints(ctx context.Context, query ckg.TimeQuery) ([]ckg.TimePoint, error) {
	params := map[string]any{
		"start": millis(query.Start),
		"end":   millis(query.End),
	}
	where := []string{"t.timestamp >= $start", "t.timestamp <= $end"}

	if len(query.EventTypes) > 0 {
		events := make([]string, len(query.EventTypes))
		for i, et := range query.EventTypes {
			events[i] = et.String()
		}
		where = append(where, "t.eventType IN $eventTypes")
		params["eventTypes"] = events
	}
	if len(query.EntityTypes) > 0 {
		entities := make([]string, len(query.EntityTypes))
		for i, nt := range query.EntityTypes {
			entities[i] = nt.String()
		}
		where = append(where, "t.entityType IN $entityTypes")
		params["entityTypes"] = entities
	}

	cypher := "MATCH (t:TimePoint) WHERE " + strings.Join(where, " AND ") +
		" RETURN t ORDER BY t.timestamp ASC"

	records, err := b.runRead(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return timePointsFromRecords(records)
}

// EntityTimePoints returns one entity's lifecycle events, ascending.
func (b *Neo4jBackend) EntityTimePoints(ctx context.Context, query ckg.HistoryQuery) ([]ckg.TimePoint, error) {
	params := map[string]any{
		"entityId":   query.EntityID.String(),
		"entityType": query.EntityType.String(),
	}
	where := []string{"t.entityId = $entityId", "t.entityType = $entityType"}

	if query.Start != nil {
		where = append(where, "t.timestamp >= $start")
		params["start"] = millis(*query.Start)
	}
	if query.End != nil {
		where = append(where, "t.timestamp <= $end")
		params["end"] = millis(*query.End)
	}

	cypher := "MATCH (t:TimePoint) WHERE " + strings.Join(where, " AND ") +
		" RETURN t ORDER BY t.timestamp ASC"

	records, err := b.runRead(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return timePointsFromRecords(records)
}

// timePointsFromRecords converts TimePoint node records.
func timePointsFromRecords(records []*neo4j.Record) ([]ckg.TimePoint, error) {
	points := make([]ckg.TimePoint, 0, len(records))
	for _, record := range records {
		value, _ := record.Get("t")
		dbNode, ok := value.(dbtype.Node)
		if !ok {
			return nil, ckg.NewSerializationError("unexpected record value for timepoint", nil)
		}

		tp := ckg.TimePoint{
			ID:         types.ID(stringProp(dbNode.Props, "id")),
			EntityID:   types.ID(stringProp(dbNode.Props, "entityId")),
			EntityType: ckg.NodeType(stringProp(dbNode.Props, "entityType")),
			EventType:  ckg.EventType(stringProp(dbNode.Props, "eventType")),
			Timestamp:  fromMillis(asInt64(dbNode.Props["timestamp"])),
		}

		if raw := stringProp(dbNode.Props, "metadata"); raw != "" {
			decoded, err := decodeProps(map[string]any{
				"metadata":   raw,
				jsonKeysProp: []string{"metadata"},
			})
			if err != nil {
				return nil, err
			}
			if m, ok := decoded["metadata"].(map[string]any); ok {
				tp.Metadata = m
			}
		}

		points = append(points, tp)
	}
	return points, nil
}
