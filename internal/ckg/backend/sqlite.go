package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// localSchema holds every table the degraded-mode store needs. Node
// properties are stored as a single JSON document per row; filters and
// grouping use json_extract against it.
const localSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id          TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	properties  TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	modified_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label);

CREATE TABLE IF NOT EXISTS relationships (
	rel_type     TEXT NOT NULL,
	source_label TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	target_label TEXT NOT NULL,
	target_id    TEXT NOT NULL,
	PRIMARY KEY (rel_type, source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(source_id, rel_type);

CREATE TABLE IF NOT EXISTS timepoints (
	id          TEXT PRIMARY KEY,
	entity_id   TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	metadata    TEXT
);

CREATE INDEX IF NOT EXISTS idx_tp_entity ON timepoints(entity_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_tp_window ON timepoints(timestamp);
`

// LocalBackend implements ckg.Backend on an embedded SQLite database.
// It is the degraded-mode fallback when the native graph engine is
// unreachable. Vector search is not supported in this mode.
type LocalBackend struct {
	config LocalConfig
	db     *sql.DB
}

// NewLocalBackend creates a SQLite-backed store backend.
// The backend must be connected via Connect() before use.
func NewLocalBackend(config LocalConfig) (*LocalBackend, error) {
	if config.Path == "" {
		return nil, ckg.NewConfigError("local store path cannot be empty", nil)
	}
	return &LocalBackend{config: config}, nil
}

// Connect opens the database file and applies the schema.
// WAL mode keeps readers unblocked during single-writer bursts.
func (b *LocalBackend) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d",
		b.config.Path, b.config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return ckg.NewBackendUnavailableError("local store", err)
	}

	db.SetMaxOpenConns(b.config.MaxOpenConns)
	db.SetMaxIdleConns(b.config.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return ckg.NewBackendUnavailableError("local store", err)
	}

	if _, err := db.ExecContext(ctx, localSchema); err != nil {
		db.Close()
		return ckg.NewBackendUnavailableError("local store",
			fmt.Errorf("failed to apply schema: %w", err))
	}

	b.db = db
	return nil
}

// Close closes the database.
func (b *LocalBackend) Close(_ context.Context) error {
	if b.db == nil {
		return nil
	}
	if err := b.db.Close(); err != nil {
		return ckg.NewQueryError("failed to close local store", err)
	}
	b.db = nil
	return nil
}

// Health reports the local store's health via a ping.
func (b *LocalBackend) Health(ctx context.Context) types.HealthStatus {
	if b.db == nil {
		return types.Unhealthy("local store not opened")
	}
	if err := b.db.PingContext(ctx); err != nil {
		return types.Unhealthy(fmt.Sprintf("ping failed: %v", err))
	}
	return types.Degraded("serving from local store, native graph engine unavailable")
}

// Kind reports this backend as the local fallback store.
func (b *LocalBackend) Kind() ckg.Source {
	return ckg.SourceLocal
}

func (b *LocalBackend) ready() error {
	if b.db == nil {
		return ckg.NewBackendUnavailableError("local store", fmt.Errorf("database not opened"))
	}
	return nil
}

// scanNode reads one nodes row into a ckg.Node.
func scanNode(row interface{ Scan(...any) error }, requiredProps []string) (*ckg.Node, error) {
	var (
		id, label, rawProps  string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&id, &label, &rawProps, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, ckg.NewQueryError("failed to scan node row", err)
	}

	props := make(map[string]any)
	if err := json.Unmarshal([]byte(rawProps), &props); err != nil {
		return nil, ckg.NewSerializationError("corrupt node properties", err)
	}

	return &ckg.Node{
		ID:         types.ID(id),
		Type:       ckg.NodeType(label),
		Properties: projectProps(props, requiredProps),
		CreatedAt:  fromMillis(createdAt),
		ModifiedAt: fromMillis(updatedAt),
	}, nil
}

const nodeColumns = "id, label, properties, created_at, modified_at"

// GetNodeByID fetches a single node. Returns (nil, nil) when absent.
func (b *LocalBackend) GetNodeByID(ctx context.Context, query ckg.GetQuery) (*ckg.Node, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	row := b.db.QueryRowContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE id = ? AND label = ?",
		query.ID.String(), query.Type.String())
	return scanNode(row, query.RequiredProps)
}

// FindNodesByLabel returns nodes of one label matching the property filter.
func (b *LocalBackend) FindNodesByLabel(ctx context.Context, query ckg.NodeQuery) ([]ckg.Node, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	sqlQuery := "SELECT " + nodeColumns + " FROM nodes WHERE label = ?"
	args := []any{query.Type.String()}

	for key, value := range query.Filter {
		sqlQuery += " AND json_extract(properties, '$.' || ?) = ?"
		args = append(args, key, value)
	}
	sqlQuery += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, query.Limit, query.Offset)

	return b.queryNodes(ctx, sqlQuery, args...)
}

func (b *LocalBackend) queryNodes(ctx context.Context, sqlQuery string, args ...any) ([]ckg.Node, error) {
	rows, err := b.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, ckg.NewQueryError("node query failed", err)
	}
	defer rows.Close()

	var nodes []ckg.Node
	for rows.Next() {
		node, err := scanNode(rows, nil)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, ckg.NewQueryError("node query failed", err)
	}
	return nodes, nil
}

// FindRelatedNodes returns nodes connected over one relation type.
func (b *LocalBackend) FindRelatedNodes(ctx context.Context, query ckg.RelatedQuery) ([]ckg.Node, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	sqlQuery := "SELECT n." + strings.ReplaceAll(nodeColumns, ", ", ", n.") +
		" FROM relationships r JOIN nodes n ON n.id = r.target_id" +
		" WHERE r.source_id = ? AND r.rel_type = ?"
	args := []any{query.ID.String(), query.RelationType.String()}

	if query.TargetType != nil {
		sqlQuery += " AND n.label = ?"
		args = append(args, query.TargetType.String())
	}
	sqlQuery += " ORDER BY n.id LIMIT ?"
	args = append(args, query.Limit)

	return b.queryNodes(ctx, sqlQuery, args...)
}

// KeywordSearch scans the stored property documents for a substring.
func (b *LocalBackend) KeywordSearch(ctx context.Context, query ckg.KeywordQuery) ([]ckg.Node, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	placeholders := make([]string, len(query.Types))
	args := make([]any, 0, len(query.Types)+2)
	for i, nodeType := range query.Types {
		placeholders[i] = "?"
		args = append(args, nodeType.String())
	}
	args = append(args, "%"+query.Keyword+"%", query.Limit)

	sqlQuery := "SELECT " + nodeColumns + " FROM nodes WHERE label IN (" +
		strings.Join(placeholders, ", ") + ") AND properties LIKE ? ORDER BY id LIMIT ?"

	return b.queryNodes(ctx, sqlQuery, args...)
}

// VectorSearch is not available in degraded mode.
func (b *LocalBackend) VectorSearch(_ context.Context, _ ckg.VectorQuery) ([]ckg.Node, error) {
	return nil, ckg.NewBackendUnavailableError("vector search", nil)
}

// TraversePath walks relationships breadth-first up to MaxDepth hops.
// The walk runs in Go; SQLite only answers per-frontier edge lookups.
func (b *LocalBackend) TraversePath(ctx context.Context, query ckg.TraverseQuery) ([]ckg.Node, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	relFilter := ""
	relArgs := []any{}
	if len(query.RelationTypes) > 0 {
		placeholders := make([]string, len(query.RelationTypes))
		for i, rt := range query.RelationTypes {
			placeholders[i] = "?"
			relArgs = append(relArgs, rt.String())
		}
		relFilter = " AND rel_type IN (" + strings.Join(placeholders, ", ") + ")"
	}

	visited := map[string]bool{query.ID.String(): true}
	frontier := []string{query.ID.String()}
	var reached []string

	for depth := 0; depth < query.MaxDepth && len(frontier) > 0 && len(reached) < query.Limit; depth++ {
		placeholders := make([]string, len(frontier))
		args := make([]any, 0, len(frontier)+len(relArgs))
		for i, id := range frontier {
			placeholders[i] = "?"
			args = append(args, id)
		}
		args = append(args, relArgs...)

		rows, err := b.db.QueryContext(ctx,
			"SELECT DISTINCT target_id FROM relationships WHERE source_id IN ("+
				strings.Join(placeholders, ", ")+")"+relFilter+" ORDER BY target_id",
			args...)
		if err != nil {
			return nil, ckg.NewQueryError("traversal edge query failed", err)
		}

		var next []string
		for rows.Next() {
			var targetID string
			if err := rows.Scan(&targetID); err != nil {
				rows.Close()
				return nil, ckg.NewQueryError("failed to scan traversal row", err)
			}
			if !visited[targetID] {
				visited[targetID] = true
				next = append(next, targetID)
				if len(reached) < query.Limit {
					reached = append(reached, targetID)
				}
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, ckg.NewQueryError("traversal edge query failed", err)
		}
		frontier = next
	}

	if len(reached) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(reached))
	args := make([]any, len(reached))
	for i, id := range reached {
		placeholders[i] = "?"
		args[i] = id
	}
	return b.queryNodes(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE id IN ("+strings.Join(placeholders, ", ")+") ORDER BY id",
		args...)
}

// AggregateData counts nodes of one label grouped by a property value.
func (b *LocalBackend) AggregateData(ctx context.Context, query ckg.AggregateQuery) (map[string]int, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx,
		"SELECT coalesce(CAST(json_extract(properties, '$.' || ?) AS TEXT), ''), count(*) "+
			"FROM nodes WHERE label = ? GROUP BY 1",
		query.GroupBy, query.Type.String())
	if err != nil {
		return nil, ckg.NewQueryError("aggregate query failed", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var group string
		var count int
		if err := rows.Scan(&group, &count); err != nil {
			return nil, ckg.NewQueryError("failed to scan aggregate row", err)
		}
		counts[group] = count
	}
	if err := rows.Err(); err != nil {
		return nil, ckg.NewQueryError("aggregate query failed", err)
	}
	return counts, nil
}

// InsertNode persists a fully-formed node.
func (b *LocalBackend) InsertNode(ctx context.Context, node ckg.Node) error {
	if err := b.ready(); err != nil {
		return err
	}

	rawProps, err := json.Marshal(node.Properties)
	if err != nil {
		return ckg.NewSerializationError("failed to encode node properties", err)
	}

	_, err = b.db.ExecContext(ctx,
		"INSERT INTO nodes (id, label, properties, created_at, modified_at) VALUES (?, ?, ?, ?, ?)",
		node.ID.String(), node.Type.String(), string(rawProps),
		millis(node.CreatedAt), millis(node.ModifiedAt))
	if err != nil {
		return ckg.NewWriteError("failed to insert node", err)
	}
	return nil
}

// UpdateNodeProperties merges properties into the node and bumps modifiedAt.
// The read-merge-write runs inside one transaction.
func (b *LocalBackend) UpdateNodeProperties(ctx context.Context, nodeType ckg.NodeType, id types.ID, props map[string]any, modifiedAt time.Time) (*ckg.Node, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ckg.NewWriteError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE id = ? AND label = ?",
		id.String(), nodeType.String())
	node, err := scanNode(row, nil)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ckg.NewNodeNotFoundError(nodeType, id)
	}

	for key, value := range props {
		node.Properties[key] = value
	}
	node.ModifiedAt = modifiedAt

	rawProps, err := json.Marshal(node.Properties)
	if err != nil {
		return nil, ckg.NewSerializationError("failed to encode node properties", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE nodes SET properties = ?, modified_at = ? WHERE id = ?",
		string(rawProps), millis(modifiedAt), id.String()); err != nil {
		return nil, ckg.NewWriteError("failed to update node", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, ckg.NewWriteError("failed to commit update", err)
	}
	return node, nil
}

// DeleteNode removes a node row. Relationship rows referring to the node
// are left behind; related-node queries join against nodes and therefore
// never surface them.
func (b *LocalBackend) DeleteNode(ctx context.Context, nodeType ckg.NodeType, id types.ID) error {
	if err := b.ready(); err != nil {
		return err
	}
	_, err := b.db.ExecContext(ctx,
		"DELETE FROM nodes WHERE id = ? AND label = ?",
		id.String(), nodeType.String())
	if err != nil {
		return ckg.NewWriteError("failed to delete node", err)
	}
	return nil
}

// CreateRelationship records one directed edge between existing nodes.
func (b *LocalBackend) CreateRelationship(ctx context.Context, rel ckg.Relationship) error {
	if err := b.ready(); err != nil {
		return err
	}

	for _, endpoint := range []struct {
		label ckg.NodeType
		id    types.ID
	}{{rel.SourceType, rel.SourceID}, {rel.TargetType, rel.TargetID}} {
		var exists int
		err := b.db.QueryRowContext(ctx,
			"SELECT 1 FROM nodes WHERE id = ? AND label = ?",
			endpoint.id.String(), endpoint.label.String()).Scan(&exists)
		if err == sql.ErrNoRows {
			return ckg.NewRelationshipError("relationship endpoint not found", nil).
				WithContext("nodeType", endpoint.label.String()).
				WithContext("nodeId", endpoint.id.String())
		}
		if err != nil {
			return ckg.NewQueryError("endpoint lookup failed", err)
		}
	}

	_, err := b.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO relationships (rel_type, source_label, source_id, target_label, target_id) "+
			"VALUES (?, ?, ?, ?, ?)",
		rel.Type.String(), rel.SourceType.String(), rel.SourceID.String(),
		rel.TargetType.String(), rel.TargetID.String())
	if err != nil {
		return ckg.NewRelationshipError("failed to create relationship", err)
	}
	return nil
}

// DeleteRelationship removes one directed edge.
func (b *LocalBackend) DeleteRelationship(ctx context.Context, rel ckg.Relationship) error {
	if err := b.ready(); err != nil {
		return err
	}
	_, err := b.db.ExecContext(ctx,
		"DELETE FROM relationships WHERE rel_type = ? AND source_id = ? AND target_id = ?",
		rel.Type.String(), rel.SourceID.String(), rel.TargetID.String())
	if err != nil {
		return ckg.NewRelationshipError("failed to delete relationship", err)
	}
	return nil
}

// InsertTimePoint appends one immutable lifecycle event.
func (b *LocalBackend) InsertTimePoint(ctx context.Context, tp ckg.TimePoint) error {
	if err := b.ready(); err != nil {
		return err
	}

	var metadata sql.NullString
	if tp.Metadata != nil {
		raw, err := json.Marshal(tp.Metadata)
		if err != nil {
			return ckg.NewSerializationError("failed to encode timepoint metadata", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := b.db.ExecContext(ctx,
		"INSERT INTO timepoints (id, entity_id, entity_type, event_type, timestamp, metadata) "+
			"VALUES (?, ?, ?, ?, ?, ?)",
		tp.ID.String(), tp.EntityID.String(), tp.EntityType.String(),
		tp.EventType.String(), millis(tp.Timestamp), metadata)
	if err != nil {
		return ckg.NewWriteError("failed to insert timepoint", err)
	}
	return nil
}

// FindTimePoints scans lifecycle events in a window across all entities.
func (b *LocalBackend) FindTimePoints(ctx context.Context, query ckg.TimeQuery) ([]ckg.TimePoint, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	sqlQuery := "SELECT id, entity_id, entity_type, event_type, timestamp, metadata " +
		"FROM timepoints WHERE timestamp >= ? AND timestamp <= ?"
	args := []any{millis(query.Start), millis(query.End)}

	if len(query.EventTypes) > 0 {
		placeholders := make([]string, len(query.EventTypes))
		for i, et := range query.EventTypes {
			placeholders[i] = "?"
			args = append(args, et.String())
		}
		sqlQuery += " AND event_type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if len(query.EntityTypes) > 0 {
		placeholders := make([]string, len(query.EntityTypes))
		for i, nt := range query.EntityTypes {
			placeholders[i] = "?"
			args = append(args, nt.String())
		}
		sqlQuery += " AND entity_type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	sqlQuery += " ORDER BY timestamp ASC"

	return b.queryTimePoints(ctx, sqlQuery, args...)
}

// EntityTimePoints returns one entity's lifecycle events, ascending.
func (b *LocalBackend) EntityTimePoints(ctx context.Context, query ckg.HistoryQuery) ([]ckg.TimePoint, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	sqlQuery := "SELECT id, entity_id, entity_type, event_type, timestamp, metadata " +
		"FROM timepoints WHERE entity_id = ? AND entity_type = ?"
	args := []any{query.EntityID.String(), query.EntityType.String()}

	if query.Start != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, millis(*query.Start))
	}
	if query.End != nil {
		sqlQuery += " AND timestamp <= ?"
		args = append(args, millis(*query.End))
	}
	sqlQuery += " ORDER BY timestamp ASC"

	return b.queryTimePoints(ctx, sqlQuery, args...)
}

func (b *LocalBackend) queryTimePoints(ctx context.Context, sqlQuery string, args ...any) ([]ckg.TimePoint, error) {
	rows, err := b.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, ckg.NewQueryError("timepoint query failed", err)
	}
	defer rows.Close()

	var points []ckg.TimePoint
	for rows.Next() {
		var (
			id, entityID, entityType, eventType string
			timestamp                           int64
			metadata                            sql.NullString
		)
		if err := rows.Scan(&id, &entityID, &entityType, &eventType, &timestamp, &metadata); err != nil {
			return nil, ckg.NewQueryError("failed to scan timepoint row", err)
		}

		tp := ckg.TimePoint{
			ID:         types.ID(id),
			EntityID:   types.ID(entityID),
			EntityType: ckg.NodeType(entityType),
			EventType:  ckg.EventType(eventType),
			Timestamp:  fromMillis(timestamp),
		}
		if metadata.Valid && metadata.String != "" {
			meta := make(map[string]any)
			if err := json.Unmarshal([]byte(metadata.String), &meta); err != nil {
				return nil, ckg.NewSerializationError("corrupt timepoint metadata", err)
			}
			tp.Metadata = meta
		}
		points = append(points, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, ckg.NewQueryError("timepoint query failed", err)
	}
	return points, nil
}
