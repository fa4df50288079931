package backend

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// MemoryBackend is an in-memory ckg.Backend for tests and ephemeral
// sessions. It mirrors the contract of the persistent backends,
// including (nil, nil) on absent nodes and deterministic ordering.
type MemoryBackend struct {
	mu         sync.RWMutex
	nodes      map[types.ID]*ckg.Node
	edges      map[edgeKey]ckg.Relationship
	timePoints []ckg.TimePoint
	connected  bool
}

type edgeKey struct {
	relType  ckg.RelationType
	sourceID types.ID
	targetID types.ID
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		nodes: make(map[types.ID]*ckg.Node),
		edges: make(map[edgeKey]ckg.Relationship),
	}
}

func (b *MemoryBackend) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

func (b *MemoryBackend) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

func (b *MemoryBackend) Health(_ context.Context) types.HealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		return types.Unhealthy("memory backend not connected")
	}
	return types.Healthy("in-memory backend operational")
}

func (b *MemoryBackend) Kind() ckg.Source {
	return ckg.SourceLocal
}

func cloneNode(node *ckg.Node, requiredProps []string) *ckg.Node {
	clone := *node
	clone.Properties = projectProps(cloneProps(node.Properties), requiredProps)
	return &clone
}

func cloneProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func (b *MemoryBackend) GetNodeByID(_ context.Context, query ckg.GetQuery) (*ckg.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	node, ok := b.nodes[query.ID]
	if !ok || node.Type != query.Type {
		return nil, nil
	}
	return cloneNode(node, query.RequiredProps), nil
}

// sortedByID returns nodes ordered by ID for stable output.
func sortedByID(nodes []ckg.Node) []ckg.Node {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

func (b *MemoryBackend) FindNodesByLabel(_ context.Context, query ckg.NodeQuery) ([]ckg.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []ckg.Node
	for _, node := range b.nodes {
		if node.Type != query.Type {
			continue
		}
		match := true
		for key, want := range query.Filter {
			if node.Properties[key] != want {
				match = false
				break
			}
		}
		if match {
			matched = append(matched, *cloneNode(node, nil))
		}
	}
	matched = sortedByID(matched)

	if query.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[query.Offset:]
	if len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

func (b *MemoryBackend) FindRelatedNodes(_ context.Context, query ckg.RelatedQuery) ([]ckg.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var related []ckg.Node
	for key := range b.edges {
		if key.sourceID != query.ID || key.relType != query.RelationType {
			continue
		}
		node, ok := b.nodes[key.targetID]
		if !ok {
			continue
		}
		if query.TargetType != nil && node.Type != *query.TargetType {
			continue
		}
		related = append(related, *cloneNode(node, nil))
	}
	related = sortedByID(related)
	if len(related) > query.Limit {
		related = related[:query.Limit]
	}
	return related, nil
}

func (b *MemoryBackend) KeywordSearch(_ context.Context, query ckg.KeywordQuery) ([]ckg.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	typeSet := make(map[ckg.NodeType]bool, len(query.Types))
	for _, t := range query.Types {
		typeSet[t] = true
	}

	keyword := strings.ToLower(query.Keyword)
	var matched []ckg.Node
	for _, node := range b.nodes {
		if !typeSet[node.Type] {
			continue
		}
		for _, value := range node.Properties {
			if s, ok := value.(string); ok && strings.Contains(strings.ToLower(s), keyword) {
				matched = append(matched, *cloneNode(node, nil))
				break
			}
		}
	}
	matched = sortedByID(matched)
	if len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

func (b *MemoryBackend) VectorSearch(_ context.Context, _ ckg.VectorQuery) ([]ckg.Node, error) {
	return nil, ckg.NewBackendUnavailableError("vector search", nil)
}

func (b *MemoryBackend) TraversePath(_ context.Context, query ckg.TraverseQuery) ([]ckg.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	relSet := make(map[ckg.RelationType]bool, len(query.RelationTypes))
	for _, rt := range query.RelationTypes {
		relSet[rt] = true
	}

	visited := map[types.ID]bool{query.ID: true}
	frontier := []types.ID{query.ID}
	var reached []ckg.Node

	for depth := 0; depth < query.MaxDepth && len(frontier) > 0; depth++ {
		var next []types.ID
		for key := range b.edges {
			if len(relSet) > 0 && !relSet[key.relType] {
				continue
			}
			for _, from := range frontier {
				if key.sourceID != from || visited[key.targetID] {
					continue
				}
				visited[key.targetID] = true
				next = append(next, key.targetID)
				if node, ok := b.nodes[key.targetID]; ok {
					reached = append(reached, *cloneNode(node, nil))
				}
			}
		}
		types.SortIDs(next)
		frontier = next
	}

	reached = sortedByID(reached)
	if len(reached) > query.Limit {
		reached = reached[:query.Limit]
	}
	return reached, nil
}

func (b *MemoryBackend) AggregateData(_ context.Context, query ckg.AggregateQuery) (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[string]int)
	for _, node := range b.nodes {
		if node.Type != query.Type {
			continue
		}
		group := ""
		if value, ok := node.Properties[query.GroupBy]; ok {
			if s, ok := value.(string); ok {
				group = s
			}
		}
		counts[group]++
	}
	return counts, nil
}

func (b *MemoryBackend) InsertNode(_ context.Context, node ckg.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := node
	stored.Properties = cloneProps(node.Properties)
	b.nodes[node.ID] = &stored
	return nil
}

func (b *MemoryBackend) UpdateNodeProperties(_ context.Context, nodeType ckg.NodeType, id types.ID, props map[string]any, modifiedAt time.Time) (*ckg.Node, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	node, ok := b.nodes[id]
	if !ok || node.Type != nodeType {
		return nil, ckg.NewNodeNotFoundError(nodeType, id)
	}
	for key, value := range props {
		node.Properties[key] = value
	}
	node.ModifiedAt = modifiedAt
	return cloneNode(node, nil), nil
}

func (b *MemoryBackend) DeleteNode(_ context.Context, nodeType ckg.NodeType, id types.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if node, ok := b.nodes[id]; ok && node.Type == nodeType {
		delete(b.nodes, id)
	}
	return nil
}

func (b *MemoryBackend) CreateRelationship(_ context.Context, rel ckg.Relationship) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, endpoint := range []types.ID{rel.SourceID, rel.TargetID} {
		if _, ok := b.nodes[endpoint]; !ok {
			return ckg.NewRelationshipError("relationship endpoint not found", nil).
				WithContext("nodeId", endpoint.String())
		}
	}
	b.edges[edgeKey{rel.Type, rel.SourceID, rel.TargetID}] = rel
	return nil
}

func (b *MemoryBackend) DeleteRelationship(_ context.Context, rel ckg.Relationship) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.edges, edgeKey{rel.Type, rel.SourceID, rel.TargetID})
	return nil
}

func (b *MemoryBackend) InsertTimePoint(_ context.Context, tp ckg.TimePoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timePoints = append(b.timePoints, tp)
	return nil
}

func (b *MemoryBackend) FindTimePoints(_ context.Context, query ckg.TimeQuery) ([]ckg.TimePoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	eventSet := make(map[ckg.EventType]bool, len(query.EventTypes))
	for _, et := range query.EventTypes {
		eventSet[et] = true
	}
	entitySet := make(map[ckg.NodeType]bool, len(query.EntityTypes))
	for _, nt := range query.EntityTypes {
		entitySet[nt] = true
	}

	var matched []ckg.TimePoint
	for _, tp := range b.timePoints {
		if tp.Timestamp.Before(query.Start) || tp.Timestamp.After(query.End) {
			continue
		}
		if len(eventSet) > 0 && !eventSet[tp.EventType] {
			continue
		}
		if len(entitySet) > 0 && !entitySet[tp.EntityType] {
			continue
		}
		matched = append(matched, tp)
	}
	sortTimePoints(matched)
	return matched, nil
}

func (b *MemoryBackend) EntityTimePoints(_ context.Context, query ckg.HistoryQuery) ([]ckg.TimePoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []ckg.TimePoint
	for _, tp := range b.timePoints {
		if tp.EntityID != query.EntityID || tp.EntityType != query.EntityType {
			continue
		}
		if query.Start != nil && tp.Timestamp.Before(*query.Start) {
			continue
		}
		if query.End != nil && tp.Timestamp.After(*query.End) {
			continue
		}
		matched = append(matched, tp)
	}
	sortTimePoints(matched)
	return matched, nil
}

func sortTimePoints(points []ckg.TimePoint) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].Timestamp.Equal(points[j].Timestamp) {
			return points[i].ID < points[j].ID
		}
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}
