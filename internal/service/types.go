// Package service exposes the system's external request/response
// contracts: typed query, update, and dependency-analysis requests
// answered with a uniform result envelope. Internal packages return
// plain errors; this layer is where they become envelopes.
package service

// Query types accepted by the query contract.
const (
	QueryGetNodeByID           = "getNodeById"
	QueryFindNodesByLabel      = "findNodesByLabel"
	QueryFindRelatedNodes      = "findRelatedNodes"
	QueryKeywordSearch         = "keywordSearch"
	QueryVectorSearch          = "vectorSearch"
	QueryTraversePath          = "traversePath"
	QueryAggregateData         = "aggregateData"
	QueryResolveConfigByScope  = "resolveConfigByScope"
	QueryFindTimeRelatedEvents = "findTimeRelatedEvents"
	QueryGetEntityHistory      = "getEntityHistory"
)

// Update types accepted by the update contract.
const (
	UpdateCreateNode           = "createNode"
	UpdateUpdateNodeProperties = "updateNodeProperties"
	UpdateCreateRelationship   = "createRelationship"
	UpdateDeleteNode           = "deleteNode"
	UpdateDeleteRelationship   = "deleteRelationship"
	UpdateCreateScopedConfig   = "createScopedConfig"
	UpdateCreateTimePoint      = "createTimePoint"
	UpdateBatchUpdate          = "batchUpdate"
)

// CacheOptions controls per-call read-through caching.
type CacheOptions struct {
	UseCache   bool `json:"useCache" mapstructure:"useCache"`
	TTLSeconds int  `json:"ttlSeconds" mapstructure:"ttlSeconds" validate:"gte=0"`
}

// QueryRequest is the query contract's request shape.
type QueryRequest struct {
	QueryType          string         `json:"queryType" validate:"required,oneof=getNodeById findNodesByLabel findRelatedNodes keywordSearch vectorSearch traversePath aggregateData resolveConfigByScope findTimeRelatedEvents getEntityHistory"`
	Parameters         map[string]any `json:"parameters" validate:"required"`
	RequiredProperties []string       `json:"requiredProperties,omitempty"`
	CacheOptions       *CacheOptions  `json:"cacheOptions,omitempty"`
}

// UpdateRequest is the update contract's request shape.
type UpdateRequest struct {
	UpdateType string         `json:"updateType" validate:"required,oneof=createNode updateNodeProperties createRelationship deleteNode deleteRelationship createScopedConfig createTimePoint batchUpdate"`
	Parameters map[string]any `json:"parameters" validate:"required"`
}

// AnalysisRequest is the dependency-analysis contract's request shape.
type AnalysisRequest struct {
	ParentTaskID string `json:"parent_task_id" mapstructure:"parent_task_id" validate:"required,uuid4"`
}

// Timing carries the wall-clock cost of serving a request.
type Timing struct {
	QueryTimeMs int64 `json:"queryTimeMs"`
}

// Result is the uniform envelope every contract answers with. Absence
// is success with null data, never an error. Source names the layer
// that produced the payload: native, local, or cache.
type Result struct {
	Success bool    `json:"success"`
	Data    any     `json:"data,omitempty"`
	Results any     `json:"results,omitempty"`
	Error   string  `json:"error,omitempty"`
	Source  string  `json:"source,omitempty"`
	Timing  *Timing `json:"timing,omitempty"`
}
