package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg/cache"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/plan"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/scope"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// Service dispatches contract requests to the store, the scope
// resolver, and the planner, converting their results and errors into
// the uniform envelope. The read-through result cache lives here, keyed
// by (operation, parameters, requiredProperties).
type Service struct {
	store      ckg.Store
	resolver   *scope.Resolver
	planner    *plan.Planner
	cache      cache.Cache
	defaultTTL time.Duration
	validate   *validator.Validate
	logger     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache enables read-through caching of query results.
func WithCache(c cache.Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithDefaultTTL sets the TTL used when a caller enables caching
// without specifying ttlSeconds.
func WithDefaultTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithLogger sets the service's logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service over the given engines.
func NewService(store ckg.Store, resolver *scope.Resolver, planner *plan.Planner, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		resolver:   resolver,
		planner:    planner,
		defaultTTL: 5 * time.Minute,
		validate:   validator.New(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// failure builds an error envelope.
func failure(err error, started time.Time) Result {
	return Result{
		Success: false,
		Error:   err.Error(),
		Timing:  elapsed(started),
	}
}

func elapsed(started time.Time) *Timing {
	return &Timing{QueryTimeMs: time.Since(started).Milliseconds()}
}

// decodeParams maps a request's parameter bag onto a typed shape.
// RFC 3339 strings decode into time.Time fields.
func decodeParams(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return ckg.NewValidationError("failed to build parameter decoder: " + err.Error())
	}
	if err := decoder.Decode(params); err != nil {
		return ckg.NewValidationError("malformed parameters: " + err.Error())
	}
	return nil
}

// parseID validates a parameter as a UUID.
func parseID(raw string, field string) (types.ID, error) {
	id, err := types.ParseID(raw)
	if err != nil {
		return "", ckg.NewValidationError(field + ": " + err.Error())
	}
	return id, nil
}

// cachedPayload is the slice of an envelope persisted in the cache.
type cachedPayload struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`
}

// cacheLookup serves a query from the cache when the caller opted in.
// Cache failures are never surfaced; a broken cache degrades to misses.
func (s *Service) cacheLookup(ctx context.Context, req QueryRequest, started time.Time) (Result, string, bool) {
	if s.cache == nil || req.CacheOptions == nil || !req.CacheOptions.UseCache {
		return Result{}, "", false
	}

	key, err := cache.Key(req.QueryType, req.Parameters, req.RequiredProperties)
	if err != nil {
		s.logger.Warn("cache key construction failed", "queryType", req.QueryType, "error", err)
		return Result{}, "", false
	}

	payload, hit := s.cache.Get(ctx, key)
	if !hit {
		return Result{}, key, false
	}

	var cached cachedPayload
	if err := json.Unmarshal(payload, &cached); err != nil {
		s.logger.Warn("corrupt cache entry dropped", "key", key, "error", err)
		return Result{}, key, false
	}

	result := Result{
		Success: true,
		Source:  string(ckg.SourceCache),
		Timing:  elapsed(started),
	}
	if len(cached.Data) > 0 {
		result.Data = cached.Data
	}
	if len(cached.Results) > 0 {
		result.Results = cached.Results
	}
	return result, key, true
}

// cacheStore persists a successful query result under the given key.
func (s *Service) cacheStore(ctx context.Context, key string, req QueryRequest, result Result) {
	if s.cache == nil || key == "" || !result.Success {
		return
	}

	payload := cachedPayload{}
	var err error
	if result.Data != nil {
		payload.Data, err = json.Marshal(result.Data)
	}
	if err == nil && result.Results != nil {
		payload.Results, err = json.Marshal(result.Results)
	}
	if err != nil {
		s.logger.Warn("result not cacheable", "key", key, "error", err)
		return
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("result not cacheable", "key", key, "error", err)
		return
	}

	ttl := s.defaultTTL
	if req.CacheOptions.TTLSeconds > 0 {
		ttl = time.Duration(req.CacheOptions.TTLSeconds) * time.Second
	}
	s.cache.Set(ctx, key, encoded, ttl)
}

// Health reports the health of the store and, when configured, the
// result cache.
func (s *Service) Health(ctx context.Context) map[string]types.HealthStatus {
	health := map[string]types.HealthStatus{
		"store": s.store.Health(ctx),
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health(ctx)
	}
	return health
}
