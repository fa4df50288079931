package backend

import (
	"context"
	"log/slog"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// Select probes the native graph engine with a bounded timeout and returns
// a connected Backend: the Neo4j engine when reachable, otherwise the local
// SQLite store. The choice holds for the lifetime of the returned backend;
// there is no mid-flight switching.
func Select(ctx context.Context, cfg Config, logger *slog.Logger) (ckg.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	native, err := NewNeo4jBackend(cfg.Neo4j)
	if err == nil {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		err = native.Connect(probeCtx)
		cancel()
		if err == nil {
			logger.InfoContext(ctx, "knowledge graph backend selected",
				"backend", ckg.SourceNative,
				"uri", cfg.Neo4j.URI,
			)
			return native, nil
		}
	}

	logger.WarnContext(ctx, "native graph engine unavailable, falling back to local store",
		"error", types.WrapError(types.BACKEND_PROBE_FAILED, "native graph engine probe failed", err),
		"path", cfg.Local.Path,
	)

	local, lerr := NewLocalBackend(cfg.Local)
	if lerr != nil {
		return nil, types.WrapError(types.BACKEND_OPEN_FAILED, "failed to build local store", lerr)
	}
	if lerr := local.Connect(ctx); lerr != nil {
		return nil, types.WrapError(types.BACKEND_OPEN_FAILED, "failed to open local store at "+cfg.Local.Path, lerr)
	}

	logger.InfoContext(ctx, "knowledge graph backend selected",
		"backend", ckg.SourceLocal,
		"path", cfg.Local.Path,
	)
	return local, nil
}
