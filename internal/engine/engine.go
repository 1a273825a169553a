// Package engine assembles the per-kind matching engines from configuration.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/visualmatch/internal/backfill"
	"github.com/kozaktomas/visualmatch/internal/config"
	"github.com/kozaktomas/visualmatch/internal/database"
	"github.com/kozaktomas/visualmatch/internal/database/postgres"
	"github.com/kozaktomas/visualmatch/internal/extractor"
	"github.com/kozaktomas/visualmatch/internal/lock"
	"github.com/kozaktomas/visualmatch/internal/logger"
	"github.com/kozaktomas/visualmatch/internal/matching"
)

// Engine is everything served for one subject kind.
type Engine struct {
	Kind     config.KindConfig
	Registry database.Registry
	Service  *matching.Service
	Pipeline *backfill.Pipeline
}

// Set holds the engines of all configured kinds and the resources they share.
type Set struct {
	engines   map[string]*Engine
	extractor *extractor.Client
	locker    lock.Locker
	pool      *postgres.Pool
	redis     *lock.RedisLocker
	snapshots []*database.MemoryIndex
	logger    *zap.Logger
}

// Open connects the backing store and builds one engine per configured kind.
// An empty database URL selects the in-memory index. The extractor client is
// created but not initialized; see InitExtractor.
func Open(ctx context.Context, cfg *config.Config, l *zap.Logger) (*Set, error) {
	l = logger.OrNop(l)
	s := &Set{
		engines: make(map[string]*Engine, len(cfg.Kinds)),
		extractor: extractor.NewClient(cfg.Extractor.URL,
			extractor.WithTimeout(cfg.Extractor.Timeout),
			extractor.WithRateLimit(cfg.Extractor.RatePerSec),
			extractor.WithLogger(l.Named("extractor"))),
		logger: l,
	}

	if cfg.Database.URL != "" {
		pool, err := postgres.Open(logger.ContextWithLogger(ctx, l), &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
		}
		s.pool = pool
		l.Info("using PostgreSQL backend")
	} else {
		l.Info("DATABASE_URL not set, using in-memory index", zap.String("snapshot_dir", cfg.Index.SnapshotDir))
	}

	if cfg.Redis.Addr != "" {
		rl, err := lock.NewRedisLocker(lock.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = rl
		s.locker = rl
	} else {
		s.locker = lock.NewLocalLocker()
	}

	for _, name := range cfg.KindNames() {
		kind, _ := cfg.Kind(name)
		reg, err := s.openRegistry(name, cfg.Index)
		if err != nil {
			s.Close()
			return nil, err
		}

		log := l.Named(name)
		svc := matching.NewService(name, s.extractor, reg, log)
		s.engines[name] = &Engine{
			Kind:     kind,
			Registry: reg,
			Service:  svc,
			Pipeline: backfill.NewPipeline(name, reg, svc,
				backfill.WithConcurrency(cfg.Backfill.Concurrency),
				backfill.WithLogger(log)),
		}
	}
	return s, nil
}

func (s *Set) openRegistry(kind string, cfg config.IndexConfig) (database.Registry, error) {
	if s.pool != nil {
		return postgres.NewSubjectRepository(s.pool, kind, cfg.Dim), nil
	}

	opts := []database.MemoryOption{database.WithDimension(cfg.Dim)}
	if cfg.HNSWMinSize > 0 {
		opts = append(opts, database.WithHNSW(cfg.HNSWMinSize))
	}
	if cfg.SnapshotDir == "" {
		return database.NewMemoryIndex(kind, opts...), nil
	}

	if err := os.MkdirAll(cfg.SnapshotDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	path := filepath.Join(cfg.SnapshotDir, kind+".gob")
	idx, err := database.OpenMemoryIndex(kind, append(opts, database.WithSnapshotPath(path))...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s index snapshot: %w", kind, err)
	}
	s.snapshots = append(s.snapshots, idx)
	return idx, nil
}

// Get returns the engine of kind.
func (s *Set) Get(kind string) (*Engine, bool) {
	e, ok := s.engines[kind]
	return e, ok
}

// Kinds returns the served kinds in sorted order.
func (s *Set) Kinds() []string {
	kinds := make([]string, 0, len(s.engines))
	for k := range s.engines {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Pipelines returns the backfill pipelines of all kinds.
func (s *Set) Pipelines() []*backfill.Pipeline {
	out := make([]*backfill.Pipeline, 0, len(s.engines))
	for _, k := range s.Kinds() {
		out = append(out, s.engines[k].Pipeline)
	}
	return out
}

// Extractor returns the shared extractor client.
func (s *Set) Extractor() *extractor.Client {
	return s.extractor
}

// Locker returns the backfill lock.
func (s *Set) Locker() lock.Locker {
	return s.locker
}

// Persistent reports whether the engines are backed by PostgreSQL.
func (s *Set) Persistent() bool {
	return s.pool != nil
}

// Pool returns the PostgreSQL pool, nil in memory mode.
func (s *Set) Pool() *postgres.Pool {
	return s.pool
}

// InitExtractor probes the extractor once.
func (s *Set) InitExtractor(ctx context.Context) error {
	return s.extractor.Init(ctx)
}

// WaitForExtractor retries Init every interval until it succeeds or ctx ends.
func (s *Set) WaitForExtractor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := s.extractor.Init(ctx)
		if err == nil {
			return nil
		}
		s.logger.Warn("feature extractor not ready, retrying", zap.Duration("in", interval), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for feature extractor: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Ping checks the backing store.
func (s *Set) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close saves in-memory snapshots and releases connections.
func (s *Set) Close() error {
	var errs []error
	for _, idx := range s.snapshots {
		if err := idx.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
