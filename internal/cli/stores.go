package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/provenance/internal/config"
	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/manager"
	"github.com/roach88/provenance/internal/storage/local"
	"github.com/roach88/provenance/internal/storage/remote"
)

// stores is the manager stack built from the configuration.
type stores struct {
	manager manager.Manager
	remote  bool
	closers []io.Closer
}

// openStores builds a LocalManager over SQLite (or an in-process session
// store) and, when remote storage is enabled, routes it together with a
// RemoteManager over Postgres.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}
	creator := manager.WithCreator(os.Getenv("USER"))

	var kv local.KV
	storage := graph.StorageLocal
	if cfg.Storage.Session {
		kv = local.NewSessionKV()
		storage = graph.StorageSession
	} else {
		sqlite, err := local.OpenSQLite(cfg.SQLitePath())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "open local storage", err)
		}
		kv = sqlite
	}
	st.closers = append(st.closers, kv)
	localMgr := manager.NewLocalManager(kv, cfg.KeyPrefix(), storage, creator)

	if !cfg.Remote.Enabled {
		st.manager = localMgr
		return st, nil
	}

	cache, err := remote.OpenPostgres(ctx, cfg.Postgres())
	if err != nil {
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "open remote storage", err)
	}
	st.closers = append(st.closers, cache)
	st.manager = manager.NewMixedManager(localMgr, manager.NewRemoteManager(cache, creator))
	st.remote = true
	return st, nil
}

// find returns the descriptor of the graph with id.
func (s *stores) find(ctx context.Context, id string) (graph.Descriptor, error) {
	desc, err := manager.FindByID(ctx, s.manager, id)
	if errors.Is(err, manager.ErrNotFound) {
		return graph.Descriptor{}, WrapExitError(ExitCommandError, fmt.Sprintf("graph %s", id), err)
	}
	return desc, err
}

// open returns the descriptor and live backend of the graph with id.
func (s *stores) open(ctx context.Context, id string) (graph.Descriptor, graph.Backend, error) {
	desc, err := s.find(ctx, id)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	b, err := s.manager.Get(ctx, desc)
	if err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("open graph %s: %w", id, err)
	}
	return desc, b, nil
}

func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}
