// Package badger implements store.Store on an embedded BadgerDB.
//
// Key layout:
//
//	n/<node_id>                  JSON content.Node
//	r/<source_id>\x00<edge key>  JSON content.Relationship
//	d/<generation>/<src>/<tgt>   JSON content.PackDependency
//	m/<key>                      metadata value
//
// Pack dependencies are written under a new generation and published by
// swapping the m/.depgen pointer in a single transaction, so readers never see
// a half-written set. The previous generation is dropped afterwards.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"

	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/store"
)

const (
	prefixNode = "n/"
	prefixRel  = "r/"
	prefixDep  = "d/"
	prefixMeta = "m/"

	depGenerationKey = prefixMeta + ".depgen"
)

// Config configures a badger store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in RAM. Used by tests and throwaway builds.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's own warnings and errors. Nil silences them.
	Logger *log.Logger
}

// Store is a store.Store backed by BadgerDB.
type Store struct {
	db *badger.DB
}

var _ store.Store = (*Store)(nil)

// badgerLogger adapts charmbracelet/log to badger.Logger. Info and debug chatter
// from compactions is dropped.
type badgerLogger struct {
	logger *log.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}

// Open opens or creates a badger store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db}, nil
}

// =============================================================================
// Nodes and relationships
// =============================================================================

func nodeKey(id string) []byte { return []byte(prefixNode + id) }

func relPrefix(sourceID string) []byte { return []byte(prefixRel + sourceID + "\x00") }

func relKey(r content.Relationship) []byte {
	return append(relPrefix(r.SourceID), r.Key()...)
}

func (s *Store) UpsertNodes(_ context.Context, nodes []content.Node) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode node %s: %w", n.NodeID, err)
		}
		if err := wb.Set(nodeKey(n.NodeID), data); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *Store) UpsertRelationships(_ context.Context, rels []content.Relationship) error {
	var missing []string
	err := s.db.View(func(txn *badger.Txn) error {
		var lookupErr error
		missing = store.MissingSources(rels, func(id string) bool {
			_, err := txn.Get(nodeKey(id))
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				lookupErr = err
			}
			return err == nil
		})
		return lookupErr
	})
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", store.ErrReferentialOrder, strings.Join(missing, ", "))
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range rels {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode relationship %s: %w", r.Key(), err)
		}
		if err := wb.Set(relKey(r), data); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *Store) DeletePacks(ctx context.Context, packIDs []string) (int, error) {
	packs := make(map[string]bool, len(packIDs))
	for _, id := range packIDs {
		packs[id] = true
	}
	nodes, err := s.Nodes(ctx)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, n := range nodes {
		if n.PackID != "" && packs[n.PackID] {
			ids = append(ids, n.NodeID)
		}
	}
	return len(ids), s.DeleteNodes(ctx, ids)
}

func (s *Store) DeleteNodes(_ context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range nodeIDs {
			keys = append(keys, nodeKey(id))
			rk, err := scanKeys(txn, relPrefix(id))
			if err != nil {
				return err
			}
			keys = append(keys, rk...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.deleteKeys(keys)
}

func (s *Store) Nodes(_ context.Context) ([]content.Node, error) {
	var out []content.Node
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(prefixNode), func(_, val []byte) error {
			var n content.Node
			if err := json.Unmarshal(val, &n); err != nil {
				return fmt.Errorf("decode node: %w", err)
			}
			out = append(out, n)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	content.SortNodes(out)
	return out, nil
}

func (s *Store) Relationships(_ context.Context) ([]content.Relationship, error) {
	var out []content.Relationship
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(prefixRel), func(_, val []byte) error {
			var r content.Relationship
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("decode relationship: %w", err)
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	content.SortRelationships(out)
	return out, nil
}

// =============================================================================
// Pack dependencies
// =============================================================================

func depPrefix(gen uint64) []byte {
	return []byte(prefixDep + strconv.FormatUint(gen, 10) + "/")
}

func currentGeneration(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(depGenerationKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var gen uint64
	err = item.Value(func(val []byte) error {
		gen, err = strconv.ParseUint(string(val), 10, 64)
		return err
	})
	return gen, err
}

func (s *Store) ReplacePackDependencies(_ context.Context, deps []content.PackDependency) error {
	var prev uint64
	if err := s.db.View(func(txn *badger.Txn) error {
		var err error
		prev, err = currentGeneration(txn)
		return err
	}); err != nil {
		return err
	}
	next := prev + 1

	// Write the new generation where no reader looks yet.
	if err := s.deletePrefix(depPrefix(next)); err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, d := range deps {
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		key := append(depPrefix(next), d.Source+"/"+d.Target...)
		if err := wb.Set(key, data); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(depGenerationKey), []byte(strconv.FormatUint(next, 10)))
	}); err != nil {
		return err
	}
	return s.deletePrefix(depPrefix(prev))
}

func (s *Store) PackDependencies(_ context.Context) ([]content.PackDependency, error) {
	var out []content.PackDependency
	err := s.db.View(func(txn *badger.Txn) error {
		gen, err := currentGeneration(txn)
		if err != nil || gen == 0 {
			return err
		}
		return scan(txn, depPrefix(gen), func(_, val []byte) error {
			var d content.PackDependency
			if err := json.Unmarshal(val, &d); err != nil {
				return fmt.Errorf("decode pack dependency: %w", err)
			}
			out = append(out, d)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	content.SortPackDependencies(out)
	return out, nil
}

// =============================================================================
// Metadata and lifecycle
// =============================================================================

func (s *Store) SetMeta(_ context.Context, key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixMeta+key), []byte(value))
	})
}

func (s *Store) Meta(_ context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixMeta + key))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		value = string(val)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Clear(_ context.Context) error {
	return s.db.DropAll()
}

func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

// =============================================================================
// Helpers
// =============================================================================

func scan(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if err := item.Value(func(val []byte) error {
			return fn(item.Key(), val)
		}); err != nil {
			return err
		}
	}
	return nil
}

func scanKeys(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

func (s *Store) keysWithPrefix(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		keys, err = scanKeys(txn, prefix)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	return keys, nil
}

func (s *Store) deletePrefix(prefix []byte) error {
	keys, err := s.keysWithPrefix(prefix)
	if err != nil {
		return err
	}
	return s.deleteKeys(keys)
}

func (s *Store) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}
