// Package memory provides an in-process persistence service. It is the
// default backend for local runs and the one the tests are built on.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"finanzas/internal/persistence"
)

type node struct {
	revision int64
	children map[string]json.RawMessage
}

type Service struct {
	mu    sync.Mutex
	roots map[string]*node
	hub   *persistence.Hub
}

func New() *Service {
	return &Service{
		roots: make(map[string]*node),
		hub:   persistence.NewHub(),
	}
}

var _ persistence.Service = (*Service)(nil)

func (s *Service) NewKey() string {
	return persistence.NewKey()
}

func (s *Service) Set(ctx context.Context, path string, value json.RawMessage) error {
	return s.Update(ctx, map[string]json.RawMessage{path: value})
}

func (s *Service) Remove(ctx context.Context, path string) error {
	return s.Update(ctx, map[string]json.RawMessage{path: persistence.Null()})
}

// Update applies all writes to copies of the touched roots and swaps them in
// only when every write succeeded.
func (s *Service) Update(ctx context.Context, values map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	writes, err := persistence.Plan(values)
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]map[string]json.RawMessage)
	for _, w := range writes {
		children, ok := staged[w.Path.Root]
		if !ok {
			children = make(map[string]json.RawMessage)
			if n := s.roots[w.Path.Root]; n != nil {
				maps.Copy(children, n.children)
			}
			staged[w.Path.Root] = children
		}
		body, err := persistence.Apply(children[w.Path.Key], w)
		if err != nil {
			return fmt.Errorf("update %s: %w", w.Path, err)
		}
		if body == nil {
			delete(children, w.Path.Key)
		} else {
			children[w.Path.Key] = body
		}
	}

	for root, children := range staged {
		n := s.roots[root]
		if n == nil {
			n = &node{}
			s.roots[root] = n
		}
		n.children = children
		n.revision++
		s.hub.Publish(s.snapshotLocked(root))
	}
	return nil
}

func (s *Service) Subscribe(root string, fn func(persistence.Snapshot)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub.Add(root, fn, s.snapshotLocked(root))
}

// Snapshot returns the current value of root.
func (s *Service) Snapshot(root string) persistence.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(root)
}

// Load is Snapshot for callers that read through a context.
func (s *Service) Load(ctx context.Context, root string) (persistence.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Snapshot{}, err
	}
	return s.Snapshot(root), nil
}

// Close stops every subscription.
func (s *Service) Close() error {
	s.hub.Close()
	return nil
}

func (s *Service) snapshotLocked(root string) persistence.Snapshot {
	snap := persistence.Snapshot{Root: root, Children: map[string]json.RawMessage{}}
	if n := s.roots[root]; n != nil {
		snap.Revision = n.revision
		maps.Copy(snap.Children, n.children)
	}
	return snap
}
