// Package ingest reads raw recommendation rows from the supported sources.
package ingest

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
)

// SourceAdapter produces the raw rows of one source kind. The returned
// sequence is lazy and finite; ranging over it again re-reads the source from
// the start. A non-nil error ends the sequence.
type SourceAdapter interface {
	Kind() domain.SourceKind
	Fetch(ctx context.Context, ref domain.SourceRef) iter.Seq2[domain.SourceRow, error]
}

type Registry interface {
	Register(adapter SourceAdapter) error
	Resolve(kind domain.SourceKind) (SourceAdapter, error)
	Kinds() []domain.SourceKind
}

type registry struct {
	mu       sync.RWMutex
	adapters map[domain.SourceKind]SourceAdapter
}

func NewRegistry(adapters ...SourceAdapter) (Registry, error) {
	r := &registry{adapters: make(map[domain.SourceKind]SourceAdapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *registry) Register(adapter SourceAdapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[adapter.Kind()]; exists {
		return fmt.Errorf("source kind %q is already registered", adapter.Kind())
	}
	r.adapters[adapter.Kind()] = adapter
	return nil
}

func (r *registry) Resolve(kind domain.SourceKind) (SourceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("source kind %q is not registered", kind)
	}
	return adapter, nil
}

func (r *registry) Kinds() []domain.SourceKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.SourceKind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
