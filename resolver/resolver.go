// Package resolver turns the opaque file references callers hold into
// the keys objects are actually stored under.
package resolver

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/op/go-logging"
	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/metrics"
	"github.com/sheetbridge/persistence/models/service"
	"github.com/sheetbridge/persistence/network"
)

// Resolution is the result of Resolve. Check OK() before using Key.
type Resolution struct {
	Reference string

	// Key is the stored key the reference resolved to.
	Key string

	// Strategy names the strategy that found Key.
	Strategy string

	// Persisted is true if this call recorded a new mapping.
	Persisted bool

	// Error is a *service.StoreError of kind KindNotFound when nothing
	// matched, KindCancelled if the caller gave up, or KindTerminal for
	// an empty reference.
	Error error
}

func (r *Resolution) OK() bool {
	return r.Error == nil
}

// Resolver runs references through an ordered list of strategies until
// one of them finds the stored key.
type Resolver struct {
	Strategies []Strategy
	ListLimit  int

	lister   Lister
	mappings MappingStore
	logger   *logging.Logger
	observer metrics.ResolverObserver
}

// NewResolver returns a Resolver with the default strategies. Param
// mappings may be nil, which disables both the mapping lookup and
// mapping persistence.
func NewResolver(lister Lister, mappings MappingStore, logger *logging.Logger) *Resolver {
	return &Resolver{
		Strategies: DefaultStrategies(),
		ListLimit:  constants.DefaultListLimit,
		lister:     lister,
		mappings:   mappings,
		logger:     logger,
	}
}

func (r *Resolver) SetObserver(observer metrics.ResolverObserver) {
	r.observer = observer
}

// Resolve returns the stored key for reference in bucket. Param typeHint
// is a purpose such as constants.PurposeOrder, or empty.
//
// When a listing strategy finds the key, Resolve records a mapping and
// waits for the write, so the next call for the same reference is a
// single mapping lookup. A failed write is logged and does not fail the
// resolve.
func (r *Resolver) Resolve(ctx context.Context, reference, bucket, typeHint string) *Resolution {
	start := time.Now()
	resolution := &Resolution{Reference: reference}
	if reference == "" || bucket == "" {
		resolution.Error = service.NewStoreError("resolve", bucket, reference, service.KindTerminal,
			"Reference and bucket are required", nil)
		r.observe("none", resolution.Error, start)
		return resolution
	}
	lookup := NewLookup(reference, bucket, typeHint, r.lister, r.mappings)
	lookup.limit = r.ListLimit
	lookup.onError = func(what string, err error) {
		r.logger.Warningf("[resolve] %s for %q in %s failed: %s", what, reference, bucket, network.Describe(err))
	}

	for _, strategy := range r.Strategies {
		if ctx.Err() != nil {
			break
		}
		key, ok := strategy.Fn(ctx, lookup)
		if !ok {
			continue
		}
		resolution.Key = key
		resolution.Strategy = strategy.Name
		if strategy.Persist && r.mappings != nil {
			resolution.Persisted = r.persist(ctx, lookup, key)
		}
		r.logger.Infof("[resolve] %q in %s -> %s (%s)", reference, bucket, key, strategy.Name)
		r.observe(strategy.Name, nil, start)
		return resolution
	}

	if ctx.Err() != nil {
		resolution.Error = service.NewStoreError("resolve", bucket, reference, service.KindCancelled,
			fmt.Sprintf("Resolving %s was cancelled", reference), ctx.Err())
		r.observe("none", resolution.Error, start)
		return resolution
	}
	message := fmt.Sprintf("No stored file matches %s in %s", reference, bucket)
	if err := lookup.ListErr(); err != nil {
		message = fmt.Sprintf("%s (listing failed: %s)", message, network.Describe(err))
	}
	resolution.Error = service.NewStoreError("resolve", bucket, reference, service.KindNotFound, message, lookup.ListErr())
	r.logger.Warning("[resolve] " + message)
	r.observe("none", resolution.Error, start)
	return resolution
}

// RecordMapping stores record so later resolves of record.OriginalID
// take the mapping path. Uploads call this with the key they assigned.
func (r *Resolver) RecordMapping(ctx context.Context, record *service.FileMappingRecord) error {
	if r.mappings == nil {
		return fmt.Errorf("No mapping store is configured")
	}
	return r.mappings.MappingSave(ctx, record)
}

// Mapping returns the recorded mapping for reference, or nil if there
// is none.
func (r *Resolver) Mapping(ctx context.Context, reference string) (*service.FileMappingRecord, error) {
	if r.mappings == nil {
		return nil, nil
	}
	return r.mappings.MappingGet(ctx, reference)
}

func (r *Resolver) persist(ctx context.Context, lookup *Lookup, key string) bool {
	// The most-decoded candidate is the closest to the name the user saw.
	displayName := path.Base(key)
	if n := len(lookup.Candidates); n > 0 {
		displayName = path.Base(lookup.Candidates[n-1])
	}
	record := service.NewFileMappingRecord(lookup.Reference, key, displayName, lookup.Bucket)
	if obj := lookup.Matched(); obj != nil {
		record.Size = obj.Size
		record.MimeType = obj.ContentType
	}
	if err := r.mappings.MappingSave(ctx, record); err != nil {
		r.logger.Warningf("[resolve] could not record mapping %q -> %s: %s", lookup.Reference, key, err.Error())
		return false
	}
	return true
}

func (r *Resolver) observe(strategy string, err error, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveResolve(strategy, err, time.Since(start))
	}
}
