package resolver

import (
	"context"
	"strings"

	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/models/service"
	"github.com/sheetbridge/persistence/network"
)

// Lister lists objects in a bucket, newest first.
// network.RemoteObjectStore implements this.
type Lister interface {
	List(ctx context.Context, bucket, prefix string, limit int) *network.ListResponse
}

// StrategyFunc returns the stored key for the lookup, or false if this
// strategy cannot find it.
type StrategyFunc func(ctx context.Context, lookup *Lookup) (string, bool)

// Strategy is one step of the resolution chain. If Persist is true, a
// match is recorded in the mapping store so the next resolve of the
// same reference takes the mapping path.
type Strategy struct {
	Name    string
	Persist bool
	Fn      StrategyFunc
}

// DefaultStrategies returns the resolution chain in order: canonical
// fast path, persisted mapping, then the listing heuristics.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: constants.StrategyCanonical, Fn: Canonical},
		{Name: constants.StrategyMapping, Fn: Mapped},
		{Name: constants.StrategyNamespacedExact, Persist: true, Fn: NamespacedExact},
		{Name: constants.StrategyLegacyExact, Persist: true, Fn: LegacyExact},
		{Name: constants.StrategyTypePrefix, Persist: true, Fn: NewestWithTypePrefix},
	}
}

// Lookup carries the state of one resolve call through the strategies.
// The bucket listing is fetched at most once per lookup.
type Lookup struct {
	Bucket     string
	Candidates []string
	Reference  string
	TypeHint   string

	lister   Lister
	limit    int
	mappings MappingStore
	onError  func(what string, err error)

	listed  bool
	listErr error
	objects []*service.StoredObject
	matched *service.StoredObject
}

// NewLookup returns a Lookup for reference. Param lister or mappings may
// be nil, in which case the strategies that need them find nothing.
func NewLookup(reference, bucket, typeHint string, lister Lister, mappings MappingStore) *Lookup {
	return &Lookup{
		Bucket:     bucket,
		Candidates: Candidates(reference),
		Reference:  reference,
		TypeHint:   typeHint,
		lister:     lister,
		limit:      constants.DefaultListLimit,
		mappings:   mappings,
	}
}

// Listing returns the bucket's objects, newest first, listing the bucket
// on first use only.
func (l *Lookup) Listing(ctx context.Context) ([]*service.StoredObject, error) {
	if l.listed {
		return l.objects, l.listErr
	}
	l.listed = true
	if l.lister == nil {
		return nil, nil
	}
	resp := l.lister.List(ctx, l.Bucket, "", l.limit)
	l.objects, l.listErr = resp.Objects, resp.Error
	if l.listErr != nil {
		l.reportError("listing", l.listErr)
	}
	return l.objects, l.listErr
}

// ListErr returns the listing error, if the bucket was listed and the
// listing failed.
func (l *Lookup) ListErr() error {
	return l.listErr
}

// Matched returns the listed object the last listing strategy matched.
func (l *Lookup) Matched() *service.StoredObject {
	return l.matched
}

func (l *Lookup) reportError(what string, err error) {
	if l.onError != nil {
		l.onError(what, err)
	}
}

// Canonical matches references that already have the shape of a stored
// key. It does no I/O.
func Canonical(ctx context.Context, lookup *Lookup) (string, bool) {
	if service.IsCanonicalKey(lookup.Reference) {
		return lookup.Reference, true
	}
	return "", false
}

// Mapped looks up a persisted mapping for the reference as given, then
// for each decoded candidate.
func Mapped(ctx context.Context, lookup *Lookup) (string, bool) {
	if lookup.mappings == nil {
		return "", false
	}
	for _, candidate := range lookup.Candidates {
		record, err := lookup.mappings.MappingGet(ctx, candidate)
		if err != nil {
			lookup.reportError("mapping lookup", err)
			continue
		}
		if record != nil && record.ActualKey != "" {
			return record.ActualKey, true
		}
	}
	return "", false
}

// NamespacedExact matches a candidate stored under the namespaced key
// prefix.
func NamespacedExact(ctx context.Context, lookup *Lookup) (string, bool) {
	return lookup.exact(ctx, func(candidate string) string {
		if strings.HasPrefix(candidate, constants.NamespacedKeyPrefix) {
			return candidate
		}
		return constants.NamespacedKeyPrefix + candidate
	})
}

// LegacyExact matches a candidate stored under the flat legacy layout.
func LegacyExact(ctx context.Context, lookup *Lookup) (string, bool) {
	return lookup.exact(ctx, func(candidate string) string {
		return constants.LegacyKeyPrefix + strings.TrimPrefix(candidate, constants.NamespacedKeyPrefix)
	})
}

// NewestWithTypePrefix returns the most recently created object whose
// name starts with the prefix of the lookup's type hint. Two uploads of
// the same type close together can make this pick the wrong one; the
// mapping recorded on upload is what keeps that rare.
func NewestWithTypePrefix(ctx context.Context, lookup *Lookup) (string, bool) {
	prefix := constants.TypePrefixFor(lookup.TypeHint)
	if prefix == "" {
		return "", false
	}
	objects, _ := lookup.Listing(ctx)
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, constants.NamespacedKeyPrefix)
		if strings.HasPrefix(name, prefix) {
			lookup.matched = obj
			return obj.Key, true
		}
	}
	return "", false
}

func (l *Lookup) exact(ctx context.Context, keyFor func(string) string) (string, bool) {
	objects, _ := l.Listing(ctx)
	if len(objects) == 0 {
		return "", false
	}
	byKey := make(map[string]*service.StoredObject, len(objects))
	for _, obj := range objects {
		byKey[obj.Key] = obj
	}
	for _, candidate := range l.Candidates {
		key := keyFor(candidate)
		if obj, ok := byKey[key]; ok {
			l.matched = obj
			return key, true
		}
	}
	return "", false
}
