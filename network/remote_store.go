package network

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/op/go-logging"
	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/metrics"
	"github.com/sheetbridge/persistence/models/service"
)

// RemoteObjectStore puts, gets, deletes and lists blobs in named
// buckets of an unreliable backing service. Transient failures are
// retried with exponential backoff, jitter and an extra circuit delay
// after repeated failures. Reads fall back to the object's public URL
// when everything else fails.
//
// Each call keeps its own retry state, so concurrent calls never
// affect each other's backoff.
type RemoteObjectStore struct {
	// PutPolicy, GetPolicy and ListPolicy bound the attempts and
	// per-attempt timeout of each operation.
	PutPolicy  RetryPolicy
	GetPolicy  RetryPolicy
	ListPolicy RetryPolicy

	// DeleteTimeout bounds the single delete attempt.
	DeleteTimeout time.Duration

	// NamespacePrefix is the path prefix under which current keys are
	// stored. Reads also try the key with and without it.
	NamespacePrefix string

	client   BlobClient
	public   *PublicFetcher
	logger   *logging.Logger
	observer metrics.StorageObserver
	sleep    Sleeper
	jitter   func() time.Duration
}

// NewRemoteObjectStore returns a store with the default retry policies.
// Param public may be nil, which disables the public URL fallback.
func NewRemoteObjectStore(client BlobClient, public *PublicFetcher, logger *logging.Logger) *RemoteObjectStore {
	return &RemoteObjectStore{
		PutPolicy:       RetryPolicy{MaxAttempts: constants.DefaultPutAttempts, Timeout: constants.DefaultPutTimeout},
		GetPolicy:       RetryPolicy{MaxAttempts: constants.DefaultGetAttempts, Timeout: constants.DefaultGetTimeout},
		ListPolicy:      RetryPolicy{MaxAttempts: constants.DefaultListAttempts, Timeout: constants.DefaultGetTimeout},
		DeleteTimeout:   constants.DefaultDeleteTimeout,
		NamespacePrefix: constants.NamespacedKeyPrefix,
		client:          client,
		public:          public,
		logger:          logger,
		sleep:           SleepContext,
		jitter:          RandomJitter,
	}
}

// SetObserver attaches a metrics observer.
func (s *RemoteObjectStore) SetObserver(observer metrics.StorageObserver) {
	s.observer = observer
}

// SetSleeper replaces the function used to wait between attempts.
// Tests use this to record delays instead of waiting.
func (s *RemoteObjectStore) SetSleeper(sleeper Sleeper) {
	s.sleep = sleeper
}

// SetJitter replaces the source of random jitter added to each backoff.
func (s *RemoteObjectStore) SetJitter(jitter func() time.Duration) {
	s.jitter = jitter
}

// Put stores data under bucket/key with the default attempt budget.
func (s *RemoteObjectStore) Put(ctx context.Context, data []byte, key, bucket, contentType string) *StoreResponse {
	return s.PutWithAttempts(ctx, data, key, bucket, contentType, s.PutPolicy.MaxAttempts)
}

// PutWithAttempts stores data under bucket/key, making at most
// maxAttempts attempts.
func (s *RemoteObjectStore) PutWithAttempts(ctx context.Context, data []byte, key, bucket, contentType string, maxAttempts int) *StoreResponse {
	start := time.Now()
	resp := &StoreResponse{Bucket: bucket, Key: key}
	if err := validateLocation(bucket, key); err != nil {
		resp.Error = service.NewStoreError("put", bucket, key, service.KindTerminal, err.Error(), nil)
		return resp
	}
	if contentType == "" {
		contentType = constants.MimeTypeOctetStream
	}
	opID := shortID()
	s.logger.Infof("[put %s] %s/%s (%d bytes)", opID, bucket, key, len(data))

	policy := RetryPolicy{MaxAttempts: maxAttempts, Timeout: s.PutPolicy.Timeout}
	_, attempts, err := retryCall(ctx, s, opID, "put", bucket, key, policy, func(attemptCtx context.Context) (struct{}, error) {
		return struct{}{}, s.client.PutObject(attemptCtx, bucket, key, data, contentType)
	})
	resp.Attempts = attempts
	resp.Error = err
	if err != nil {
		s.logger.Errorf("[put %s] %s", opID, detailOf(err))
	} else {
		s.logger.Infof("[put %s] stored %s/%s after %d attempt(s)", opID, bucket, key, attempts)
	}
	s.observe("put", bucket, int64(len(data)), attempts, err, time.Since(start))
	return resp
}

// Get reads bucket/key with the default attempt budget.
func (s *RemoteObjectStore) Get(ctx context.Context, key, bucket string) *StoreResponse {
	return s.GetWithAttempts(ctx, key, bucket, s.GetPolicy.MaxAttempts)
}

// GetWithAttempts reads bucket/key, making at most maxAttempts
// attempts. Each attempt tries every key candidate (see KeyCandidates).
// If the attempts fail for any reason other than cancellation, this
// tries the public URL of each candidate in turn before giving up.
func (s *RemoteObjectStore) GetWithAttempts(ctx context.Context, key, bucket string, maxAttempts int) *StoreResponse {
	start := time.Now()
	resp := &StoreResponse{Bucket: bucket, Key: key}
	if err := validateLocation(bucket, key); err != nil {
		resp.Error = service.NewStoreError("get", bucket, key, service.KindTerminal, err.Error(), nil)
		return resp
	}
	opID := shortID()
	candidates := s.KeyCandidates(key)
	s.logger.Infof("[get %s] %s/%s (candidates: %s)", opID, bucket, key, strings.Join(candidates, ", "))

	policy := RetryPolicy{MaxAttempts: maxAttempts, Timeout: s.GetPolicy.Timeout}
	obj, attempts, err := retryCall(ctx, s, opID, "get", bucket, key, policy, func(attemptCtx context.Context) (*service.StoredObject, error) {
		return s.getFirstCandidate(attemptCtx, bucket, key, candidates)
	})
	resp.Attempts = attempts
	if err == nil {
		resp.Key = obj.Key
		resp.Object = obj
		s.logger.Infof("[get %s] read %s/%s (%d bytes) after %d attempt(s)", opID, bucket, obj.Key, obj.Size, attempts)
		s.observe("get", bucket, obj.Size, attempts, nil, time.Since(start))
		return resp
	}
	if service.IsCancelled(err) {
		resp.Error = err
		s.logger.Warningf("[get %s] %s", opID, detailOf(err))
		s.observe("get", bucket, 0, attempts, err, time.Since(start))
		return resp
	}

	s.logger.Warningf("[get %s] %s; trying public URL", opID, detailOf(err))
	var fallbackErr error
	for _, candidate := range candidates {
		obj, fallbackErr = s.public.Fetch(ctx, bucket, candidate)
		if fallbackErr == nil {
			if s.observer != nil {
				s.observer.ObserveFallback("get", nil)
			}
			resp.Key = candidate
			resp.Object = obj
			resp.UsedFallback = true
			s.logger.Infof("[get %s] read %s/%s from public URL (%d bytes)", opID, bucket, candidate, obj.Size)
			s.observe("get", bucket, obj.Size, attempts, nil, time.Since(start))
			return resp
		}
		if ctx.Err() != nil {
			break
		}
	}
	if s.observer != nil {
		s.observer.ObserveFallback("get", fallbackErr)
	}
	resp.Error = aggregateFallbackError(err, fallbackErr, attempts)
	s.logger.Errorf("[get %s] %s", opID, detailOf(resp.Error))
	s.observe("get", bucket, 0, attempts, resp.Error, time.Since(start))
	return resp
}

// Delete removes bucket/key. This is best-effort: it makes one attempt
// and only logs a failure. The response still reports it.
func (s *RemoteObjectStore) Delete(ctx context.Context, key, bucket string) *StoreResponse {
	start := time.Now()
	resp := &StoreResponse{Bucket: bucket, Key: key, Attempts: 1}
	if err := validateLocation(bucket, key); err != nil {
		resp.Attempts = 0
		resp.Error = service.NewStoreError("delete", bucket, key, service.KindTerminal, err.Error(), nil)
		s.logger.Warningf("[delete] %s", err.Error())
		return resp
	}
	_, err := raceAttempt(ctx, s.DeleteTimeout, func(attemptCtx context.Context) (struct{}, error) {
		return struct{}{}, s.client.RemoveObject(attemptCtx, bucket, key)
	})
	if err != nil {
		kind := Classify(ctx, err)
		storeErr := service.NewStoreError("delete", bucket, key, kind,
			fmt.Sprintf("Could not delete %s/%s: %s", bucket, key, Describe(err)), err)
		storeErr.Attempts = 1
		resp.Error = storeErr
		s.logger.Warningf("[delete] %s", storeErr.Detail())
	} else {
		s.logger.Infof("[delete] removed %s/%s", bucket, key)
	}
	s.observe("delete", bucket, 0, 1, err, time.Since(start))
	return resp
}

// List returns up to limit objects in bucket whose keys start with
// prefix, newest first. A limit of zero or less means no limit.
func (s *RemoteObjectStore) List(ctx context.Context, bucket, prefix string, limit int) *ListResponse {
	start := time.Now()
	resp := &ListResponse{Bucket: bucket, Prefix: prefix}
	if bucket == "" {
		resp.Error = service.NewStoreError("list", bucket, prefix, service.KindTerminal, "Bucket name is required", nil)
		return resp
	}
	opID := shortID()
	objects, attempts, err := retryCall(ctx, s, opID, "list", bucket, prefix, s.ListPolicy, func(attemptCtx context.Context) ([]*service.StoredObject, error) {
		return s.client.ListObjects(attemptCtx, bucket, prefix)
	})
	resp.Attempts = attempts
	if err != nil {
		resp.Error = err
		s.logger.Errorf("[list %s] %s", opID, detailOf(err))
		s.observe("list", bucket, 0, attempts, err, time.Since(start))
		return resp
	}
	service.SortNewestFirst(objects)
	if limit > 0 && len(objects) > limit {
		objects = objects[:limit]
	}
	resp.Objects = objects
	s.logger.Debugf("[list %s] %s/%s* returned %d objects", opID, bucket, prefix, len(objects))
	s.observe("list", bucket, 0, attempts, nil, time.Since(start))
	return resp
}

// KeyCandidates returns the keys a read tries for key, in order: the
// key as given, then the key under the namespaced prefix or, if it
// already has that prefix, the bare key of the legacy flat layout.
func (s *RemoteObjectStore) KeyCandidates(key string) []string {
	candidates := []string{key}
	if s.NamespacePrefix == "" {
		return candidates
	}
	if strings.HasPrefix(key, s.NamespacePrefix) {
		flat := strings.TrimPrefix(key, s.NamespacePrefix)
		if flat != "" {
			candidates = append(candidates, flat)
		}
	} else {
		candidates = append(candidates, s.NamespacePrefix+key)
	}
	return candidates
}

// getFirstCandidate returns the first candidate that exists. A missing
// candidate moves on to the next one; any other error ends the attempt.
func (s *RemoteObjectStore) getFirstCandidate(ctx context.Context, bucket, key string, candidates []string) (*service.StoredObject, error) {
	var lastNotFound error
	for _, candidate := range candidates {
		obj, err := s.client.GetObject(ctx, bucket, candidate)
		if err == nil {
			return obj, nil
		}
		if !IsObjectNotFound(err) {
			return nil, err
		}
		lastNotFound = err
	}
	return nil, service.NewStoreError("get", bucket, key, service.KindNotFound,
		fmt.Sprintf("No object found in %s under %s", bucket, strings.Join(candidates, " or ")), lastNotFound)
}

func (s *RemoteObjectStore) observe(op, bucket string, bytes int64, attempts int, err error, dur time.Duration) {
	if s.observer != nil {
		s.observer.Observe(op, bucket, bytes, attempts, err, dur)
	}
}

// retryCall runs fn until it succeeds, fails with anything other than a
// transient error, or runs out of attempts. Attempts run strictly one
// after another, waiting on NewStoreBackOff in between. It returns the
// number of attempts made. Errors are always *service.StoreError.
func retryCall[T any](ctx context.Context, s *RemoteObjectStore, opID, op, bucket, key string, policy RetryPolicy, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	attempts := 0
	var lastErr error
	var final *service.StoreError
	timer := &sleeperTimer{ctx: ctx, sleep: s.sleep}
	schedule := backoff.WithContext(
		backoff.WithMaxRetries(NewStoreBackOff(s.jitter), uint64(maxAttempts-1)), ctx)

	attempt := func() (T, error) {
		if err := ctx.Err(); err != nil {
			final = cancelledError(op, bucket, key, attempts, err)
			return zero, backoff.Permanent(final)
		}
		if timer.err != nil {
			final = cancelledError(op, bucket, key, attempts, timer.err)
			return zero, backoff.Permanent(final)
		}
		attempts++
		value, err := raceAttempt(ctx, policy.Timeout, fn)
		if err == nil {
			return value, nil
		}
		kind := Classify(ctx, err)
		if kind == service.KindCancelled {
			final = cancelledError(op, bucket, key, attempts, err)
			return zero, backoff.Permanent(final)
		}
		if kind != service.KindTransient {
			final = service.NewStoreError(op, bucket, key, kind,
				fmt.Sprintf("%s %s/%s failed: %s", op, bucket, key, Describe(err)), err)
			final.Attempts = attempts
			return zero, backoff.Permanent(final)
		}
		lastErr = err
		return zero, err
	}
	notify := func(err error, delay time.Duration) {
		if circuit := CircuitDelay(attempts); circuit > 0 {
			s.logger.Warningf("[%s %s] %d consecutive failures, adding circuit delay of %s", op, opID, attempts, circuit)
		}
		s.logger.Warningf("[%s %s] attempt %d/%d failed (%s), retrying in %s",
			op, opID, attempts, maxAttempts, Describe(err), delay)
		if s.observer != nil {
			s.observer.ObserveRetry(op, service.KindTransient.String(), delay)
		}
	}

	value, err := backoff.RetryNotifyWithTimerAndData(attempt, schedule, notify, timer)
	if err == nil {
		return value, attempts, nil
	}
	if final != nil {
		return zero, attempts, final
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, attempts, cancelledError(op, bucket, key, attempts, ctxErr)
	}
	storeErr := service.NewStoreError(op, bucket, key, service.KindTransient,
		fmt.Sprintf("%s %s/%s failed after %d attempts: %s", op, bucket, key, attempts, Describe(lastErr)), lastErr)
	storeErr.Attempts = attempts
	return zero, attempts, storeErr
}

func cancelledError(op, bucket, key string, attempts int, err error) *service.StoreError {
	storeErr := service.NewStoreError(op, bucket, key, service.KindCancelled,
		fmt.Sprintf("%s %s/%s was cancelled after %d attempt(s)", op, bucket, key, attempts), err)
	storeErr.Attempts = attempts
	return storeErr
}

// aggregateFallbackError combines the error from the retry loop with the
// public URL failure into one message a person can read.
func aggregateFallbackError(err, fallbackErr error, attempts int) error {
	storeErr, ok := err.(*service.StoreError)
	if !ok {
		storeErr = service.NewStoreError("get", "", "", service.KindTerminal, Describe(err), err)
	}
	aggregated := service.NewStoreError(storeErr.Op, storeErr.Bucket, storeErr.Key, storeErr.Kind,
		fmt.Sprintf("%s; public URL fallback failed: %s", storeErr.Message, Describe(fallbackErr)), err)
	aggregated.Attempts = attempts
	return aggregated
}

func validateLocation(bucket, key string) error {
	if bucket == "" {
		return fmt.Errorf("Bucket name is required")
	}
	if key == "" {
		return fmt.Errorf("Object key is required")
	}
	return nil
}

func detailOf(err error) string {
	if storeErr, ok := err.(*service.StoreError); ok {
		return storeErr.Detail()
	}
	return err.Error()
}

func shortID() string {
	return strings.Split(uuid.NewString(), "-")[0]
}
