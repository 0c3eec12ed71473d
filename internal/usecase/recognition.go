package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/recognizeim/internal/logging"
	"github.com/example/recognizeim/internal/upstream"
	"github.com/example/recognizeim/sdk/recognize"
)

const (
	generationKey = "recognition:generation"
	// buildingKey is set while an index build runs on the service. Results
	// computed then come from the old index and are not cached.
	buildingKey = "recognition:building"
)

// RecognitionUseCase fronts the recognize.im client for the gateway. It
// caches recognition results by content and keeps the cache consistent with
// corpus changes.
type RecognitionUseCase struct {
	client         upstream.Client
	cache          Cache
	cacheTTL       time.Duration
	logger         *zap.Logger
	metrics        *recognitionMetrics
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Recognition is the outcome of a gateway recognition request.
type Recognition struct {
	RequestID string
	Hash      string
	Cached    bool
	Result    *recognize.RecognitionResult
}

// NewRecognitionUseCase constructs a new use case instance.
func NewRecognitionUseCase(client upstream.Client, cache Cache, cacheTTL time.Duration, logger *zap.Logger) *RecognitionUseCase {
	if cache == nil {
		cache = NopCache{}
	}
	return &RecognitionUseCase{
		client:         client,
		cache:          cache,
		cacheTTL:       cacheTTL,
		logger:         logger.Named("recognition_usecase"),
		metrics:        &recognitionMetrics{},
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Recognize returns the recognition result for image, from cache when the
// same bytes were recognized with the same options since the last corpus
// change. Upstream calls are never retried.
func (uc *RecognitionUseCase) Recognize(ctx context.Context, userID string, image []byte, mode recognize.Mode, all bool) (*Recognition, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.recognize", requestID).With(zap.String("user_id", userID))
	uc.metrics.request()

	sum := sha1.Sum(image)
	hash := hex.EncodeToString(sum[:])
	out := &Recognition{RequestID: requestID, Hash: hash}

	cacheKey, cacheable := uc.resultKey(ctx, requestID, hash, mode, all)
	if cacheable {
		cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", cacheKey)
		switch {
		case err == nil:
			if res, err := recognize.ParseRecognitionResult([]byte(cached)); err == nil {
				uc.metrics.cacheHit()
				out.Cached = true
				out.Result = res
				return out, nil
			} else {
				opLogger.Warn("failed to decode cached result", zap.Error(err))
			}
		case !errors.Is(err, redis.Nil):
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	started := time.Now()
	res, err := uc.client.RecognizeBytes(ctx, image, mode, all)
	if err != nil {
		if errors.Is(err, recognize.ErrImageLimits) {
			uc.metrics.rejected()
			opLogger.Info("image rejected by limits", zap.Error(err))
			return nil, err
		}
		uc.metrics.upstream(time.Since(started), true)
		opLogger.Error("recognition failed", zap.Error(err))
		return nil, err
	}
	uc.metrics.upstream(time.Since(started), false)
	out.Result = res

	if cacheable {
		serialized, err := json.Marshal(res)
		if err != nil {
			opLogger.Error("failed to serialize recognition result", zap.Error(err))
			return out, nil
		}
		if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
			return uc.cache.Set(ctx, cacheKey, string(serialized), uc.cacheTTL)
		}); err != nil {
			opLogger.Warn("failed to cache recognition result", zap.Error(err))
		}
	}
	return out, nil
}

// InsertImage adds an image to the corpus.
func (uc *RecognitionUseCase) InsertImage(ctx context.Context, imageID, imageName string, image []byte) (recognize.Response, error) {
	return uc.mutate(ctx, "usecase.insert_image", func() (recognize.Response, error) {
		return uc.client.ImageInsertBytes(ctx, imageID, imageName, image)
	})
}

// DeleteImage removes one image, or all of them when imageID is empty.
func (uc *RecognitionUseCase) DeleteImage(ctx context.Context, imageID string) (recognize.Response, error) {
	return uc.mutate(ctx, "usecase.delete_image", func() (recognize.Response, error) {
		return uc.client.ImageDelete(ctx, imageID)
	})
}

// UpdateImage changes the id and name of a stored image.
func (uc *RecognitionUseCase) UpdateImage(ctx context.Context, oldID, newID, newName string) (recognize.Response, error) {
	return uc.mutate(ctx, "usecase.update_image", func() (recognize.Response, error) {
		return uc.client.ImageUpdate(ctx, oldID, newID, newName)
	})
}

// BuildIndex starts applying pending corpus changes. The build finishes
// asynchronously; caching stays off until IndexStatus reports completion.
func (uc *RecognitionUseCase) BuildIndex(ctx context.Context) (recognize.Response, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.build_index", requestID)

	resp, err := uc.client.IndexBuild(ctx)
	if err != nil {
		opLogger.Error("upstream call failed", zap.Error(err))
		return nil, err
	}

	// The marker goes in before the generation changes, so a reader that
	// sees the new generation also sees the marker.
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.building", func() error {
		return uc.cache.Set(ctx, buildingKey, requestID, 0)
	}); err != nil {
		opLogger.Error("failed to mark index build", zap.Error(err))
	}
	uc.rotateGeneration(ctx, requestID, opLogger)
	return resp, nil
}

// ChangeMode switches the account recognition mode.
func (uc *RecognitionUseCase) ChangeMode(ctx context.Context, mode recognize.Mode) (recognize.Response, error) {
	return uc.mutate(ctx, "usecase.change_mode", func() (recognize.Response, error) {
		return uc.client.ModeChange(ctx, mode)
	})
}

// IndexStatus reports build progress. The first report of a finished build
// after BuildIndex rotates the cache generation and re-enables caching.
func (uc *RecognitionUseCase) IndexStatus(ctx context.Context) (recognize.Response, error) {
	resp, err := uc.query(ctx, "usecase.index_status", uc.client.IndexStatus)
	if err != nil || !indexBuildComplete(resp) {
		return resp, err
	}

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.index_status", requestID)
	if _, err := uc.withRedisGet(ctx, requestID, "cache.get.building", buildingKey); err != nil {
		if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read index build marker", zap.Error(err))
		}
		return resp, nil
	}

	// Rotate before clearing the marker: a reader that misses the marker
	// already holds a retired generation.
	uc.rotateGeneration(ctx, requestID, opLogger)
	if err := uc.withRedisRetry(ctx, requestID, "cache.delete.building", func() error {
		return uc.cache.Delete(ctx, buildingKey)
	}); err != nil {
		opLogger.Error("failed to clear index build marker", zap.Error(err))
	}
	opLogger.Info("index build completed, cache re-enabled")
	return resp, nil
}

func (uc *RecognitionUseCase) UserLimits(ctx context.Context) (recognize.Response, error) {
	return uc.query(ctx, "usecase.user_limits", uc.client.UserLimits)
}

func (uc *RecognitionUseCase) GetMode(ctx context.Context) (recognize.Response, error) {
	return uc.query(ctx, "usecase.get_mode", uc.client.ModeGet)
}

// RegisterCallback sets the URL notified when an index build completes.
func (uc *RecognitionUseCase) RegisterCallback(ctx context.Context, url string) (recognize.Response, error) {
	return uc.query(ctx, "usecase.register_callback", func(ctx context.Context) (recognize.Response, error) {
		return uc.client.Callback(ctx, url)
	})
}

func (uc *RecognitionUseCase) query(ctx context.Context, operation string, fn func(context.Context) (recognize.Response, error)) (recognize.Response, error) {
	resp, err := fn(ctx)
	if err != nil {
		logging.WithOperation(uc.logger, operation, "").Error("upstream call failed", zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// mutate runs a corpus-changing call and, on success, rotates the cache
// generation so results computed against the old corpus are no longer served.
func (uc *RecognitionUseCase) mutate(ctx context.Context, operation string, fn func() (recognize.Response, error)) (recognize.Response, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, operation, requestID)

	resp, err := fn()
	if err != nil {
		opLogger.Error("upstream call failed", zap.Error(err))
		return nil, err
	}
	uc.rotateGeneration(ctx, requestID, opLogger)
	return resp, nil
}

func (uc *RecognitionUseCase) rotateGeneration(ctx context.Context, requestID string, opLogger *zap.Logger) {
	generation := uuid.NewString()
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.generation", func() error {
		return uc.cache.Set(ctx, generationKey, generation, 0)
	}); err != nil {
		opLogger.Error("failed to rotate cache generation", zap.Error(err))
	}
}

// indexBuildComplete reads an indexStatus reply. The service reports either a
// needUpdate flag or a progress percentage.
func indexBuildComplete(resp recognize.Response) bool {
	if v, ok := resp["needUpdate"]; ok {
		return v == "false" || v == "0" || v == ""
	}
	if v, ok := resp["progress"]; ok {
		p, err := strconv.ParseFloat(v, 64)
		return err == nil && p >= 100
	}
	return false
}

// resultKey derives the cache key for a recognition. It reports false, and
// the cache is bypassed, while an index build runs or when the cache state
// cannot be read. The generation is read before the build marker.
func (uc *RecognitionUseCase) resultKey(ctx context.Context, requestID, hash string, mode recognize.Mode, all bool) (string, bool) {
	opLogger := logging.WithOperation(uc.logger, "usecase.recognize", requestID)

	generation, err := uc.withRedisGet(ctx, requestID, "cache.get.generation", generationKey)
	switch {
	case errors.Is(err, redis.Nil):
		generation = "0"
	case err != nil:
		opLogger.Warn("cache generation unavailable, bypassing cache", zap.Error(err))
		return "", false
	}

	_, err = uc.withRedisGet(ctx, requestID, "cache.get.building", buildingKey)
	switch {
	case err == nil:
		opLogger.Debug("index build in progress, bypassing cache")
		return "", false
	case !errors.Is(err, redis.Nil):
		opLogger.Warn("index build marker unavailable, bypassing cache", zap.Error(err))
		return "", false
	}
	return fmt.Sprintf("recognition:%s:%s:%t:%s", generation, mode, all, hash), true
}

func (uc *RecognitionUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	backoff := uc.initialBackoff
	for attempt := 1; ; attempt++ {
		err := fn()
		switch {
		case err == nil:
			if attempt > 1 {
				opLogger.Info("redis operation recovered", zap.Int("attempts", attempt))
			}
			return nil
		case errors.Is(err, redis.Nil):
			return err
		case attempt >= uc.retryAttempts || !isTransientError(err):
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempts", attempt))
			return fmt.Errorf("%s: %w", operation, err)
		}

		opLogger.Warn("retrying transient redis error", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		case <-timer.C:
		}
		backoff = min(2*backoff, uc.maxBackoff)
	}
}

func (uc *RecognitionUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var value string
	err := uc.withRedisRetry(ctx, requestID, operation, func() (err error) {
		value, err = uc.cache.Get(ctx, cacheKey)
		return err
	})
	return value, err
}

// isTransientError reports deadline and timeout failures that a retry may
// clear.
func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
