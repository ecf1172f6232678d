package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/pos_backend/config"
)

const lockTTL = 30 * time.Second

var ErrLockNotObtained = errors.New("could not obtain lock")

// ObtainLock takes the redis lock lockType:id and returns its release func.
// Without Redis it returns a no-op release: the row lock taken inside the
// transaction is what actually serialises writers.
func ObtainLock(ctx context.Context, lockType string, id int, moduleName string, functionName string) (func(), error) {
	noop := func() {}
	locker := config.GetRedisLock()
	if locker == nil {
		return noop, nil
	}
	logger := config.GetLogger()

	lockKey := fmt.Sprintf("%s:%d", lockType, id)
	lock, err := locker.Obtain(ctx, lockKey, lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock", lockKey, err)
		return noop, fmt.Errorf("%w: %s", ErrLockNotObtained, lockKey)
	} else if err != nil {
		// Redis trouble: degrade to the database lock.
		config.LogWarn(logger, moduleName, functionName, "Error obtaining lock", lockKey, err)
		return noop, nil
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
