package keyValue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Value struct {
	value   string
	expires time.Time
}

var mutex sync.RWMutex
var hashmap = make(map[string]Value)

var sugar *zap.SugaredLogger
var redisClient *redis.Client
var redisCtx = context.Background()
var selfContained = true
var loads singleflight.Group

func Setup(_sugar *zap.SugaredLogger, _redisClient *redis.Client, _selfContained bool) {
	sugar = _sugar
	redisClient = _redisClient
	selfContained = _selfContained

	if selfContained {
		go checkForLocalExpiredKeys()
	}
}

func checkForLocalExpiredKeys() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		mutex.Lock()
		for key, v := range hashmap {
			if v.expires.Before(time.Now()) {
				delete(hashmap, key)
			}
		}
		mutex.Unlock()
	}
}

func Get(key string) (string, error) {
	if selfContained {
		mutex.RLock()
		defer mutex.RUnlock()

		return hashmap[key].value, nil
	}

	value, err := redisClient.Get(redisCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, err
}

func GetDel(key string) (string, error) {
	if selfContained {
		mutex.Lock()
		defer mutex.Unlock()

		value := hashmap[key].value
		delete(hashmap, key)

		return value, nil
	}

	value, err := redisClient.GetDel(redisCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, err
}

func Set(key string, value string, expires time.Duration) error {
	if selfContained {
		mutex.Lock()
		defer mutex.Unlock()

		hashmap[key] = Value{value, time.Now().Add(expires)}

		return nil
	}

	_, err := redisClient.Set(redisCtx, key, value, expires).Result()
	return err
}

func Delete(keys ...string) error {
	if selfContained {
		mutex.Lock()
		defer mutex.Unlock()

		for _, key := range keys {
			delete(hashmap, key)
		}
		return nil
	}

	return redisClient.Del(redisCtx, keys...).Err()
}

// GetOrLoad returns the cached value for key, loading and caching it on a
// miss. Concurrent misses for the same key are collapsed to a single load.
func GetOrLoad(key string, expires time.Duration, load func() (string, error)) (string, error) {
	value, err := Get(key)
	if err != nil {
		return "", err
	}
	if value != "" {
		return value, nil
	}

	result, err, _ := loads.Do(key, func() (any, error) {
		loaded, err := load()
		if err != nil {
			return "", err
		}
		if err := Set(key, loaded, expires); err != nil {
			return "", err
		}
		return loaded, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// UserCacheKey is the cache key holding a user's account snapshot.
func UserCacheKey(userID int64) string {
	return fmt.Sprintf("account:%d", userID)
}

// RemoveUserCacheByUserIDs drops the cached account snapshots for the given
// users. Must be called after any mutation to security relevant account or
// user fields, before the response goes out.
func RemoveUserCacheByUserIDs(userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		keys = append(keys, UserCacheKey(userID))
	}

	sugar.Debugf("Invalidating account cache for user IDs %v", userIDs)
	return Delete(keys...)
}
