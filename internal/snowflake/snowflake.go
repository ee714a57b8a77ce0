package snowflake

import (
	"fmt"
	"sync"
	"time"
)

// Layout: 42 bits of unix milliseconds, 10 bits of worker id, 12 bits of
// per-millisecond increment. Every id this server hands out (users, messages,
// sessions) comes from here, so creation time is recoverable from the id.
const (
	timestampBits = 42
	workerBits    = 10
	incrementBits = 64 - timestampBits - workerBits

	timestampShift = 64 - timestampBits
	workerShift    = timestampShift - workerBits

	maxWorkerID  = 1<<workerBits - 1
	maxIncrement = 1<<incrementBits - 1
)

type Snowflake struct {
	Timestamp int64
	WorkerID  int64
	Increment int64
}

var (
	mu            sync.Mutex
	lastTimestamp int64
	lastIncrement int64

	workerID    int64
	hasWorkerID bool
)

func Setup(id int64) error {
	if id > maxWorkerID {
		return fmt.Errorf("worker ID value exceeds maximum value of [%d]", maxWorkerID)
	}
	if hasWorkerID {
		return fmt.Errorf("worker ID for snowflake generator has been already set")
	}
	workerID = id
	hasWorkerID = true
	return nil
}

func Generate() (int64, error) {
	mu.Lock()
	defer mu.Unlock()

	timestamp := time.Now().UnixMilli()
	if timestamp == lastTimestamp {
		lastIncrement++
		if lastIncrement > maxIncrement {
			return 0, fmt.Errorf("increment overflow after increment reached %d", lastIncrement)
		}
	} else {
		lastIncrement = 0
		lastTimestamp = timestamp
	}

	return timestamp<<timestampShift | workerID<<workerShift | lastIncrement, nil
}

func Extract(id int64) Snowflake {
	return Snowflake{
		Timestamp: id >> timestampShift,
		WorkerID:  (id >> workerShift) & maxWorkerID,
		Increment: id & maxIncrement,
	}
}

// ExtractTimestamp returns the unix millisecond timestamp embedded in an id.
func ExtractTimestamp(id int64) int64 {
	return id >> timestampShift
}
