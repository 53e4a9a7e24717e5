package distribution

import (
	"fmt"
	"hash/fnv"
)

const (
	// KeyBucketCount is the cardinality of the distribution key space
	KeyBucketCount = 10_000

	keyFormat = "%04d"
)

// Key is a bounded-cardinality hash bucket rendered as a fixed-width string.
// It only chooses a read/write partition; it is never a stable identity for
// callers.
type Key string

// MakeKey hashes a high-cardinality raw key into [0, KeyBucketCount)
func MakeKey(rawKey string) Key {
	h := fnv.New32a()
	h.Write([]byte(rawKey))
	return Key(fmt.Sprintf(keyFormat, h.Sum32()%KeyBucketCount))
}

// AllKeys enumerates every distribution key, in bucket order. Used by full
// scans that must visit every partition of a distributed index.
func AllKeys() []Key {
	keys := make([]Key, KeyBucketCount)
	for i := 0; i < KeyBucketCount; i++ {
		keys[i] = Key(fmt.Sprintf(keyFormat, i))
	}
	return keys
}

func (k Key) String() string {
	return string(k)
}
