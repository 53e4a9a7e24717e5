// Package sequence provides globally-ordered id generation and per-scope
// monotonic sequences.
package sequence

import (
	"crypto/rand"
	"fmt"
	"hash/fnv"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/feedgrid/feedgrid/internal/errors"
)

const (
	epochBits    = 41
	nodeIDBits   = 10
	sequenceBits = 12

	// MaxNodeID is the largest assignable generator node id
	MaxNodeID = (1 << nodeIDBits) - 1

	maxSequence = (1 << sequenceBits) - 1

	// DefaultEpoch is 2020-01-01T00:00:00Z in unix milliseconds
	DefaultEpoch = int64(1_577_836_800_000)

	// MinID is the smallest id the generator can emit
	MinID = int64(1)
)

// Snowflake generates 64-bit time-ordered ids composed of a 41-bit millisecond
// timestamp, a 10-bit node id and a 12-bit per-millisecond sequence.
// The sequence counter is the only state requiring single-writer discipline
// inside one process; a mutex guards it.
type Snowflake struct {
	mu            sync.Mutex
	nodeID        int64
	epoch         int64
	lastTimestamp int64
	sequence      int64
}

// NewSnowflake creates a generator with an explicit node id
func NewSnowflake(nodeID int64) (*Snowflake, error) {
	return NewSnowflakeWithEpoch(nodeID, DefaultEpoch)
}

// NewSnowflakeWithEpoch creates a generator with an explicit node id and epoch
func NewSnowflakeWithEpoch(nodeID, epoch int64) (*Snowflake, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, errors.InvalidArguments("node id must be between 0 and %d, got %d", MaxNodeID, nodeID)
	}
	return &Snowflake{
		nodeID:        nodeID,
		epoch:         epoch,
		lastTimestamp: -1,
	}, nil
}

// NewSnowflakeFromHardware creates a generator whose node id is derived from
// the machine's network hardware addresses, masked to the node-id bit width.
// Falls back to a random id when no hardware address is readable.
func NewSnowflakeFromHardware() (*Snowflake, error) {
	return NewSnowflake(hardwareNodeID())
}

// NodeID returns the generator's node id
func (s *Snowflake) NodeID() int64 {
	return s.nodeID
}

// NextID returns a new strictly increasing id. It spin-waits until the clock
// advances when the per-millisecond sequence exhausts, and fails with a
// clock_regression error when wall-clock time moves backward relative to the
// last emitted timestamp. That error is fatal for this node and must
// propagate, not be retried.
func (s *Snowflake) NextID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.timestamp()
	if current < s.lastTimestamp {
		return 0, errors.ClockRegression(current, s.lastTimestamp)
	}

	if current == s.lastTimestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// Sequence exhausted, wait for the next millisecond.
			// Bounded by wall-clock advancement.
			for current == s.lastTimestamp {
				current = s.timestamp()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastTimestamp = current

	return current<<(nodeIDBits+sequenceBits) |
		s.nodeID<<sequenceBits |
		s.sequence, nil
}

func (s *Snowflake) timestamp() int64 {
	return time.Now().UnixMilli() - s.epoch
}

// Parse decomposes an id into its unix-millisecond timestamp, node id and
// sequence, using the default epoch
func Parse(id int64) (timestamp, nodeID, seq int64) {
	return ParseWithEpoch(id, DefaultEpoch)
}

// ParseWithEpoch decomposes an id relative to a custom epoch
func ParseWithEpoch(id, epoch int64) (timestamp, nodeID, seq int64) {
	timestamp = id>>(nodeIDBits+sequenceBits) + epoch
	nodeID = (id >> sequenceBits) & MaxNodeID
	seq = id & maxSequence
	return
}

// hardwareNodeID hashes all hardware addresses into the node-id space
func hardwareNodeID() int64 {
	ifaces, err := net.Interfaces()
	if err == nil {
		h := fnv.New32a()
		found := false
		for _, iface := range ifaces {
			if len(iface.HardwareAddr) > 0 {
				h.Write(iface.HardwareAddr)
				found = true
			}
		}
		if found {
			return int64(h.Sum32()) & MaxNodeID
		}
	}

	n, err := rand.Int(rand.Reader, big.NewInt(MaxNodeID+1))
	if err != nil {
		// Out of entropy; any stable value beats crashing here
		return 0
	}
	return n.Int64()
}

// String describes the generator layout
func (s *Snowflake) String() string {
	return fmt.Sprintf("Snowflake[epochBits=%d nodeIDBits=%d sequenceBits=%d epoch=%d nodeID=%d]",
		epochBits, nodeIDBits, sequenceBits, s.epoch, s.nodeID)
}
