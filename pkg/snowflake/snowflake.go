package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

// ID is a time-ordered 64-bit identifier. Ordering ids orders them by
// creation millisecond.
type ID int64

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// Parse reads an id produced by ID.String.
func Parse(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// Floor returns the smallest id that can be generated at or after t.
// Used to turn a time window into an id range.
func Floor(t time.Time) ID {
	ms := t.UnixMilli() - epoch
	if ms < 0 {
		ms = 0
	}
	return ID(ms << timeShift)
}

type Node struct {
	mu   sync.Mutex
	time int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("node number must be between 0 and 1023")
	}
	return &Node{node: node}, nil
}

// GenerateAt returns the next id stamped with t. Ids stay strictly
// increasing even if t moves backwards.
func (n *Node) GenerateAt(t time.Time) ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := t.UnixMilli()
	if ms < n.time {
		ms = n.time
	}

	if ms == n.time {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			// step exhausted: borrow the next millisecond
			ms++
		}
	} else {
		n.step = 0
	}
	n.time = ms

	return ID(((ms - epoch) << timeShift) | (n.node << nodeShift) | n.step)
}
