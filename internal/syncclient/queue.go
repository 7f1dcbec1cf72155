package syncclient

// commandQueue is a bounded FIFO for commands issued while offline.
//
// On overflow the oldest entry is evicted: replaying a stale command
// after reconnection is worse than losing it. Not safe for concurrent
// use; the Client serializes access under its own mutex.
type commandQueue struct {
	items []OutboundCommand
	cap   int
}

func newCommandQueue(capacity int) *commandQueue {
	return &commandQueue{cap: capacity}
}

// push appends a command, evicting the oldest entry when full.
// Returns the evicted command and true when an eviction happened.
func (q *commandQueue) push(cmd OutboundCommand) (OutboundCommand, bool) {
	var evicted OutboundCommand
	var didEvict bool
	if len(q.items) >= q.cap {
		evicted = q.items[0]
		q.items = q.items[1:]
		didEvict = true
	}
	q.items = append(q.items, cmd)
	return evicted, didEvict
}

// drain removes and returns all queued commands in FIFO order.
func (q *commandQueue) drain() []OutboundCommand {
	items := q.items
	q.items = nil
	return items
}

func (q *commandQueue) len() int {
	return len(q.items)
}
