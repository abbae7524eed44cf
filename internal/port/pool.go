package port

import (
	"errors"
	"fmt"
	"sync"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
)

// ErrExhausted is returned by Acquire when every port in the range is held.
var ErrExhausted = errors.New("port pool exhausted")

// Pool hands out ports from a fixed contiguous range.
// All methods are safe for concurrent use.
type Pool struct {
	from, to int

	mu       sync.Mutex
	free     []int        // FIFO queue of free ports
	held     map[int]bool // ports currently allocated
	onChange func(inUse int)
}

// NewPool materializes every port in [from, to] as free.
func NewPool(from, to int) (*Pool, error) {
	if from <= 0 || to > 65535 || from > to {
		return nil, fmt.Errorf("invalid port range %d-%d", from, to)
	}

	p := &Pool{
		from: from,
		to:   to,
		free: make([]int, 0, to-from+1),
		held: make(map[int]bool, to-from+1),
	}
	for port := from; port <= to; port++ {
		p.free = append(p.free, port)
	}
	return p, nil
}

// OnChange registers a hook invoked with the in-use count after every
// successful acquire or release. It is called with the pool lock held and
// must not call back into the pool.
func (p *Pool) OnChange(fn func(inUse int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Acquire removes the oldest free port from the pool.
// It returns ErrExhausted and leaves the pool untouched when none is free.
func (p *Pool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return 0, fmt.Errorf("no available ports in range %d-%d: %w", p.from, p.to, ErrExhausted)
	}

	port := p.free[0]
	p.free = p.free[1:]
	p.held[port] = true
	p.notify()

	logging.Debug("port acquired", "port", port, "free", len(p.free))
	return port, nil
}

// Release returns a held port to the back of the free queue.
// Releasing a port that is outside the range or not held is a logged no-op.
func (p *Pool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.held[port] {
		logging.Warn("release of port not held by pool", "port", port)
		return
	}

	delete(p.held, port)
	p.free = append(p.free, port)
	p.notify()

	logging.Debug("port released", "port", port, "free", len(p.free))
}

func (p *Pool) notify() {
	if p.onChange != nil {
		p.onChange(len(p.held))
	}
}

// Contains reports whether port belongs to the pool's range.
func (p *Pool) Contains(port int) bool {
	return port >= p.from && port <= p.to
}

// Size returns the number of ports managed by the pool.
func (p *Pool) Size() int {
	return p.to - p.from + 1
}

// Free returns the number of ports available for Acquire.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// InUse returns the number of ports currently held.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}

// FreePorts returns a copy of the free queue in acquisition order.
func (p *Pool) FreePorts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	ports := make([]int, len(p.free))
	copy(ports, p.free)
	return ports
}
