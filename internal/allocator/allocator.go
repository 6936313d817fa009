// Package allocator implements the allocate-touch-retain loop that builds up
// memory pressure one fixed-size block at a time.
package allocator

import (
	"time"

	"github.com/golang/glog"
	"k8s.io/apimachinery/pkg/api/resource"
)

// BytesPerMB is the size of one logical MB unit tracked by the loop.
const BytesPerMB = 1 << 20

// Options controls a Loop. StopMB of zero means the loop never stops on its own.
type Options struct {
	BlockSizeMB int
	Interval    time.Duration
	TouchRatio  float64
	StopMB      int
}

// State is a snapshot of the loop counters.
type State struct {
	Iterations  int
	AllocatedMB int
	TouchedMB   int
}

// Sleeper paces the loop between allocations. clock.RealClock satisfies it.
type Sleeper interface {
	Sleep(d time.Duration)
}

// arena keeps every block reachable for the lifetime of the process.
// Blocks are only ever appended.
type arena struct {
	blocks [][]byte
}

func (a *arena) retain(block []byte) {
	a.blocks = append(a.blocks, block)
}

// Loop owns the run state and the retained blocks. It is not safe for
// concurrent use.
type Loop struct {
	opts    Options
	sleeper Sleeper
	// newBlock returns an untouched block of the given size.
	newBlock func(sizeMB int) []byte

	arena arena
	state State
}

// New returns a Loop with empty run state.
func New(opts Options, sleeper Sleeper) *Loop {
	return &Loop{
		opts:     opts,
		sleeper:  sleeper,
		newBlock: makeBlock,
	}
}

func makeBlock(sizeMB int) []byte {
	return make([]byte, sizeMB*BytesPerMB)
}

// Step performs one iteration: allocate a block, decide whether to touch it,
// retain it and pace. It returns the counters after the iteration.
func (l *Loop) Step() State {
	block := l.newBlock(l.opts.BlockSizeMB)
	l.state.AllocatedMB += l.opts.BlockSizeMB

	touched := ShouldTouch(l.state.AllocatedMB, l.state.TouchedMB, l.opts.TouchRatio)
	if touched {
		touch(block)
		l.state.TouchedMB += l.opts.BlockSizeMB
	}

	l.arena.retain(block)
	l.state.Iterations++
	glog.V(2).Infof("Block %d: touched=%t, %d MB allocated, %d MB touched",
		l.state.Iterations, touched, l.state.AllocatedMB, l.state.TouchedMB)

	if l.opts.Interval > 0 {
		l.sleeper.Sleep(l.opts.Interval)
	}
	return l.state
}

// Done reports whether the stop threshold has been reached.
func (l *Loop) Done() bool {
	return l.opts.StopMB > 0 && l.state.AllocatedMB >= l.opts.StopMB
}

// Run steps until the stop threshold is reached. With no threshold it only
// returns when the process is killed.
func (l *Loop) Run() State {
	glog.Infof("Allocating %s blocks every %v, touching %.2f of them, stopping at %s",
		quantity(l.opts.BlockSizeMB), l.opts.Interval, l.opts.TouchRatio, stopString(l.opts.StopMB))
	for {
		l.Step()
		if l.Done() {
			break
		}
	}
	glog.Infof("Allocated %s, touched %s", quantity(l.state.AllocatedMB), quantity(l.state.TouchedMB))
	return l.state
}

// RunN is Run bounded to at most n iterations.
func (l *Loop) RunN(n int) State {
	for i := 0; i < n && !l.Done(); i++ {
		l.Step()
	}
	return l.state
}

// State returns the current counters.
func (l *Loop) State() State {
	return l.state
}

// Retained returns the number of blocks held by the loop.
func (l *Loop) Retained() int {
	return len(l.arena.blocks)
}

func quantity(mb int) string {
	return resource.NewQuantity(int64(mb)*BytesPerMB, resource.BinarySI).String()
}

func stopString(mb int) string {
	if mb == 0 {
		return "never"
	}
	return quantity(mb)
}
