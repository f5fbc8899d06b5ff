package http

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// HandlerPoolSize is the number of idle connection handlers kept for reuse.
// It must be a power of two.
const HandlerPoolSize = 1024

var (
	errFull  = errors.New("ring buffer is full")
	errEmpty = errors.New("ring buffer is empty")
)

// handlerPool recycles connection handlers across connections. Event loops
// get and put concurrently, hence the lock-free ring.
type handlerPool struct {
	ready ringBuffer[*connHandler]
}

func newHandlerPool() *handlerPool {
	return &handlerPool{ready: newRingBuffer[*connHandler]()}
}

func (p *handlerPool) get() *connHandler {
	h, err := p.ready.dequeue()
	if err != nil {
		return newConnHandler()
	}
	return h
}

// put resets h and keeps it unless the pool is full.
func (p *handlerPool) put(h *connHandler) {
	h.reset()
	_ = p.ready.enqueue(h)
}

// ringBuffer is a bounded multi-producer multi-consumer queue.
type ringBuffer[T any] struct {
	buffer [HandlerPoolSize]slot[T]
	mask   uint64
	enqPos uint64
	deqPos uint64
}

type slot[T any] struct {
	sequence uint64
	value    T
}

func newRingBuffer[T any]() ringBuffer[T] {
	var buf [HandlerPoolSize]slot[T]
	for i := range buf {
		buf[i].sequence = uint64(i)
	}
	return ringBuffer[T]{
		buffer: buf,
		mask:   HandlerPoolSize - 1,
	}
}

// enqueue adds an item, failing with errFull when every slot is taken.
func (q *ringBuffer[T]) enqueue(val T) error {
	for {
		pos := atomic.LoadUint64(&q.enqPos)
		slot := &q.buffer[pos&q.mask]

		seq := atomic.LoadUint64(&slot.sequence)
		delta := int64(seq) - int64(pos)

		if delta == 0 {
			if atomic.CompareAndSwapUint64(&q.enqPos, pos, pos+1) {
				slot.value = val
				atomic.StoreUint64(&slot.sequence, pos+1)
				return nil
			}
		} else if delta < 0 {
			return errFull
		} else {
			runtime.Gosched()
		}
	}
}

// dequeue removes and returns the oldest item
func (q *ringBuffer[T]) dequeue() (T, error) {
	var zero T
	for {
		pos := atomic.LoadUint64(&q.deqPos)
		slot := &q.buffer[pos&q.mask]

		seq := atomic.LoadUint64(&slot.sequence)
		delta := int64(seq) - int64(pos+1)

		if delta == 0 {
			if atomic.CompareAndSwapUint64(&q.deqPos, pos, pos+1) {
				val := slot.value
				slot.value = zero
				atomic.StoreUint64(&slot.sequence, pos+q.mask+1)
				return val, nil
			}
		} else if delta < 0 {
			return zero, errEmpty
		} else {
			runtime.Gosched()
		}
	}
}
