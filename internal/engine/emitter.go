package engine

import "sync"

// emitter fans events out to subscribers. The legacy error slot is one more
// error subscriber that SetOnError replaces.
type emitter struct {
	mu      sync.Mutex
	next    int
	subs    map[int]func(Event)
	errSubs map[int]func(*AudioError)
	slot    func(*AudioError)

	queue     []Event
	draining  bool
	delivered uint64 // highest Seq handed to subscribers
}

func newEmitter() *emitter {
	return &emitter{
		subs:    make(map[int]func(Event)),
		errSubs: make(map[int]func(*AudioError)),
	}
}

func (em *emitter) subscribe(fn func(Event)) func() {
	em.mu.Lock()
	id := em.next
	em.next++
	em.subs[id] = fn
	em.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			em.mu.Lock()
			delete(em.subs, id)
			em.mu.Unlock()
		})
	}
}

func (em *emitter) onError(fn func(*AudioError)) func() {
	em.mu.Lock()
	id := em.next
	em.next++
	em.errSubs[id] = fn
	em.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			em.mu.Lock()
			delete(em.errSubs, id)
			em.mu.Unlock()
		})
	}
}

func (em *emitter) setSlot(fn func(*AudioError)) {
	em.mu.Lock()
	em.slot = fn
	em.mu.Unlock()
}

// dispatch queues events and delivers them in order. One goroutine drains
// the queue at a time; a dispatch made while another is draining, including
// one from inside a subscriber, returns after queueing. A snapshot older than
// one already delivered is dropped for event subscribers. Its error, if any,
// still reaches the error subscribers.
func (em *emitter) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	em.mu.Lock()
	em.queue = append(em.queue, events...)
	if em.draining {
		em.mu.Unlock()
		return
	}
	em.draining = true
	finished := false
	defer func() {
		// A panicking subscriber must not leave the queue without a drainer.
		if !finished {
			em.mu.Lock()
			em.draining = false
			em.queue = nil
			em.mu.Unlock()
		}
	}()

	for len(em.queue) > 0 {
		ev := em.queue[0]
		em.queue = em.queue[1:]
		stale := ev.Seq != 0 && ev.Seq <= em.delivered
		if !stale {
			em.delivered = max(em.delivered, ev.Seq)
		}
		subs := make([]func(Event), 0, len(em.subs))
		for _, fn := range em.subs {
			subs = append(subs, fn)
		}
		errSubs := make([]func(*AudioError), 0, len(em.errSubs)+1)
		if em.slot != nil {
			errSubs = append(errSubs, em.slot)
		}
		for _, fn := range em.errSubs {
			errSubs = append(errSubs, fn)
		}
		em.mu.Unlock()

		if !stale {
			for _, fn := range subs {
				fn(ev)
			}
		}
		if ev.Kind == EventError && ev.Err != nil {
			for _, fn := range errSubs {
				fn(ev.Err)
			}
		}
		em.mu.Lock()
	}
	em.queue = nil
	em.draining = false
	finished = true
	em.mu.Unlock()
}
