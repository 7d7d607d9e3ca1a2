package supabase

import (
	"sync"

	"bandcal/internal/auth"
	appLog "bandcal/internal/log"
	"bandcal/internal/model"
)

// emitter fans provider notifications out to subscribers, synchronously and
// in subscription order.
type emitter struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]auth.Listener
	order  []int
}

func newEmitter() *emitter {
	return &emitter{subs: make(map[int]auth.Listener)}
}

type subscription struct {
	e    *emitter
	id   int
	once sync.Once
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.e.mu.Lock()
		delete(s.e.subs, s.id)
		s.e.mu.Unlock()
	})
}

func (e *emitter) subscribe(fn auth.Listener) auth.Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.subs[e.nextID] = fn
	e.order = append(e.order, e.nextID)
	return &subscription{e: e, id: e.nextID}
}

func (e *emitter) emit(ev auth.Event, s *model.Session) {
	e.mu.Lock()
	var fns []auth.Listener
	live := e.order[:0]
	for _, id := range e.order {
		if fn, ok := e.subs[id]; ok {
			fns = append(fns, fn)
			live = append(live, id)
		}
	}
	e.order = live
	e.mu.Unlock()

	appLog.Debug("auth notification", "event", string(ev), "listeners", len(fns))
	for _, fn := range fns {
		fn(ev, s.Clone())
	}
}
