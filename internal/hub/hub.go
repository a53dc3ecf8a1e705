// Package hub fans verdict events out to live observers. A single goroutine
// owns the subscriber registry, so subscribe, unsubscribe and broadcast never
// contend on a shared lock; per-subscriber buffered channels keep one slow or
// dead observer from stalling the rest.
package hub

import (
	"log/slog"

	"github.com/google/uuid"

	"fleet-backend/internal/domain"
	"fleet-backend/internal/metrics"
)

// Subscriber is one live observer connection. Events arrive on Events() in
// broadcast order and the channel is closed when the subscriber is removed,
// whether by Unsubscribe, eviction or hub shutdown.
type Subscriber struct {
	id uuid.UUID
	ch chan *domain.Event
}

func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

func (s *Subscriber) Events() <-chan *domain.Event {
	return s.ch
}

type Hub struct {
	register   chan *Subscriber
	unregister chan *Subscriber
	events     chan *domain.Event
	stop       chan struct{}
	done       chan struct{}
	subBuffer  int
	log        *slog.Logger
}

// New starts the hub loop. eventBuffer bounds the broadcast mailbox;
// subBuffer bounds each observer's delivery queue, and an observer whose
// queue fills up is evicted rather than waited on.
func New(log *slog.Logger, eventBuffer, subBuffer int) *Hub {
	h := &Hub{
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		events:     make(chan *domain.Event, eventBuffer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		subBuffer:  subBuffer,
		log:        log,
	}
	go h.run()
	return h
}

// Subscribe registers a new observer. After hub shutdown it returns a
// subscriber whose event channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		id: uuid.New(),
		ch: make(chan *domain.Event, h.subBuffer),
	}
	select {
	case h.register <- s:
	case <-h.done:
		close(s.ch)
	}
	return s
}

// Unsubscribe removes an observer. Safe to call for a subscriber that was
// already evicted.
func (h *Hub) Unsubscribe(s *Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Broadcast queues an event for delivery to every current observer. It never
// blocks the caller: if the mailbox is full the event is dropped and counted.
func (h *Hub) Broadcast(ev *domain.Event) {
	select {
	case h.events <- ev:
	default:
		metrics.BroadcastDrops.Inc()
	}
}

// Close stops the loop and closes every subscriber channel. Pending mailbox
// events are discarded.
func (h *Hub) Close() {
	close(h.stop)
	<-h.done
}

func (h *Hub) run() {
	subs := make(map[uuid.UUID]*Subscriber)

	remove := func(s *Subscriber) {
		if _, ok := subs[s.id]; !ok {
			return
		}
		delete(subs, s.id)
		close(s.ch)
		metrics.ObserversConnected.Set(float64(len(subs)))
	}

	for {
		select {
		case s := <-h.register:
			subs[s.id] = s
			metrics.ObserversConnected.Set(float64(len(subs)))
			h.log.Debug("observer subscribed", slog.String("id", s.id.String()), slog.Int("total", len(subs)))

		case s := <-h.unregister:
			remove(s)

		case ev := <-h.events:
			for _, s := range subs {
				select {
				case s.ch <- ev:
				default:
					// Delivery queue full: the observer is stalled or gone.
					h.log.Warn("evicting unresponsive observer", slog.String("id", s.id.String()))
					metrics.ObserverEvictions.Inc()
					remove(s)
				}
			}

		case <-h.stop:
			for _, s := range subs {
				close(s.ch)
			}
			metrics.ObserversConnected.Set(0)
			close(h.done)
			return
		}
	}
}
