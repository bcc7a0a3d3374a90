package cache

import (
	"github.com/rs/zerolog"
)

// EventKind identifies a store event.
type EventKind string

const (
	EventSet     EventKind = "set"
	EventDeleted EventKind = "deleted"
	EventExpired EventKind = "expired"
	EventFlush   EventKind = "flush"
	EventHit     EventKind = "hit"
	EventMiss    EventKind = "miss"
)

// Event describes a change or lookup in the store.
// Key is empty for EventFlush.
type Event struct {
	Kind EventKind
	Key  string
}

// Observer receives store events.
// EventExpired is delivered from the sweep goroutine, so implementations
// must be safe for concurrent use. Deleted and expired events are
// delivered while the store serialises evictions, so Notify must not call
// Store.Delete.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Notify calls f(e).
func (f ObserverFunc) Notify(e Event) { f(e) }

// Observers fans an event out to several observers.
type Observers []Observer

// Notify forwards e to every observer in order.
func (o Observers) Notify(e Event) {
	for _, obs := range o {
		obs.Notify(e)
	}
}

type logObserver struct {
	logger zerolog.Logger
}

// NewLogObserver returns an Observer that writes every event at debug level.
func NewLogObserver(logger zerolog.Logger) Observer {
	return logObserver{logger: logger}
}

func (l logObserver) Notify(e Event) {
	ev := l.logger.Debug().Str("event", string(e.Kind))
	if e.Key != "" {
		ev = ev.Str("key", e.Key)
	}
	ev.Msg("Cache event")
}

type nopObserver struct{}

func (nopObserver) Notify(Event) {}
