package notifier

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rl1809/kitties/internal/core/domain"
)

const listenerBufferSize = 100

type listener struct {
	id      string
	account domain.AccountID
	ch      chan domain.Event
}

// Broker fans events out to in-process subscribers. A subscriber that falls
// behind misses events rather than blocking the publisher.
type Broker struct {
	lock      sync.RWMutex
	listeners map[string]*listener
}

func NewBroker() *Broker {
	return &Broker{listeners: make(map[string]*listener)}
}

// Subscribe registers a listener. A non-empty account restricts delivery to
// events involving that account.
func (b *Broker) Subscribe(account domain.AccountID) (string, <-chan domain.Event) {
	b.lock.Lock()
	defer b.lock.Unlock()

	l := &listener{
		id:      uuid.NewString(),
		account: account,
		ch:      make(chan domain.Event, listenerBufferSize),
	}
	b.listeners[l.id] = l
	return l.id, l.ch
}

func (b *Broker) Unsubscribe(id string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if l, ok := b.listeners[id]; ok {
		close(l.ch)
		delete(b.listeners, id)
	}
}

func (b *Broker) Notify(_ context.Context, event domain.Event) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	for _, l := range b.listeners {
		if l.account != "" && !event.Involves(l.account) {
			continue
		}
		select {
		case l.ch <- event:
		default:
			log.WithField("listener", l.id).Warn("listener buffer full, dropping event")
		}
	}
}

func (b *Broker) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.listeners)
}

// Close unsubscribes every listener.
func (b *Broker) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()

	for id, l := range b.listeners {
		close(l.ch)
		delete(b.listeners, id)
	}
}
