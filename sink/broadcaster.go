// Package sink is the process wide store of UI state. Sessions dispatch key/value updates; readers take the last
// value of a key or subscribe to its changes.
package sink

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/meow-io/go-hush/config"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const subscriberBufferSize = 64

type Broadcaster struct {
	log         *zap.SugaredLogger
	lock        sync.RWMutex
	values      map[string]interface{}
	subscribers map[string]map[string]chan interface{}
	closed      bool
}

func NewBroadcaster(c *config.Config) *Broadcaster {
	return &Broadcaster{
		log:         c.Logger("sink"),
		values:      map[string]interface{}{},
		subscribers: map[string]map[string]chan interface{}{},
	}
}

// Dispatch stores value as the latest for key and passes it to every subscriber of key. Subscribers which are
// not keeping up miss the value.
func (b *Broadcaster) Dispatch(key string, value interface{}) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return
	}
	b.values[key] = value
	for _, ch := range b.subscribers[key] {
		select {
		case ch <- value:
		default:
			b.log.Debugf("dropped %s for slow subscriber", key)
		}
	}
}

func (b *Broadcaster) Value(key string) (interface{}, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

// Keys with a value, sorted.
func (b *Broadcaster) Keys() []string {
	b.lock.RLock()
	keys := maps.Keys(b.values)
	b.lock.RUnlock()
	slices.Sort(keys)
	return keys
}

// Subscribe to key until ctx is done. The channel first receives the current value, if any, and is closed when
// the subscription ends.
func (b *Broadcaster) Subscribe(ctx context.Context, key string) <-chan interface{} {
	id := uuid.New().String()
	ch := make(chan interface{}, subscriberBufferSize)

	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		close(ch)
		return ch
	}
	if v, ok := b.values[key]; ok {
		ch <- v
	}
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = map[string]chan interface{}{}
	}
	b.subscribers[key][id] = ch
	b.lock.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(key, id)
	}()
	return ch
}

func (b *Broadcaster) unsubscribe(key, id string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	subs, ok := b.subscribers[key]
	if !ok {
		return
	}
	if ch, ok := subs[id]; ok {
		delete(subs, id)
		close(ch)
	}
	if len(subs) == 0 {
		delete(b.subscribers, key)
	}
}

// Close ends all subscriptions. Later dispatches are ignored.
func (b *Broadcaster) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.closed = true
	for key, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, key)
	}
}
