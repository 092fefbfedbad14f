package pages

import "sync"

// broadcaster fans page states out to subscribers. Each subscriber channel
// holds at most one pending value; a newer state replaces an unread one, so
// publishing never blocks on a slow reader.
type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan []PageState
}

func (b *broadcaster) subscribe(initial []PageState) (<-chan []PageState, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]chan []PageState)
	}
	id := b.next
	b.next++
	ch := make(chan []PageState, 1)
	ch <- initial
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (b *broadcaster) publish(states []PageState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- states
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
