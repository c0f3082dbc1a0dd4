package events

import (
	"context"
	"sync"
)

// Broadcaster fans events out to in-process SSE subscribers, keyed by branch
// (kitchen display) and by table session (customer device).
type Broadcaster struct {
	branchClients map[string][]chan Event
	branchMutex   sync.RWMutex

	sessionClients map[string][]chan Event
	sessionMutex   sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		branchClients:  make(map[string][]chan Event),
		sessionClients: make(map[string][]chan Event),
	}
}

// SubscribeBranch registers a client for every event of a branch until ctx is done.
func (b *Broadcaster) SubscribeBranch(ctx context.Context, branchID string) <-chan Event {
	return subscribe(ctx, &b.branchMutex, b.branchClients, branchID)
}

// SubscribeSession registers a client for the events of one table session until ctx is done.
func (b *Broadcaster) SubscribeSession(ctx context.Context, sessionID string) <-chan Event {
	return subscribe(ctx, &b.sessionMutex, b.sessionClients, sessionID)
}

// Publish delivers e to its subscribers. Slow clients miss events rather than stall the sender.
func (b *Broadcaster) Publish(_ context.Context, e Event) error {
	if e.BranchID != "" {
		broadcast(&b.branchMutex, b.branchClients, e.BranchID, e)
	}
	if e.SessionID != "" {
		broadcast(&b.sessionMutex, b.sessionClients, e.SessionID, e)
	}
	return nil
}

func (b *Broadcaster) BranchClientCount(branchID string) int {
	b.branchMutex.RLock()
	defer b.branchMutex.RUnlock()
	return len(b.branchClients[branchID])
}

func (b *Broadcaster) SessionClientCount(sessionID string) int {
	b.sessionMutex.RLock()
	defer b.sessionMutex.RUnlock()
	return len(b.sessionClients[sessionID])
}

func subscribe(ctx context.Context, mu *sync.RWMutex, clients map[string][]chan Event, key string) <-chan Event {
	ch := make(chan Event, 10)

	mu.Lock()
	clients[key] = append(clients[key], ch)
	mu.Unlock()

	go func() {
		<-ctx.Done()
		mu.Lock()
		defer mu.Unlock()
		list := clients[key]
		for i, c := range list {
			if c == ch {
				clients[key] = append(list[:i], list[i+1:]...)
				close(ch)
				break
			}
		}
		if len(clients[key]) == 0 {
			delete(clients, key)
		}
	}()

	return ch
}

func broadcast(mu *sync.RWMutex, clients map[string][]chan Event, key string, e Event) {
	// Sends happen under the read lock so a concurrent unsubscribe cannot close a channel mid-send.
	mu.RLock()
	defer mu.RUnlock()
	for _, ch := range clients[key] {
		select {
		case ch <- e:
		default:
		}
	}
}
