package ws

import "sync"

// clientQueueSize bounds how many payloads may wait for a slow subscriber
// before it is dropped.
const clientQueueSize = 16

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans snapshot payloads out to subscribers grouped by topic. Each
// subscriber is fed from its own queue, so a stalled client never blocks the
// dispatch loop or the broadcaster.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]*outbox
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
	closeOnce sync.Once
}

type message struct {
	topic   string
	payload []byte
}

type subscription struct {
	topic  string
	client Subscriber
}

// outbox delivers queued payloads to one subscriber. The dispatch loop owns
// the queue and is the only writer and closer of it.
type outbox struct {
	client Subscriber
	queue  chan []byte
}

// NewHub creates an initialized Hub and starts its dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]*outbox),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for topic, clients := range h.clients {
				for _, box := range clients {
					close(box.queue)
				}
				delete(h.clients, topic)
			}
			h.mu.Unlock()
			return
		case sub := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[sub.topic]; !ok {
				h.clients[sub.topic] = make(map[Subscriber]*outbox)
			}
			if _, exists := h.clients[sub.topic][sub.client]; !exists {
				box := &outbox{client: sub.client, queue: make(chan []byte, clientQueueSize)}
				h.clients[sub.topic][sub.client] = box
				go h.pump(sub.topic, box)
			}
			h.mu.Unlock()
		case sub := <-h.unreg:
			h.mu.Lock()
			h.removeLocked(sub.topic, sub.client)
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client, box := range h.clients[msg.topic] {
				select {
				case box.queue <- msg.payload:
				default:
					h.removeLocked(msg.topic, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeLocked(topic string, client Subscriber) {
	clients, ok := h.clients[topic]
	if !ok {
		return
	}
	if box, ok := clients[client]; ok {
		close(box.queue)
		delete(clients, client)
	}
	if len(clients) == 0 {
		delete(h.clients, topic)
	}
}

// pump drains one subscriber's queue. After a failed send it keeps draining
// without sending until the dispatch loop closes the queue.
func (h *Hub) pump(topic string, box *outbox) {
	defer box.client.Close()
	failed := false
	for payload := range box.queue {
		if failed {
			continue
		}
		if err := box.client.Send(payload); err != nil {
			failed = true
			go h.Unregister(topic, box.client)
		}
	}
}

// Register adds a client to a topic.
func (h *Hub) Register(topic string, client Subscriber) {
	select {
	case h.register <- subscription{topic: topic, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client. Its queue is closed and the client is closed
// once pending payloads are drained.
func (h *Hub) Unregister(topic string, client Subscriber) {
	select {
	case h.unreg <- subscription{topic: topic, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every client of a topic. Clients whose queue
// is full are dropped. It is a no-op once the hub is closed.
func (h *Hub) Broadcast(topic string, payload []byte) {
	select {
	case h.broadcast <- message{topic: topic, payload: payload}:
	case <-h.done:
	}
}

// Subscribers reports how many clients are registered on a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Close stops the dispatch loop and closes every registered client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}
