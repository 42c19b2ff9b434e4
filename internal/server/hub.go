// Package server coordinates client registration, state merging, and broadcast
// fan-out for the soundmesh synchronization hub via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Tyrowin/soundmesh/internal/protocol"
	"github.com/Tyrowin/soundmesh/internal/state"
)

// Hub is one synchronization instance: it owns exactly one state.Store and
// the registry of live connections for that instance. All state mutation and
// broadcast dispatch happen on the single Run loop, so merge-then-broadcast
// is atomic relative to every other event on the same instance. Instances are
// fully isolated from each other.
type Hub struct {
	store      *state.Store
	clients    map[*Client]bool
	frames     chan frameEvent
	register   chan *Client
	unregister chan *Client
	persist    func(snapshot []byte)
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub that owns the given state store. The returned Hub is
// ready to manage WebSocket connections once Run is started.
func NewHub(store *state.Store) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		store:      store,
		clients:    make(map[*Client]bool),
		frames:     make(chan frameEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// SetPersistFunc installs a hook invoked with the post-merge snapshot after
// every successful merge. The hook runs outside the hub loop, fire-and-forget;
// a durable record kept this way only seeds future instances and is never read
// back during normal operation. Must be set before Run starts.
func (h *Hub) SetPersistFunc(fn func(snapshot []byte)) {
	h.persist = fn
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Snapshot returns the complete current state of this instance.
func (h *Hub) Snapshot() []byte {
	return h.store.Snapshot()
}

// Run starts the hub's main event loop, consuming registration, frame, and
// disconnection events sequentially. This method should be called in a
// separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.frames:
			h.handleFrame(ev)
		}
	}
}

// registerClient adds the client to the registry, starts its pumps, and
// queues the init snapshot so it is the first frame the client receives.
func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	log.Printf("Client registered from %s. Total clients: %d", client.addr, clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	initMsg, err := protocol.EncodeInit(h.store.Snapshot())
	if err != nil {
		log.Printf("Error encoding init message for %s: %v", client.addr, err)
		return
	}
	if !h.safeSend(client, initMsg) {
		h.removeFailedClients([]*Client{client})
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closed = true
		clientCount := len(h.clients)
		h.mutex.Unlock()
		// Close the channel after releasing the lock
		close(client.send)
		log.Printf("Client unregistered from %s. Total clients: %d", client.addr, clientCount)
	} else {
		h.mutex.Unlock()
	}
}

// handleFrame parses one inbound frame and dispatches on its type. A frame
// that fails to parse is logged and skipped; the connection stays open. An
// unrecognized type is a no-op so newer clients can speak to older hubs.
func (h *Hub) handleFrame(ev frameEvent) {
	env, err := protocol.Decode(ev.data)
	if err != nil {
		log.Printf("Invalid message from %s: %v", ev.client.addr, err)
		return
	}

	switch env.Type {
	case protocol.TypeUpdate:
		h.handleUpdate(ev.client, env.Payload)
	default:
		log.Printf("Ignoring message with unknown type %q from %s", env.Type, ev.client.addr)
	}
}

// handleUpdate merges the patch into the instance state and fans the full
// post-merge snapshot out to every client except the originator. There is no
// rollback path: once the merge succeeds the new value is current, whatever
// happens during fan-out.
func (h *Hub) handleUpdate(sender *Client, patch []byte) {
	snapshot, err := h.store.Merge(patch)
	if err != nil {
		log.Printf("Skipping unmergeable update from %s: %v", sender.addr, err)
		return
	}

	if h.persist != nil {
		go h.persist(snapshot)
	}

	stateMsg, err := protocol.EncodeStateUpdate(snapshot)
	if err != nil {
		log.Printf("Error encoding state update: %v", err)
		return
	}
	h.handleBroadcast(BroadcastMessage{Sender: sender, Payload: stateMsg})
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Check if client is still registered and not closed
	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	// Try to send the message (channel might be closed, so we need to recover from panic)
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// handleBroadcast sends the message to all clients except the sender and
// prunes any peer whose send fails.
func (h *Hub) handleBroadcast(broadcastMsg BroadcastMessage) {
	clients := h.getClientSnapshot()
	clientsToRemove := h.broadcastToClients(clients, broadcastMsg)
	h.removeFailedClients(clientsToRemove)
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// broadcastToClients sends the message to all clients except the sender and
// returns the clients whose send failed. Delivery is at-most-once per peer:
// a failed peer is skipped, never retried, and the fan-out continues.
func (h *Hub) broadcastToClients(clients []*Client, broadcastMsg BroadcastMessage) []*Client {
	var clientsToRemove []*Client

	for _, client := range clients {
		if broadcastMsg.Sender != nil && client == broadcastMsg.Sender {
			continue
		}
		if !h.safeSend(client, broadcastMsg.Payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	return clientsToRemove
}

// removeFailedClients removes clients that failed to receive messages and closes their channels
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client from %s removed due to failed send", client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete. It returns after all client connections are closed and
// goroutines have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
