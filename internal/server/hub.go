package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"echoping/internal/address"
	"echoping/internal/metrics"
	"echoping/internal/models"
	"echoping/internal/monitor"
	"echoping/internal/octet"
	"echoping/internal/storage"
)

// ErrIncompleteAddress is returned when a commit does not carry four octets in range.
var ErrIncompleteAddress = errors.New("incomplete address")

var errHubStopped = errors.New("hub stopped")

// AddressBook persists the chosen target.
type AddressBook interface {
	Load() (address.Address, error)
	Store(address.Address) error
}

type commitRequest struct {
	addr  address.Address
	reply chan error
}

type clientMessage struct {
	client *client
	msg    inboundMessage
}

// Hub is the single goroutine that owns observation state. It starts the
// scheduler when the first live client connects, stops it when the last
// one leaves, applies commits and fans results out to clients.
type Hub struct {
	sched     *monitor.Scheduler
	results   *storage.ResultStorage
	addresses AddressBook
	metrics   *metrics.Collector

	register   chan *client
	unregister chan *client
	inbound    chan clientMessage
	commits    chan commitRequest
	done       chan struct{}

	clients   map[*client]struct{}
	observers atomic.Int32
}

// NewHub wires a hub around the scheduler and its collaborators.
func NewHub(sched *monitor.Scheduler, results *storage.ResultStorage, addresses AddressBook, collector *metrics.Collector) *Hub {
	if collector == nil {
		collector = metrics.New()
	}
	return &Hub{
		sched:      sched,
		results:    results,
		addresses:  addresses,
		metrics:    collector,
		register:   make(chan *client),
		unregister: make(chan *client),
		inbound:    make(chan clientMessage),
		commits:    make(chan commitRequest),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run processes hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.shutdown()

	if target, ok := h.sched.Target(); ok {
		h.metrics.SetTarget(target.String())
	}

	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case r := <-h.sched.Results():
			h.deliver(r)
		case in := <-h.inbound:
			h.handleMessage(in.client, in.msg)
		case req := <-h.commits:
			req.reply <- h.commit(req.addr)
		case <-ctx.Done():
			return
		}
	}
}

// Commit saves addr and makes it the probe target.
func (h *Hub) Commit(ctx context.Context, addr address.Address) error {
	req := commitRequest{addr: addr, reply: make(chan error, 1)}
	select {
	case h.commits <- req:
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Target returns the address currently probed.
func (h *Hub) Target() (address.Address, bool) {
	return h.sched.Target()
}

// Observers is the number of connected live clients.
func (h *Hub) Observers() int {
	return int(h.observers.Load())
}

// Active reports whether probes are being issued.
func (h *Hub) Active() bool {
	return h.sched.Active()
}

func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) receive(c *client, msg inboundMessage) bool {
	select {
	case h.inbound <- clientMessage{client: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) addClient(c *client) {
	h.clients[c] = struct{}{}
	h.resetFields(c)
	h.setObservers()
	if len(h.clients) == 1 {
		h.sched.Start()
	}
	h.send(c, h.addressMessage())
}

func (h *Hub) removeClient(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setObservers()
	if len(h.clients) == 0 {
		h.sched.Stop()
	}
}

func (h *Hub) setObservers() {
	h.observers.Store(int32(len(h.clients)))
	h.metrics.SetObservers(len(h.clients))
}

func (h *Hub) deliver(r models.Result) {
	if r.Outcome.Reachable() {
		log.Printf("%s: %s", r.Target, r.Outcome)
	} else {
		log.Printf("%s: %s (warning)", r.Target, r.Outcome)
	}
	h.metrics.Observe(r)
	if err := h.results.Append(r); err != nil {
		log.Printf("store result: %v", err)
	}
	h.broadcast(newResultMessage(r))
}

func (h *Hub) commit(addr address.Address) error {
	if err := h.addresses.Store(addr); err != nil {
		return fmt.Errorf("save address: %w", err)
	}
	h.sched.SetTarget(addr)
	h.metrics.SetTarget(addr.String())
	log.Printf("target set to %s", addr)
	for c := range h.clients {
		h.resetFields(c)
	}
	h.broadcast(h.addressMessage())
	return nil
}

func (h *Hub) handleMessage(c *client, msg inboundMessage) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	switch msg.Type {
	case messageOctet:
		if msg.Field < 0 || msg.Field >= len(c.fields) {
			h.send(c, errorMessage{Type: messageError, Error: fmt.Sprintf("field %d out of range", msg.Field)})
			return
		}
		classification, ok := c.fields[msg.Field].Change(msg.Text)
		if !ok {
			return
		}
		h.send(c, newOctetMessage(msg.Field, classification))
	case messageCommit:
		addr, ok := address.Assemble(msg.octets())
		if !ok {
			h.send(c, errorMessage{Type: messageError, Error: ErrIncompleteAddress.Error()})
			return
		}
		if err := h.commit(addr); err != nil {
			log.Printf("commit %s: %v", addr, err)
			h.send(c, errorMessage{Type: messageError, Error: err.Error()})
		}
	default:
		h.send(c, errorMessage{Type: messageError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// resetFields makes the pushed target octets the initial text of the
// client's fields, so the first edit is classified against them.
func (h *Hub) resetFields(c *client) {
	var fields [4]string
	if target, ok := h.sched.Target(); ok {
		fields = address.Disassemble(target)
	}
	for i := range c.fields {
		c.fields[i] = *octet.NewField(fields[i])
	}
}

func (h *Hub) addressMessage() addressMessage {
	msg := addressMessage{Type: messageAddress}
	if target, ok := h.sched.Target(); ok {
		fields := address.Disassemble(target)
		msg.Address = target.String()
		msg.Octets = fields[:]
	}
	return msg
}

func (h *Hub) broadcast(msg any) {
	for c := range h.clients {
		h.send(c, msg)
	}
}

// send queues msg for c. A client too slow to keep up is dropped.
func (h *Hub) send(c *client, msg any) {
	select {
	case c.send <- msg:
	default:
		log.Printf("live client %s is not keeping up, dropping it", c.remote)
		h.removeClient(c)
		c.conn.Close()
	}
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.setObservers()
	h.sched.Close()
}
