// Package bus is an in-process pub/sub bus with MQTT-style topics: "+"
// matches one level, a trailing "#" matches any number of levels including
// none. Retained messages are replayed to new matching subscribers. Slow
// subscribers lose their oldest queued message rather than block publishers.
package bus

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	WildOne  = "+"
	WildRest = "#"
)

// Topic is a sequence of levels.
type Topic []string

// T builds a topic from levels.
func T(levels ...string) Topic { return Topic(levels) }

// ParseTopic splits "a/b/c".
func ParseTopic(s string) Topic {
	if s == "" {
		return nil
	}
	return Topic(strings.Split(s, "/"))
}

func (t Topic) String() string { return strings.Join(t, "/") }

// Append returns a new topic with levels added.
func (t Topic) Append(levels ...string) Topic {
	out := make(Topic, 0, len(t)+len(levels))
	return append(append(out, t...), levels...)
}

// Match reports whether the concrete topic t is matched by pattern p.
func (t Topic) Match(p Topic) bool {
	for i, lvl := range p {
		if lvl == WildRest {
			return true
		}
		if i >= len(t) {
			return false
		}
		if lvl != WildOne && lvl != t[i] {
			return false
		}
	}
	return len(t) == len(p)
}

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

type node struct {
	children map[string]*node
	subs     []*Subscription
}

type Bus struct {
	mu       sync.Mutex
	root     *node
	retained map[string]*Message
	qLen     int

	replySeq atomic.Uint64
	drops    atomic.Uint64
}

// NewBus creates a bus whose subscriptions queue up to queueLen messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{
		root:     &node{},
		retained: make(map[string]*Message),
		qLen:     queueLen,
	}
}

func (b *Bus) NewMessage(t Topic, payload any, retained bool) *Message {
	return &Message{Topic: t, Payload: payload, Retained: retained}
}

// Drops counts messages discarded from full subscriber queues.
func (b *Bus) Drops() uint64 { return b.drops.Load() }

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, lvl := range sub.topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[lvl]
		if !ok {
			child = &node{}
			n.children[lvl] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	for _, msg := range b.retained {
		if msg.Topic.Match(sub.topic) {
			b.deliver(sub, msg)
		}
	}
}

// Publish delivers msg to every matching subscription. A retained message
// replaces the topic's retained value; a retained nil payload clears it.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		key := msg.Topic.String()
		if msg.Payload == nil {
			delete(b.retained, key)
		} else {
			b.retained[key] = msg
		}
	}
	b.walk(b.root, msg.Topic, func(sub *Subscription) { b.deliver(sub, msg) })
}

// walk visits subscriptions whose pattern matches the remaining levels.
func (b *Bus) walk(n *node, rest Topic, fn func(*Subscription)) {
	if n == nil {
		return
	}
	if h := n.children[WildRest]; h != nil {
		for _, s := range h.subs {
			fn(s)
		}
	}
	if len(rest) == 0 {
		for _, s := range n.subs {
			fn(s)
		}
		return
	}
	b.walk(n.children[rest[0]], rest[1:], fn)
	if rest[0] != WildOne {
		b.walk(n.children[WildOne], rest[1:], fn)
	}
}

// deliver enqueues msg, evicting the oldest queued message when full.
func (b *Bus) deliver(sub *Subscription, msg *Message) {
	for {
		select {
		case sub.ch <- msg:
			return
		default:
		}
		select {
		case <-sub.ch:
			b.drops.Add(1)
		default:
		}
	}
}

func (b *Bus) unsubscribe(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	path := []*node{n}
	for _, lvl := range sub.topic {
		child := n.children[lvl]
		if child == nil {
			return false
		}
		n = child
		path = append(path, n)
	}
	found := false
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			found = true
			break
		}
	}
	for i := len(sub.topic) - 1; i >= 0; i-- {
		child := path[i+1]
		if len(child.subs) > 0 || len(child.children) > 0 {
			break
		}
		delete(path[i].children, sub.topic[i])
	}
	return found
}

// Connection groups the subscriptions of one client.
type Connection struct {
	bus *Bus
	id  string

	mu   sync.Mutex
	subs []*Subscription
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(t Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(t, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	if !c.bus.unsubscribe(sub) {
		return
	}
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect unsubscribes everything.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		if c.bus.unsubscribe(sub) {
			close(sub.ch)
		}
	}
}

// Request gives msg a private reply topic, subscribes to it and publishes
// msg. The caller unsubscribes when done.
func (c *Connection) Request(msg *Message) *Subscription {
	n := c.bus.replySeq.Add(1)
	msg.ReplyTo = T("_reply", c.id, strconv.FormatUint(n, 10))
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait publishes msg and waits for the first reply.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case reply := <-sub.Channel():
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers req on its reply topic. Requests without one are ignored.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
}
