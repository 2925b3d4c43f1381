package backtest

import "strings"

// Subscriber receives messages published to a matching topic.
type Subscriber func(topic string, payload any)

type subscription struct {
	pattern string
	handler Subscriber
}

// MessageBus is a topic-based publish/subscribe dispatcher with wildcard
// subscription (e.g. "events.position.*"). Delivery is
// synchronous on the calling goroutine: Publish invokes every matching
// subscriber, in registration order, before returning. Handlers must not
// subscribe or unsubscribe during delivery — any such mutation is queued
// and applied after the current Publish completes.
type MessageBus struct {
	subs      []subscription
	inPublish bool
	pending   []func()
}

// NewMessageBus creates an empty MessageBus.
func NewMessageBus() *MessageBus { return &MessageBus{} }

// Subscribe registers handler for topics matching pattern. A pattern segment
// of "*" matches exactly one dot-separated segment; there is no multi-segment
// wildcard. Patterns are matched against the full topic string.
func (b *MessageBus) Subscribe(pattern string, handler Subscriber) {
	apply := func() { b.subs = append(b.subs, subscription{pattern: pattern, handler: handler}) }
	if b.inPublish {
		b.pending = append(b.pending, apply)
		return
	}
	apply()
}

// Unsubscribe removes all subscriptions registered with exactly this pattern
// and handler reference equality is not attempted (handlers are closures);
// callers that need fine-grained removal should track a boolean guard inside
// their handler instead. This matches the coarse unsubscribe-by-pattern need
// this package itself has (e.g. resetting between runs).
func (b *MessageBus) Unsubscribe(pattern string) {
	apply := func() {
		out := b.subs[:0]
		for _, s := range b.subs {
			if s.pattern != pattern {
				out = append(out, s)
			}
		}
		b.subs = out
	}
	if b.inPublish {
		b.pending = append(b.pending, apply)
		return
	}
	apply()
}

// Publish delivers payload to every subscriber whose pattern matches topic,
// in registration order, then returns.
func (b *MessageBus) Publish(topic string, payload any) {
	b.inPublish = true
	for _, s := range b.subs {
		if topicMatches(s.pattern, topic) {
			s.handler(topic, payload)
		}
	}
	b.inPublish = false

	if len(b.pending) > 0 {
		pending := b.pending
		b.pending = nil
		for _, apply := range pending {
			apply()
		}
	}
}

// topicMatches reports whether topic matches pattern, where "*" in pattern
// matches exactly one "."-delimited segment of topic.
func topicMatches(pattern, topic string) bool {
	pSegs := strings.Split(pattern, ".")
	tSegs := strings.Split(topic, ".")
	if len(pSegs) != len(tSegs) {
		return false
	}
	for i, p := range pSegs {
		if p != "*" && p != tSegs[i] {
			return false
		}
	}
	return true
}
