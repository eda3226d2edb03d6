package miniredis

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

// SubscriptionSink receives pub/sub messages. OnMessage is called on the
// event loop goroutine, one message at a time; it must not block for long.
type SubscriptionSink interface {
	OnMessage(channel, payload string)
}

// SinkFunc adapts a function to SubscriptionSink.
type SinkFunc func(channel, payload string)

// OnMessage calls f(channel, payload).
func (f SinkFunc) OnMessage(channel, payload string) {
	f(channel, payload)
}

// logSink is used when no sink was configured.
type logSink struct {
	logger hclog.Logger
}

func (s logSink) OnMessage(channel, payload string) {
	s.logger.Info("message received", "channel", channel, "payload", payload)
}

// Router dispatches pub/sub frames. Every frame must be a three element
// array [type, channel, payload-or-count]. Subscribe and unsubscribe
// acknowledgements update the subscription set; any other type is handed
// to the sink. Malformed frames are logged and dropped.
type Router struct {
	mu   sync.Mutex
	sink SubscriptionSink
	subs map[string]struct{}

	logger     hclog.Logger
	metrics    *Metrics
	limiter    *rate.Limiter
	suppressed int
}

// NewRouter creates a router. A nil sink logs every message.
func NewRouter(sink SubscriptionSink, logger hclog.Logger, metrics *Metrics) *Router {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if sink == nil {
		sink = logSink{logger: logger}
	}
	return &Router{
		sink:    sink,
		subs:    make(map[string]struct{}),
		logger:  logger,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// SetSink replaces the sink. A nil sink restores the logging default.
func (rt *Router) SetSink(sink SubscriptionSink) {
	if sink == nil {
		sink = logSink{logger: rt.logger}
	}
	rt.mu.Lock()
	rt.sink = sink
	rt.mu.Unlock()
}

// Route dispatches one frame and releases it. The returned error is the
// *ProtocolError for a malformed frame, already logged.
func (rt *Router) Route(frame *Reply) error {
	defer frame.Release()

	if frame == nil || frame.Kind != KindArray {
		kind := "no reply"
		if frame != nil {
			kind = frame.Kind.String() + " reply"
		}
		return rt.malformed(kind + " is not an array")
	}
	if len(frame.Elems) != 3 {
		return rt.malformed("array has " + strconv.Itoa(len(frame.Elems)) + " elements, want 3")
	}
	head := frame.Elems[0]
	if head.Kind != KindBulk && head.Kind != KindStatus {
		return rt.malformed("frame type is a " + head.Kind.String() + " reply")
	}

	typ := strings.ToLower(string(head.Str))
	channel := elemString(frame.Elems[1])

	switch typ {
	case FrameSubscribe:
		rt.mu.Lock()
		rt.subs[channel] = struct{}{}
		n := len(rt.subs)
		rt.mu.Unlock()
		rt.metrics.setSubscriptions(n)
		rt.logger.Debug("subscribed", "channel", channel, "count", n)
	case FrameUnsubscribe:
		rt.mu.Lock()
		delete(rt.subs, channel)
		n := len(rt.subs)
		rt.mu.Unlock()
		rt.metrics.setSubscriptions(n)
		rt.logger.Debug("unsubscribed", "channel", channel, "count", n)
	default:
		payload := elemString(frame.Elems[2])
		rt.mu.Lock()
		sink := rt.sink
		rt.mu.Unlock()
		rt.metrics.messageDelivered()
		sink.OnMessage(channel, payload)
	}
	return nil
}

func (rt *Router) malformed(msg string) error {
	err := newMalformedFrameError(msg)
	rt.metrics.protocolError("pubsub")

	rt.mu.Lock()
	allow := rt.limiter.Allow()
	suppressed := rt.suppressed
	if allow {
		rt.suppressed = 0
	} else {
		rt.suppressed++
	}
	rt.mu.Unlock()

	if allow {
		rt.logger.Warn("dropping frame", "error", err, "suppressed", suppressed)
	}
	return err
}

// Subscriptions returns the subscribed channels in sorted order.
func (rt *Router) Subscriptions() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]string, 0, len(rt.subs))
	for ch := range rt.subs {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// IsSubscribed reports whether channel has been acknowledged by the server.
func (rt *Router) IsSubscribed(channel string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, ok := rt.subs[channel]
	return ok
}

// reset forgets all subscriptions; the server drops them with the connection.
func (rt *Router) reset() {
	rt.mu.Lock()
	clear(rt.subs)
	rt.mu.Unlock()
	rt.metrics.setSubscriptions(0)
}

// pubsubFrame reports the frame type and, for acknowledgements, the
// subscription count of a well-formed pub/sub frame. ok is false for any
// other reply.
func pubsubFrame(r *Reply) (typ string, count int64, ok bool) {
	if r == nil || r.Kind != KindArray || len(r.Elems) != 3 {
		return "", 0, false
	}
	head := r.Elems[0]
	if head.Kind != KindBulk && head.Kind != KindStatus {
		return "", 0, false
	}
	typ = strings.ToLower(string(head.Str))
	switch typ {
	case FrameSubscribe, FrameUnsubscribe:
		if r.Elems[2].Kind != KindInteger {
			return "", 0, false
		}
		return typ, r.Elems[2].Int, true
	case FrameMessage:
		return typ, 0, true
	}
	return "", 0, false
}
