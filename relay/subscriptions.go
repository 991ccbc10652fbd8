package relay

import (
	"maps"
	"slices"
	"time"

	"github.com/go-zeromq/zmq4"
)

// Subscription frame prefixes, as sent from subscribers to publishers.
const (
	unsubscribeFlag byte = 0
	subscribeFlag   byte = 1
)

// topicSource reports the topics currently subscribed on a socket; the
// XPUB socket implements it.
type topicSource interface {
	Topics() []string
}

// frameSender is the XSUB side the subscription frames are written to.
type frameSender interface {
	Send(msg zmq4.Msg) error
}

// SubscriptionFrame builds the control frame that subscribes to (or
// unsubscribes from) topic.
func SubscriptionFrame(subscribe bool, topic string) []byte {
	flag := unsubscribeFlag
	if subscribe {
		flag = subscribeFlag
	}
	return append([]byte{flag}, topic...)
}

// SubscriptionChange is one topic added or removed upstream.
type SubscriptionChange struct {
	Topic     string
	Subscribe bool
}

// subscriptionMirror keeps the publishers behind the XSUB socket subscribed
// to exactly the topics the XPUB side's subscribers want. The XPUB socket
// consumes subscription frames itself, so they are re-derived from its
// topic set rather than forwarded as received.
type subscriptionMirror struct {
	source   topicSource
	upstream frameSender
	active   map[string]struct{}

	// Publishers that connect later have missed earlier frames, so the
	// whole set is resent every replay interval.
	replay     time.Duration
	lastReplay time.Time
}

func newSubscriptionMirror(source topicSource, upstream frameSender, replay time.Duration) *subscriptionMirror {
	return &subscriptionMirror{
		source:   source,
		upstream: upstream,
		active:   make(map[string]struct{}),
		replay:   replay,
	}
}

// sync sends the frames needed to bring upstream in line with source and
// returns the changes made. All frames are attempted; the first send error
// is returned.
func (m *subscriptionMirror) sync(now time.Time) ([]SubscriptionChange, error) {
	want := make(map[string]struct{})
	for _, t := range m.source.Topics() {
		want[t] = struct{}{}
	}

	replay := now.Sub(m.lastReplay) >= m.replay
	if replay {
		m.lastReplay = now
	}

	var (
		changes  []SubscriptionChange
		firstErr error
	)
	send := func(subscribe bool, topic string) {
		err := m.upstream.Send(zmq4.NewMsg(SubscriptionFrame(subscribe, topic)))
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, t := range slices.Sorted(maps.Keys(want)) {
		_, known := m.active[t]
		if !known {
			changes = append(changes, SubscriptionChange{Topic: t, Subscribe: true})
		}
		if !known || replay {
			send(true, t)
		}
	}
	for _, t := range slices.Sorted(maps.Keys(m.active)) {
		if _, still := want[t]; !still {
			changes = append(changes, SubscriptionChange{Topic: t, Subscribe: false})
			send(false, t)
		}
	}

	m.active = want
	return changes, firstErr
}
