package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTopics struct{ topics []string }

func (s *staticTopics) Topics() []string { return s.topics }

type recordingSender struct {
	frames []string
	err    error
}

func (r *recordingSender) Send(msg zmq4.Msg) error {
	r.frames = append(r.frames, string(msg.Frames[0]))
	return r.err
}

func TestSubscriptionFrame(t *testing.T) {
	assert.Equal(t, []byte("\x01news"), SubscriptionFrame(true, "news"))
	assert.Equal(t, []byte("\x00news"), SubscriptionFrame(false, "news"))
	assert.Equal(t, []byte{1}, SubscriptionFrame(true, ""))
}

func TestSubscriptionMirrorSendsDifferences(t *testing.T) {
	source := &staticTopics{topics: []string{"b", "a"}}
	sender := &recordingSender{}
	m := newSubscriptionMirror(source, sender, time.Hour)
	start := time.Now()

	changes, err := m.sync(start)
	require.NoError(t, err)
	assert.Equal(t, []SubscriptionChange{{"a", true}, {"b", true}}, changes)
	assert.Equal(t, []string{"\x01a", "\x01b"}, sender.frames)

	sender.frames = nil
	changes, err = m.sync(start.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, sender.frames, "unchanged set resent before replay is due")

	source.topics = []string{"b", "c"}
	changes, err = m.sync(start.Add(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, []SubscriptionChange{{"c", true}, {"a", false}}, changes)
	assert.Equal(t, []string{"\x01c", "\x00a"}, sender.frames)
}

func TestSubscriptionMirrorReplaysWholeSet(t *testing.T) {
	source := &staticTopics{topics: []string{"x", "y"}}
	sender := &recordingSender{}
	m := newSubscriptionMirror(source, sender, 100*time.Millisecond)
	start := time.Now()

	_, err := m.sync(start)
	require.NoError(t, err)

	sender.frames = nil
	changes, err := m.sync(start.Add(150 * time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, []string{"\x01x", "\x01y"}, sender.frames)
}

func TestSubscriptionMirrorReportsFirstSendError(t *testing.T) {
	boom := errors.New("send queue full")
	source := &staticTopics{topics: []string{"a", "b"}}
	sender := &recordingSender{err: boom}
	m := newSubscriptionMirror(source, sender, time.Hour)

	changes, err := m.sync(time.Now())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, changes, 2)
	assert.Len(t, sender.frames, 2, "later frames skipped after an error")
}
