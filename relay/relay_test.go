package relay

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/VanDung-dev/corky-relay/internal/testutil"
	"github.com/VanDung-dev/corky-relay/logging"
	"github.com/VanDung-dev/corky-relay/network"
)

// lockedBuffer lets the plane goroutine log while the test reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// lines returns the JSON log lines at level.
func (b *lockedBuffer) lines(level string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, line := range bytes.Split(bytes.TrimSpace(b.buf.Bytes()), []byte("\n")) {
		if gjson.GetBytes(line, "level").String() == level {
			out = append(out, string(line))
		}
	}
	return out
}

type brokerHarness struct {
	cfg     BrokerConfig
	metrics *Metrics
	logs    *lockedBuffer
	cancel  context.CancelFunc
	done    chan error
}

func startBroker(t *testing.T) *brokerHarness {
	t.Helper()

	h := &brokerHarness{
		cfg: BrokerConfig{
			DirectEndpoint: testutil.FreeEndpoint(t),
			ClientEndpoint: testutil.FreeEndpoint(t),
			WorkerEndpoint: testutil.FreeEndpoint(t),
			PollTimeout:    10 * time.Millisecond,
			Tuning:         network.DefaultTuning(),
		},
		metrics: NewMetrics(prometheus.NewRegistry(), "test"),
		logs:    &lockedBuffer{},
		done:    make(chan error, 1),
	}
	logger := logging.New(h.logs, logging.Options{Level: slog.LevelDebug, Format: logging.FormatJSON})

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	broker := NewBrokerPlane(h.cfg, logger, h.metrics)
	go func() { h.done <- broker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(h.metrics.PlaneUp.WithLabelValues(BrokerPlaneName)) == 1
	}, 5*time.Second, 10*time.Millisecond, "broker never came up")

	t.Cleanup(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("broker did not stop")
		}
	})
	return h
}

func dial(t *testing.T, endpoint, identity string) zmq4.Socket {
	t.Helper()
	var extra []zmq4.Option
	if identity != "" {
		extra = append(extra, network.WithIdentity(identity))
	}
	sck, err := network.Connect(context.Background(), network.Dealer, endpoint, network.DefaultTuning(), extra...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sck.Close() })
	return sck
}

func TestReverseEnvelope(t *testing.T) {
	got, ok := ReverseEnvelope(testutil.Frames("alice", "bob", "hi"))
	require.True(t, ok)
	assert.Equal(t, testutil.Frames("bob", "alice", "hi"), got)

	for _, n := range []int{0, 1, 2, 4} {
		frames := make([][]byte, n)
		_, ok := ReverseEnvelope(frames)
		assert.False(t, ok, "%d frames", n)
	}
}

func TestReverseEnvelopeKeepsEmptyFrames(t *testing.T) {
	got, ok := ReverseEnvelope([][]byte{[]byte("a"), {}, []byte("x")})
	require.True(t, ok)
	assert.Empty(t, got[0])
	assert.Equal(t, "a", string(got[1]))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordForward(RouteDirect)
		m.RecordDrop()
		m.RecordTransportError(SocketDirect, "send")
		m.RecordRestart(BrokerPlaneName)
		m.SetPlaneUp(ProxyPlaneName, true)
	})
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "test")

	m.RecordForward(RouteClientToWorker)
	m.RecordForward(RouteClientToWorker)
	m.RecordDrop()
	m.RecordTransportError(SocketWorker, "send")
	m.RecordRestart(ProxyPlaneName)
	m.SetPlaneUp(BrokerPlaneName, true)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.MessagesForwarded.WithLabelValues(RouteClientToWorker)))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.MessagesForwarded.WithLabelValues(RouteDirect)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.EnvelopesDropped))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.TransportErrors.WithLabelValues(SocketWorker, "send")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.PlaneRestarts.WithLabelValues(ProxyPlaneName)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.PlaneUp.WithLabelValues(BrokerPlaneName)))

	m.SetPlaneUp(BrokerPlaneName, false)
	assert.Equal(t, 0.0, promtest.ToFloat64(m.PlaneUp.WithLabelValues(BrokerPlaneName)))
}

func TestMetricsServerEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")
	m.RecordDrop()

	srv := httptest.NewServer(NewMetricsServer(":0", reg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "test_envelopes_dropped_total 1")
}

func TestBrokerForwardsRequestAndReply(t *testing.T) {
	h := startBroker(t)

	worker := dial(t, h.cfg.WorkerEndpoint, "")
	client := dial(t, h.cfg.ClientEndpoint, "client-1")
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, client.SendMulti(zmq4.NewMsgFrom([]byte{}, []byte("ping"))))

	req, ok := testutil.RecvTimeout(worker, 5*time.Second)
	require.True(t, ok, "worker got no request")
	require.Len(t, req.Frames, 3)
	assert.Equal(t, "client-1", string(req.Frames[0]))
	assert.Empty(t, req.Frames[1])
	assert.Equal(t, "ping", string(req.Frames[2]))

	require.NoError(t, worker.SendMulti(zmq4.NewMsgFrom(req.Frames[0], req.Frames[1], []byte("pong"))))

	rep, ok := testutil.RecvTimeout(client, 5*time.Second)
	require.True(t, ok, "client got no reply")
	assert.Equal(t, testutil.Frames("", "pong"), rep.Frames)

	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.MessagesForwarded.WithLabelValues(RouteClientToWorker)))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.MessagesForwarded.WithLabelValues(RouteWorkerToClient)))
}

func TestBrokerDirectRelay(t *testing.T) {
	h := startBroker(t)

	alice := dial(t, h.cfg.DirectEndpoint, "alice")
	bob := dial(t, h.cfg.DirectEndpoint, "bob")
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, alice.SendMulti(zmq4.NewMsgFrom([]byte("bob"), []byte("hi"))))

	msg, ok := testutil.RecvTimeout(bob, 5*time.Second)
	require.True(t, ok, "bob got nothing")
	assert.Equal(t, testutil.Frames("alice", "hi"), msg.Frames)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.MessagesForwarded.WithLabelValues(RouteDirect)))
}

func TestBrokerDropsMalformedDirect(t *testing.T) {
	h := startBroker(t)

	alice := dial(t, h.cfg.DirectEndpoint, "alice")
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, alice.Send(zmq4.NewMsgString("just-one-frame")))

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(h.metrics.EnvelopesDropped) == 1
	}, 5*time.Second, 10*time.Millisecond)

	warns := h.logs.lines("warn")
	require.Len(t, warns, 1)
	assert.Equal(t, int64(2), gjson.Get(warns[0], logging.KeyFrames).Int())
	assert.Contains(t, gjson.Get(warns[0], logging.KeyMessage).String(), "just-one-frame")

	_, ok := testutil.RecvTimeout(alice, 200*time.Millisecond)
	assert.False(t, ok, "malformed message must not produce a reply")
	assert.Equal(t, 0.0, promtest.ToFloat64(h.metrics.MessagesForwarded.WithLabelValues(RouteDirect)))
}

func TestBrokerStopsOnCancel(t *testing.T) {
	h := startBroker(t)
	h.cancel()

	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("broker ignored cancellation")
	}
	assert.Equal(t, 0.0, promtest.ToFloat64(h.metrics.PlaneUp.WithLabelValues(BrokerPlaneName)))
}

func TestBrokerBindFailureReleasesSockets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := BrokerConfig{
		DirectEndpoint: testutil.FreeEndpoint(t),
		ClientEndpoint: testutil.FreeEndpoint(t),
		WorkerEndpoint: testutil.FreeEndpoint(t),
		Tuning:         network.DefaultTuning(),
	}
	taken, err := network.Bind(ctx, network.Dealer, cfg.WorkerEndpoint, network.DefaultTuning())
	require.NoError(t, err)
	defer taken.Close()

	err = NewBrokerPlane(cfg, nil, nil).Run(ctx)
	require.ErrorIs(t, err, network.ErrBind)
	assert.Contains(t, err.Error(), cfg.WorkerEndpoint)

	again, err := network.Bind(ctx, network.Router, cfg.DirectEndpoint, network.DefaultTuning())
	require.NoError(t, err, "direct endpoint still held after failed attempt")
	_ = again.Close()
}

func TestProxyBindFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := ProxyConfig{
		XSubEndpoint: testutil.FreeEndpoint(t),
		XPubEndpoint: testutil.FreeEndpoint(t),
		Tuning:       network.DefaultTuning(),
	}
	taken, err := network.Bind(ctx, network.XSub, cfg.XSubEndpoint, network.DefaultTuning())
	require.NoError(t, err)
	defer taken.Close()

	err = NewProxyPlane(cfg, nil, nil).Run(ctx)
	assert.ErrorIs(t, err, network.ErrBind)
}

func TestProxyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	metrics := NewMetrics(prometheus.NewRegistry(), "test")

	cfg := ProxyConfig{
		XSubEndpoint: testutil.FreeEndpoint(t),
		XPubEndpoint: testutil.FreeEndpoint(t),
		Tuning:       network.DefaultTuning(),
	}
	done := make(chan error, 1)
	go func() { done <- NewProxyPlane(cfg, nil, metrics).Run(ctx) }()

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(metrics.PlaneUp.WithLabelValues(ProxyPlaneName)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("proxy ignored cancellation")
	}
}

type proxyHarness struct {
	cfg     ProxyConfig
	metrics *Metrics
	cancel  context.CancelFunc
	done    chan error
}

func startProxy(t *testing.T) *proxyHarness {
	t.Helper()

	h := &proxyHarness{
		cfg: ProxyConfig{
			XSubEndpoint:        testutil.FreeEndpoint(t),
			XPubEndpoint:        testutil.FreeEndpoint(t),
			PollTimeout:         10 * time.Millisecond,
			ResubscribeInterval: 50 * time.Millisecond,
			Tuning:              network.DefaultTuning(),
		},
		metrics: NewMetrics(prometheus.NewRegistry(), "test"),
		done:    make(chan error, 1),
	}

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	proxy := NewProxyPlane(h.cfg, nil, h.metrics)
	go func() { h.done <- proxy.Run(ctx) }()

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(h.metrics.PlaneUp.WithLabelValues(ProxyPlaneName)) == 1
	}, 5*time.Second, 10*time.Millisecond, "proxy never came up")

	t.Cleanup(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("proxy did not stop")
		}
	})
	return h
}

// subscribe connects a SUB to the proxy's XPUB side and streams what it
// receives until the test ends.
func subscribe(t *testing.T, endpoint string, topics ...string) <-chan zmq4.Msg {
	t.Helper()
	sub, err := network.Connect(context.Background(), network.Sub, endpoint, network.DefaultTuning())
	require.NoError(t, err)
	for _, topic := range topics {
		require.NoError(t, sub.SetOption(zmq4.OptionSubscribe, topic))
	}

	out := make(chan zmq4.Msg, 64)
	stop := make(chan struct{})
	t.Cleanup(func() {
		close(stop)
		_ = sub.Close()
	})
	go func() {
		for {
			msg, err := sub.Recv()
			if err != nil {
				return
			}
			select {
			case out <- msg:
			case <-stop:
				return
			}
		}
	}()
	return out
}

func publisher(t *testing.T, endpoint string) zmq4.Socket {
	t.Helper()
	pub, err := network.Connect(context.Background(), network.Pub, endpoint, network.DefaultTuning())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })
	return pub
}

// publishUntil republishes msgs every interval until one arrives on recv.
func publishUntil(t *testing.T, pub zmq4.Socket, recv <-chan zmq4.Msg, msgs ...zmq4.Msg) zmq4.Msg {
	t.Helper()
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		for _, m := range msgs {
			require.NoError(t, pub.SendMulti(m))
		}
		select {
		case got := <-recv:
			return got
		case <-tick.C:
		case <-deadline:
			t.Fatal("no publication reached the subscriber")
		}
	}
}

func TestProxyRelaysPublications(t *testing.T) {
	h := startProxy(t)
	recv := subscribe(t, h.cfg.XPubEndpoint, "", "topic")
	pub := publisher(t, h.cfg.XSubEndpoint)

	got := publishUntil(t, pub, recv, zmq4.NewMsgFrom(testutil.Frames("topic", "a", "b")...))
	assert.Equal(t, testutil.Frames("topic", "a", "b"), got.Frames)

	// Once the path is up, a burst arrives whole and in order.
	for _, body := range []string{"1", "2", "3"} {
		require.NoError(t, pub.SendMulti(zmq4.NewMsgFrom(testutil.Frames("seq", body)...)))
	}
	var bodies []string
	timeout := time.After(5 * time.Second)
	for len(bodies) < 3 {
		select {
		case msg := <-recv:
			if string(msg.Frames[0]) != "seq" {
				continue
			}
			require.Len(t, msg.Frames, 2)
			bodies = append(bodies, string(msg.Frames[1]))
		case <-timeout:
			t.Fatalf("burst incomplete: %v", bodies)
		}
	}
	assert.Equal(t, []string{"1", "2", "3"}, bodies)
	assert.GreaterOrEqual(t, promtest.ToFloat64(h.metrics.MessagesForwarded.WithLabelValues(RoutePublish)), 4.0)
	assert.Positive(t, promtest.ToFloat64(h.metrics.MessagesForwarded.WithLabelValues(RouteSubscription)))
}

func TestProxyFiltersByTopic(t *testing.T) {
	h := startProxy(t)
	recv := subscribe(t, h.cfg.XPubEndpoint, "news")
	pub := publisher(t, h.cfg.XSubEndpoint)

	sports := zmq4.NewMsgFrom(testutil.Frames("sports", "x")...)
	news := zmq4.NewMsgFrom(testutil.Frames("news", "a", "b")...)
	got := publishUntil(t, pub, recv, sports, news)
	assert.Equal(t, testutil.Frames("news", "a", "b"), got.Frames)

	require.NoError(t, pub.SendMulti(sports))
	require.NoError(t, pub.SendMulti(news))
	quiet := time.After(300 * time.Millisecond)
	for {
		select {
		case msg := <-recv:
			assert.Equal(t, "news", string(msg.Frames[0]), "unsubscribed topic delivered")
		case <-quiet:
			return
		}
	}
}

func TestProxyReplaysSubscriptionsToLatePublishers(t *testing.T) {
	h := startProxy(t)
	recv := subscribe(t, h.cfg.XPubEndpoint, "late")

	// Let the subscription reach the proxy before any publisher exists.
	require.Eventually(t, func() bool {
		return promtest.ToFloat64(h.metrics.MessagesForwarded.WithLabelValues(RouteSubscription)) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	pub := publisher(t, h.cfg.XSubEndpoint)
	got := publishUntil(t, pub, recv, zmq4.NewMsgFrom(testutil.Frames("late", "hello")...))
	assert.Equal(t, testutil.Frames("late", "hello"), got.Frames)
}
