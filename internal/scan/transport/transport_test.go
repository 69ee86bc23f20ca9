package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/footscan/internal/config"
	"github.com/banshee-data/footscan/internal/monitoring"
	"github.com/banshee-data/footscan/internal/scan/pointbuf"
	"github.com/banshee-data/footscan/internal/scan/session"
	"github.com/banshee-data/footscan/internal/scan/tuning"
)

type fakeScanner struct {
	mu       sync.Mutex
	startErr error
	starts   int
	running  bool
}

func (f *fakeScanner) Start(context.Context) (session.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return session.Info{}, f.startErr
	}
	if f.running {
		return session.Info{}, session.ErrAlreadyRunning
	}
	f.running = true
	return session.Info{ID: "s1", Platform: "test"}, nil
}

func (f *fakeScanner) Stop() (session.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return session.Summary{}, nil
}

type harness struct {
	pub    *Publisher
	client *Client
	store  *tuning.Store
}

func startHarness(t *testing.T, sc Scanner, probe Prober) *harness {
	t.Helper()
	t.Cleanup(monitoring.Mute())

	lis := bufconn.Listen(1 << 20)
	pub := NewPublisher(DefaultConfig())
	store := tuning.NewStore(tuning.Default())
	srv := NewServer(pub, sc, config.NewApplier(store), probe)
	require.NoError(t, pub.Serve(lis, srv))
	t.Cleanup(pub.Stop)

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return &harness{pub: pub, client: client, store: store}
}

func staticProbe(c session.Capability) Prober {
	return func(context.Context) session.Capability { return c }
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStartScan_FailureIsUnavailable(t *testing.T) {
	sc := &fakeScanner{startErr: errors.New("camera permission denied")}
	h := startHarness(t, sc, staticProbe(session.Capability{}))

	err := h.client.StartScan(testCtx(t))
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "permission denied")
	assert.Equal(t, 1, sc.starts, "no retry")
}

func TestStartStopScan(t *testing.T) {
	sc := &fakeScanner{}
	h := startHarness(t, sc, staticProbe(session.Capability{}))
	ctx := testCtx(t)

	require.NoError(t, h.client.StartScan(ctx))
	err := h.client.StartScan(ctx)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	require.NoError(t, h.client.StopScan(ctx))
	require.NoError(t, h.client.StopScan(ctx), "stopping an idle scanner succeeds")
}

func TestConfigure_PartialApplication(t *testing.T) {
	h := startHarness(t, &fakeScanner{}, staticProbe(session.Capability{}))

	applied, rejected, err := h.client.Configure(testCtx(t), map[string]any{
		"autoTune":  false,
		"targetFps": "fast",
		"maxPoints": 2000,
		"bogus":     1,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"autoTune", "maxPoints"}, applied)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0], "targetFps")

	st := h.store.Load()
	assert.False(t, st.AutoTune)
	assert.Equal(t, 2000, st.MaxPoints)
	assert.Equal(t, 15.0, st.TargetFPS)
}

func TestCapabilities(t *testing.T) {
	want := session.Capability{Platform: "ios", DepthSupported: true}
	h := startHarness(t, &fakeScanner{}, staticProbe(want))

	got, err := h.client.Capabilities(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func waitClients(t *testing.T, p *Publisher, n int32) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Stats().ClientCount == n },
		2*time.Second, time.Millisecond)
}

func TestStreams_DeliverByTopic(t *testing.T) {
	h := startHarness(t, &fakeScanner{}, staticProbe(session.Capability{}))
	ctx, cancel := context.WithCancel(testCtx(t))
	defer cancel()

	points := make(chan []byte, 4)
	previews := make(chan []byte, 4)
	go h.client.StreamPoints(ctx, func(b []byte) error { points <- b; return nil })
	go h.client.StreamPreview(ctx, func(b []byte) error { previews <- b; return nil })
	waitClients(t, h.pub, 2)

	h.pub.PublishPoints(1, []byte{1, 0, 0, 0, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9})
	h.pub.PublishPreview(1, []byte{0xff, 0xd8})

	select {
	case got := <-points:
		assert.Len(t, got, 16)
	case <-time.After(2 * time.Second):
		t.Fatal("no point frame received")
	}
	select {
	case got := <-previews:
		assert.Equal(t, []byte{0xff, 0xd8}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no preview frame received")
	}
	assert.Empty(t, points, "preview leaked into the point stream")
}

func TestStreams_MaxClients(t *testing.T) {
	defer monitoring.Mute()()
	lis := bufconn.Listen(1 << 20)
	pub := NewPublisher(Config{MaxClients: 1})
	srv := NewServer(pub, &fakeScanner{}, config.NewApplier(tuning.NewStore(tuning.Default())), staticProbe(session.Capability{}))
	require.NoError(t, pub.Serve(lis, srv))
	defer pub.Stop()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(testCtx(t))
	defer cancel()
	go client.StreamPoints(ctx, func([]byte) error { return nil })
	waitClients(t, pub, 1)

	err = client.StreamPoints(ctx, func([]byte) error { return nil })
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestPublisher_DropsWhenNotRunning(t *testing.T) {
	p := NewPublisher(DefaultConfig())
	p.PublishPoints(1, []byte{0, 0, 0, 0})
	assert.Zero(t, p.Stats().FrameCount)
	p.Stop() // idle stop is a no-op
}

func TestEndToEnd_SyntheticSession(t *testing.T) {
	cfg := session.DefaultSyntheticConfig()
	cfg.Width, cfg.Height = 128, 96
	cfg.Fx, cfg.Fy = 106, 106
	cfg.FPS = 100
	src := session.NewSynthetic(cfg, nil)

	lis := bufconn.Listen(1 << 20)
	pub := NewPublisher(DefaultConfig())
	sess := session.New(session.Config{Source: src, Points: pub, Preview: pub})
	probe := func(ctx context.Context) session.Capability { return session.Probe(ctx, src) }
	srv := NewServer(pub, sess, config.NewApplier(sess.Pipeline().Tuning()), probe)
	require.NoError(t, pub.Serve(lis, srv))
	defer pub.Stop()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(testCtx(t))
	defer cancel()

	caps, err := client.Capabilities(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Capability{Platform: "synthetic", DepthSupported: true}, caps)

	frames := make(chan []byte, 16)
	go client.StreamPoints(ctx, func(b []byte) error {
		select {
		case frames <- b:
		default:
		}
		return nil
	})
	waitClients(t, pub, 1)

	require.NoError(t, client.StartScan(ctx))
	defer client.StopScan(context.Background())

	select {
	case buf := <-frames:
		pts, err := pointbuf.Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, pointbuf.Size(len(pts)), len(buf))
	case <-ctx.Done():
		t.Fatal("no cloud streamed")
	}
	require.NoError(t, client.StopScan(ctx))
	assert.Zero(t, src.Outstanding())
}
