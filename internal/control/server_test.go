package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketDir returns a short temporary directory; unix socket paths are
// limited to roughly a hundred bytes.
func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ctl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) add(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func (c *collector) waitFor(t *testing.T, n int) []Message {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.snapshot()) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return c.snapshot()
}

func fixedSuffixes(suffixes ...string) (func() string, *int) {
	calls := 0
	return func() string {
		s := suffixes[calls%len(suffixes)]
		calls++
		return s
	}, &calls
}

// startServer binds and serves, returning the Serve result channel.
func startServer(t *testing.T, srv *Server) <-chan error {
	t.Helper()
	require.NoError(t, srv.Listen())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return errCh
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewServerDefaults(t *testing.T) {
	srv := NewServer(Config{}, nil)

	assert.Equal(t, DefaultPrefix, srv.cfg.Prefix)
	assert.Equal(t, DefaultBindAttempts, srv.cfg.BindAttempts)
	assert.Equal(t, DefaultReconnectGrace, srv.cfg.ReconnectGrace)
	assert.Equal(t, ServerInitial, srv.Status())
	assert.Empty(t, srv.Path())
}

func TestRandomSuffix(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := randomSuffix()
		require.Len(t, s, suffixDigits)
		for _, r := range s {
			require.True(t, r >= '0' && r <= '9', s)
		}
	}
}

func TestListenBindsPrefixedPath(t *testing.T) {
	dir := socketDir(t)
	srv := NewServer(Config{Dir: dir, Prefix: "test-notifier-"}, nil)

	require.NoError(t, srv.Listen())
	defer srv.Shutdown(context.Background())

	assert.Equal(t, ServerListening, srv.Status())
	name := filepath.Base(srv.Path())
	assert.Regexp(t, `^test-notifier-\d{12}$`, name)

	info, err := os.Stat(srv.Path())
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSocket)

	assert.ErrorIs(t, srv.Listen(), ErrAlreadyListening)
}

func TestListenRetriesAddressInUse(t *testing.T) {
	dir := socketDir(t)
	taken, err := net.Listen("unix", filepath.Join(dir, DefaultPrefix+"000000000001"))
	require.NoError(t, err)
	defer taken.Close()

	srv := NewServer(Config{Dir: dir}, nil)
	suffix, calls := fixedSuffixes("000000000001", "000000000001", "000000000002")
	srv.suffix = suffix

	require.NoError(t, srv.Listen())
	defer srv.Shutdown(context.Background())

	assert.Equal(t, 3, *calls)
	assert.Equal(t, filepath.Join(dir, DefaultPrefix+"000000000002"), srv.Path())
}

func TestListenExhaustsRetries(t *testing.T) {
	dir := socketDir(t)
	taken, err := net.Listen("unix", filepath.Join(dir, DefaultPrefix+"000000000001"))
	require.NoError(t, err)
	defer taken.Close()

	srv := NewServer(Config{Dir: dir}, nil)
	suffix, calls := fixedSuffixes("000000000001")
	srv.suffix = suffix

	err = srv.Listen()
	assert.ErrorIs(t, err, ErrBindExhausted)
	assert.Equal(t, DefaultBindAttempts, *calls)
	assert.Equal(t, ServerInitial, srv.Status())
	assert.Empty(t, srv.Path())
}

func TestListenPropagatesOtherErrors(t *testing.T) {
	srv := NewServer(Config{Dir: filepath.Join(socketDir(t), "missing")}, nil)
	suffix, calls := fixedSuffixes("000000000001")
	srv.suffix = suffix

	err := srv.Listen()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBindExhausted))
	assert.Equal(t, 1, *calls)
	assert.Equal(t, ServerInitial, srv.Status())
}

func TestServeWithoutListen(t *testing.T) {
	srv := NewServer(Config{}, nil)
	assert.ErrorIs(t, srv.Serve(), ErrNotListening)
}

func TestServeDeliversMessagesInOrder(t *testing.T) {
	srv := NewServer(Config{Dir: socketDir(t)}, nil)
	col := &collector{}
	srv.Subscribe(col.add)
	startServer(t, srv)

	conn := dial(t, srv.Path())
	_, err := conn.Write([]byte(keepAlive(0) + keepAlive(1) + keepAlive(2)))
	require.NoError(t, err)

	msgs := col.waitFor(t, 3)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, int64(i), m.SeqNo)
		assert.Equal(t, AnomalyNone, m.Anomaly)
	}
}

func TestServeReportsGapOnce(t *testing.T) {
	srv := NewServer(Config{Dir: socketDir(t)}, nil)
	col := &collector{}
	srv.Subscribe(col.add)
	startServer(t, srv)

	conn := dial(t, srv.Path())
	_, err := conn.Write([]byte(keepAlive(0) + keepAlive(2) + keepAlive(3)))
	require.NoError(t, err)

	msgs := col.waitFor(t, 4)
	gaps := 0
	for _, m := range msgs {
		if m.Anomaly == AnomalySequence {
			gaps++
		}
	}
	assert.Equal(t, 1, gaps)
}

func TestServeReassemblesAcrossWrites(t *testing.T) {
	srv := NewServer(Config{Dir: socketDir(t)}, nil)
	col := &collector{}
	srv.Subscribe(col.add)
	startServer(t, srv)

	conn := dial(t, srv.Path())
	line := keepAlive(0)
	_, err := conn.Write([]byte(line[:15]))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, col.snapshot())

	_, err = conn.Write([]byte(line[15:]))
	require.NoError(t, err)

	msgs := col.waitFor(t, 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(0), msgs[0].SeqNo)
}

func TestServeSubscribersSeeSameOrder(t *testing.T) {
	srv := NewServer(Config{Dir: socketDir(t)}, nil)
	first, second := &collector{}, &collector{}
	srv.Subscribe(first.add)
	srv.Subscribe(second.add)
	startServer(t, srv)

	conn := dial(t, srv.Path())
	var payload string
	for i := 0; i < 20; i++ {
		payload += keepAlive(i)
	}
	_, err := conn.Write([]byte(payload))
	require.NoError(t, err)

	a := first.waitFor(t, 20)
	b := second.waitFor(t, 20)
	assert.Equal(t, a, b)
}

func TestServeRejectsSecondClient(t *testing.T) {
	srv := NewServer(Config{Dir: socketDir(t)}, nil)
	col := &collector{}
	srv.Subscribe(col.add)
	errCh := startServer(t, srv)

	conn := dial(t, srv.Path())
	_, err := conn.Write([]byte(keepAlive(0)))
	require.NoError(t, err)
	col.waitFor(t, 1)
	require.True(t, srv.Connected())

	_ = dial(t, srv.Path())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConcurrentClient)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not fail on second client")
	}
	assert.Equal(t, ServerInitial, srv.Status())
	assert.False(t, srv.Connected())
}

func TestServeAcceptsNewClientAfterDisconnect(t *testing.T) {
	srv := NewServer(Config{Dir: socketDir(t)}, nil)
	col := &collector{}
	srv.Subscribe(col.add)
	startServer(t, srv)

	first, err := net.Dial("unix", srv.Path())
	require.NoError(t, err)
	_, err = first.Write([]byte(keepAlive(0) + keepAlive(1)))
	require.NoError(t, err)
	col.waitFor(t, 2)
	require.NoError(t, first.Close())

	require.Eventually(t, func() bool { return !srv.Connected() }, 2*time.Second, 5*time.Millisecond)

	second := dial(t, srv.Path())
	_, err = second.Write([]byte(keepAlive(0)))
	require.NoError(t, err)

	msgs := col.waitFor(t, 3)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.Equal(t, AnomalyNone, m.Anomaly, fmt.Sprintf("unexpected anomaly: %v", m.Err))
	}
	assert.Equal(t, uint64(2), srv.Accepted())
}

func TestServeAcceptsImmediateReconnect(t *testing.T) {
	srv := NewServer(Config{Dir: socketDir(t)}, nil)
	col := &collector{}
	srv.Subscribe(col.add)
	errCh := startServer(t, srv)

	const rounds = 50
	for i := 0; i < rounds; i++ {
		conn, err := net.Dial("unix", srv.Path())
		require.NoError(t, err)
		_, err = conn.Write([]byte(keepAlive(0)))
		require.NoError(t, err)
		require.NoError(t, conn.Close())
	}

	col.waitFor(t, rounds)
	require.Eventually(t, func() bool { return srv.Accepted() == rounds }, 2*time.Second, 5*time.Millisecond)
	select {
	case err := <-errCh:
		t.Fatalf("Serve stopped on sequential reconnects: %v", err)
	default:
	}
	assert.Equal(t, ServerListening, srv.Status())
	for _, m := range col.snapshot() {
		assert.Equal(t, AnomalyNone, m.Anomaly)
	}
}

func TestServeRejectsClientStillOpenAfterGrace(t *testing.T) {
	srv := NewServer(Config{Dir: socketDir(t), ReconnectGrace: 20 * time.Millisecond}, nil)
	errCh := startServer(t, srv)

	_ = dial(t, srv.Path())
	require.Eventually(t, srv.Connected, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	_ = dial(t, srv.Path())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConcurrentClient)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not fail on concurrent client")
	}
	assert.Equal(t, uint64(1), srv.Accepted())
}

func TestShutdown(t *testing.T) {
	srv := NewServer(Config{Dir: socketDir(t)}, nil)
	require.NoError(t, srv.Listen())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	path := srv.Path()
	conn := dial(t, path)
	require.Eventually(t, srv.Connected, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, srv.Shutdown(context.Background()))

	assert.NoError(t, <-errCh)
	assert.Equal(t, ServerInitial, srv.Status())
	assert.Empty(t, srv.Path())
	assert.False(t, srv.Connected())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// The peer observes the forced disconnect.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)

	// A shut down server can bind again.
	require.NoError(t, srv.Listen())
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestShutdownIdle(t *testing.T) {
	srv := NewServer(Config{}, nil)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
