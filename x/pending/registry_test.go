package pending

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/compose-network/radiolink/x/executor"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Fire() {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if !stopped {
		t.fn()
	}
}

type fakeTimerFactory struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimerFactory) AfterFunc(_ time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	return t
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time         { c.mu.Lock(); defer c.mu.Unlock(); return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.mu.Lock(); c.now = c.now.Add(d); c.mu.Unlock() }

// recorder collects envelopes per serial.
type recorder struct {
	mu  sync.Mutex
	got map[uint32][]Envelope
}

func newRecorder() *recorder { return &recorder{got: make(map[uint32][]Envelope)} }

func (r *recorder) callback(serial *uint32) Callback {
	return func(env Envelope) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.got[*serial] = append(r.got[*serial], env)
	}
}

func (r *recorder) count(serial uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got[serial])
}

func newTestRegistry(t *testing.T) (*Registry, *fakeTimerFactory, *fakeClock) {
	t.Helper()
	timers := &fakeTimerFactory{}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cfg := DefaultConfig(zerolog.Nop())
	cfg.Executor = executor.Inline{}
	cfg.TimerFactory = timers
	cfg.Now = clock.Now
	return New(cfg), timers, clock
}

func create(t *testing.T, r *Registry, rec *recorder, code protocol.RequestCode, opts ...CreateOption) *Entry {
	t.Helper()
	serial := new(uint32)
	e, err := r.Create(code, nil, rec.callback(serial), opts...)
	require.NoError(t, err)
	*serial = e.Serial
	return e
}

// --- tests ---

func TestRegistry_SerialsStartAtOneAndIncrease(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	rec := newRecorder()

	a := create(t, r, rec, protocol.RequestDial)
	b := create(t, r, rec, protocol.RequestDial)
	assert.Equal(t, uint32(1), a.Serial)
	assert.Equal(t, uint32(2), b.Serial)
	assert.Equal(t, StateCreated, a.State())
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, uint32(2), r.LastSerial())
}

func TestRegistry_ConcurrentSerialsUnique(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)

	const issuers, perIssuer = 16, 200
	var mu sync.Mutex
	var serials []uint32
	var wg sync.WaitGroup
	for i := 0; i < issuers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint32, 0, perIssuer)
			for j := 0; j < perIssuer; j++ {
				e, err := r.Create(protocol.RequestGetIMSI, nil, nil)
				if err != nil {
					t.Error(err)
					return
				}
				if len(local) > 0 && e.Serial <= local[len(local)-1] {
					t.Errorf("serial %d not increasing after %d", e.Serial, local[len(local)-1])
				}
				local = append(local, e.Serial)
			}
			mu.Lock()
			serials = append(serials, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, serials, issuers*perIssuer)
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })
	for i, s := range serials {
		assert.Equal(t, uint32(i+1), s)
	}
	assert.Equal(t, issuers*perIssuer, r.Len())
}

func TestRegistry_ResolveExactlyOnce(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	rec := newRecorder()
	e := create(t, r, rec, protocol.RequestEnterSIMPUK2)

	require.True(t, r.MarkSent(e.Serial))
	assert.Equal(t, StateSent, e.State())
	assert.False(t, e.SentAt().IsZero())

	assert.True(t, r.Resolve(e.Serial, Envelope{Value: "ok"}))
	assert.False(t, r.Resolve(e.Serial, Envelope{Value: "again"}))
	assert.False(t, r.Cancel(e.Serial, ErrRequestTimeout))
	assert.Zero(t, r.Drain(ErrTransportUnavailable))

	require.Equal(t, 1, rec.count(e.Serial))
	assert.Equal(t, "ok", rec.got[e.Serial][0].Value)
	assert.NoError(t, rec.got[e.Serial][0].Err)
	assert.Equal(t, StateCompleted, e.State())
	assert.True(t, e.Resolved())
	assert.Zero(t, r.Len())
}

func TestRegistry_ConcurrentResolveCancelDrain(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	rec := newRecorder()

	const n = 200
	entries := make([]*Entry, n)
	for i := range entries {
		entries[i] = create(t, r, rec, protocol.RequestGetIMSI)
	}

	var wg sync.WaitGroup
	for _, e := range entries {
		e := e
		wg.Add(2)
		go func() { defer wg.Done(); r.Resolve(e.Serial, Envelope{Value: "v"}) }()
		go func() { defer wg.Done(); r.Cancel(e.Serial, ErrRequestTimeout) }()
	}
	wg.Add(1)
	go func() { defer wg.Done(); r.Drain(ErrTransportUnavailable) }()
	wg.Wait()

	for _, e := range entries {
		assert.Equal(t, 1, rec.count(e.Serial), "serial %d", e.Serial)
	}
	assert.Zero(t, r.Len())
}

func TestRegistry_TimeoutCancelsOnlyThatEntry(t *testing.T) {
	t.Parallel()

	r, timers, clock := newTestRegistry(t)
	rec := newRecorder()

	slow := create(t, r, rec, protocol.RequestDial, WithTimeout(5*time.Second))
	other := create(t, r, rec, protocol.RequestGetIMSI)
	require.Len(t, timers.timers, 1)

	clock.Advance(5 * time.Second)
	timers.timers[0].Fire()

	require.Equal(t, 1, rec.count(slow.Serial))
	assert.ErrorIs(t, rec.got[slow.Serial][0].Err, ErrRequestTimeout)
	assert.Equal(t, StateCancelled, slow.State())

	assert.Zero(t, rec.count(other.Serial))
	_, ok := r.Lookup(other.Serial)
	assert.True(t, ok)

	hist := r.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "timeout", hist[0].Outcome)
	assert.Equal(t, 5*time.Second, hist[0].Latency())
}

func TestRegistry_ResolveStopsTimer(t *testing.T) {
	t.Parallel()

	r, timers, _ := newTestRegistry(t)
	rec := newRecorder()

	e := create(t, r, rec, protocol.RequestDial, WithTimeout(time.Second))
	require.True(t, r.Resolve(e.Serial, Envelope{}))

	timers.timers[0].Fire()
	assert.True(t, timers.timers[0].stopped)
	assert.Equal(t, 1, rec.count(e.Serial))
	assert.NoError(t, rec.got[e.Serial][0].Err)
}

func TestRegistry_DrainDeliversSyntheticErrors(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	rec := newRecorder()

	var finalized []Completed
	r.onFinalize = func(c Completed) { finalized = append(finalized, c) }

	const k = 7
	entries := make([]*Entry, k)
	for i := range entries {
		entries[i] = create(t, r, rec, protocol.RequestSignalStrength)
	}

	assert.Equal(t, k, r.Drain(ErrTransportUnavailable))
	assert.Zero(t, r.Len())

	for _, e := range entries {
		require.Equal(t, 1, rec.count(e.Serial))
		assert.ErrorIs(t, rec.got[e.Serial][0].Err, ErrTransportUnavailable)
		assert.Equal(t, StateCancelled, e.State())
	}

	require.Len(t, finalized, k)
	for i, c := range finalized {
		assert.Equal(t, uint32(i+1), c.Serial, "drained in serial order")
		assert.Equal(t, "transport_unavailable", c.Outcome)
	}
}

func TestRegistry_SerialExhaustion(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	r.last = protocol.MaxSerial - 1

	e, err := r.Create(protocol.RequestDial, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(protocol.MaxSerial), e.Serial)

	_, err = r.Create(protocol.RequestDial, nil, nil)
	assert.ErrorIs(t, err, ErrSerialsExhausted)
}

func TestRegistry_EnvelopeUsesEntryExecutor(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRegistry(t)
	ser := executor.NewSerial("caller", zerolog.Nop())
	defer ser.Close()

	done := make(chan Envelope, 1)
	e, err := r.Create(protocol.RequestDial, nil, func(env Envelope) { done <- env }, WithExecutor(ser))
	require.NoError(t, err)

	require.True(t, r.Resolve(e.Serial, Envelope{Value: 1}))
	select {
	case env := <-done:
		assert.Equal(t, 1, env.Value)
	case <-time.After(time.Second):
		t.Fatal("envelope not delivered")
	}
}

func TestRegistry_SnapshotAndHistoryBound(t *testing.T) {
	t.Parallel()

	r, _, clock := newTestRegistry(t)
	r.maxHistory = 2
	rec := newRecorder()

	a := create(t, r, rec, protocol.RequestDial)
	create(t, r, rec, protocol.RequestGetIMSI)
	r.MarkSent(a.Serial)
	clock.Advance(time.Second)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "DIAL", snap[0].Code)
	assert.Equal(t, "sent", snap[0].State)
	assert.Equal(t, "created", snap[1].State)
	assert.Equal(t, time.Second, snap[0].Age)

	for i := 0; i < 3; i++ {
		e := create(t, r, rec, protocol.RequestRadioPower)
		r.Resolve(e.Serial, Envelope{Err: &RemoteError{Code: protocol.ErrorGenericFailure, Request: e.Code, Serial: e.Serial}})
	}
	hist := r.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "remote_error", hist[1].Outcome)
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok", Outcome(Envelope{Value: 1}))
	assert.Equal(t, "remote_error", Outcome(Envelope{Err: &RemoteError{Code: protocol.ErrorCancelled}}))
	assert.Equal(t, "timeout", Outcome(Envelope{Err: ErrRequestTimeout}))
	assert.Equal(t, "error", Outcome(Envelope{Err: errors.New("x")}))
}

func TestRemoteError_Message(t *testing.T) {
	t.Parallel()

	err := &RemoteError{Code: protocol.ErrorPasswordIncorrect, Request: protocol.RequestEnterSIMPIN, Serial: 4}
	assert.Equal(t, "pending: ENTER_SIM_PIN (serial 4) failed: PASSWORD_INCORRECT", err.Error())
}
