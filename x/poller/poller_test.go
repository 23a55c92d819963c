package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/modem"
	"github.com/compose-network/radiolink/x/pending"
	"github.com/compose-network/radiolink/x/protocol"
)

type issued struct {
	code    protocol.RequestCode
	payload []byte
	cb      pending.Callback
}

type fakeIssuer struct {
	mu     sync.Mutex
	calls  []issued
	err    error
	answer func(issued)
}

func (f *fakeIssuer) Issue(_ context.Context, code protocol.RequestCode, payload []byte, cb pending.Callback, _ ...modem.DeliveryOption) (uint32, error) {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return 0, f.err
	}
	call := issued{code: code, payload: payload, cb: cb}
	f.calls = append(f.calls, call)
	n := len(f.calls)
	answer := f.answer
	f.mu.Unlock()

	if answer != nil {
		answer(call)
	}
	return uint32(n), nil
}

func (f *fakeIssuer) first() issued {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[0]
}

func (f *fakeIssuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestPollerIssuesAndRecordsResult(t *testing.T) {
	t.Parallel()

	iss := &fakeIssuer{answer: func(c issued) {
		c.cb(pending.Envelope{Value: []int32{20, 99}})
	}}
	p, err := New(zerolog.Nop(), iss, []Target{{
		Code:     int32(protocol.RequestSignalStrength),
		Interval: 10 * time.Millisecond,
	}})
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return iss.count() >= 2 }, time.Second, 5*time.Millisecond)

	res := p.Results()
	require.Len(t, res, 1)
	require.Equal(t, protocol.RequestSignalStrength.String(), res[0].Code)
	require.Equal(t, []int32{20, 99}, res[0].Value)
	require.Empty(t, res[0].Error)
	require.GreaterOrEqual(t, res[0].Polls, uint64(1))
	require.Nil(t, iss.first().payload)
}

func TestPollerEncodesPayload(t *testing.T) {
	t.Parallel()

	iss := &fakeIssuer{}
	p, err := New(zerolog.Nop(), iss, []Target{{
		Code:     int32(protocol.RequestSetUnsolResponseFilter),
		Ints:     []int32{7},
		Interval: time.Hour,
	}})
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return iss.count() == 1 }, time.Second, 5*time.Millisecond)
	want, err := codec.Encode([]int32{7})
	require.NoError(t, err)
	require.Equal(t, want, iss.first().payload)
}

func TestPollerSkipsWhileInFlight(t *testing.T) {
	t.Parallel()

	iss := &fakeIssuer{}
	p, err := New(zerolog.Nop(), iss, []Target{{
		Code:     int32(protocol.RequestBasebandVersion),
		Interval: 5 * time.Millisecond,
	}})
	require.NoError(t, err)

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		res := p.Results()
		return res[0].Skipped >= 2
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	require.Equal(t, 1, iss.count())
	require.True(t, p.Results()[0].InFlight)

	iss.first().cb(pending.Envelope{Err: pending.ErrRequestTimeout})
	res := p.Results()[0]
	require.False(t, res.InFlight)
	require.Equal(t, uint64(1), res.Failures)
	require.Equal(t, pending.ErrRequestTimeout.Error(), res.Error)
}

func TestPollerIssueFailureReleasesTarget(t *testing.T) {
	t.Parallel()

	iss := &fakeIssuer{err: errors.New("closed")}
	p, err := New(zerolog.Nop(), iss, []Target{{
		Code:     int32(protocol.RequestSignalStrength),
		Interval: 5 * time.Millisecond,
	}})
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return p.Results()[0].LastTick >= 2 }, time.Second, 5*time.Millisecond)
	res := p.Results()[0]
	require.False(t, res.InFlight)
	require.Zero(t, res.Skipped)
}

func TestPollerRejectsInvalidTargets(t *testing.T) {
	t.Parallel()

	_, err := New(zerolog.Nop(), &fakeIssuer{}, []Target{{Code: 19}})
	require.Error(t, err)

	_, err = New(zerolog.Nop(), &fakeIssuer{}, []Target{{
		Code: 19, Interval: time.Second, Strings: []string{"a"}, Ints: []int32{1},
	}})
	require.Error(t, err)
}
