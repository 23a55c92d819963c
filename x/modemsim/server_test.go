package modemsim

import (
	"context"
	"testing"
	"time"

	"github.com/compose-network/radiolink/metrics"
	"github.com/compose-network/radiolink/x/modem"
	"github.com/compose-network/radiolink/x/pending"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/compose-network/radiolink/x/transport/tcp"
	"github.com/compose-network/radiolink/x/vendor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_EndToEnd(t *testing.T) {
	t.Parallel()

	m := NewMetricsWith(metrics.NewComponentRegistryWith(prometheus.NewRegistry(), "radiolink", "modemsim"))
	srv := NewServer(zerolog.Nop(), DefaultScript(), m)
	require.NoError(t, srv.Listen("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	chain, replay, err := vendor.BuildChain(vendor.SIMInfoName)
	require.NoError(t, err)
	client := modem.New(zerolog.Nop(), modem.WithChain(chain), modem.WithReplayCodes(replay...))

	conn, err := tcp.Dial(ctx, "tcp", srv.Addr().String(), "client", nil, zerolog.Nop(), tcp.DefaultTimeoutConfig())
	require.NoError(t, err)
	require.NoError(t, client.Attach(conn))

	// The SIM info announced on connect is buffered until someone subscribes.
	require.Eventually(t, func() bool {
		return client.Stats().Buffered["CUSTOM_SIM_INFO"] == 1
	}, 2*time.Second, 5*time.Millisecond)

	infos := make(chan any, 1)
	client.Subscribe(protocol.EventCustomSIMInfo, func(_ protocol.EventCode, v any) { infos <- v })
	info := (<-infos).(vendor.SIMInfo)
	assert.Equal(t, "8901260000000000001", info.ICCID)

	v, err := modem.CallAs[string](ctx, client, protocol.RequestBasebandVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, "SIM-BASEBAND-1.0", v)

	_, err = client.Call(ctx, protocol.RequestDial, nil)
	var remote *pending.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, protocol.ErrorRequestNotSupported, remote.Code)

	radio := make(chan any, 4)
	client.Subscribe(protocol.EventSignalStrength, func(_ protocol.EventCode, v any) { radio <- v })
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, srv.Broadcast(Event{Code: protocol.EventSignalStrength, Payload: Payload{Ints: []int32{18, 99}}}))
	select {
	case got := <-radio:
		assert.Equal(t, []int32{18, 99}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast event not delivered")
	}

	require.NoError(t, client.Close())
	cancel()
	require.NoError(t, <-served)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConnectionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastsTotal))
}
