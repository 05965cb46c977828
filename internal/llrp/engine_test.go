package llrp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// acceptAndHandshake accepts one connection from ln and drives it through
// the S1 happy-path handshake (connection event, capabilities exchange,
// ADD_ROSPEC/ENABLE_ROSPEC), returning the accepted net.Conn and its
// mockReader for any further scripting.
func acceptAndHandshake(t *testing.T, ln net.Listener) (net.Conn, *mockReader) {
	t.Helper()
	nc, err := ln.Accept()
	require.NoError(t, err)
	mock := newMockReader(t, nc)

	mock.send(MsgReaderEventNotification, 1, map[string]interface{}{
		"ReaderEventNotificationData": map[string]interface{}{"ConnectionAttemptEvent": "Success"},
	})
	getCaps := mock.recv()
	require.Equal(t, MsgGetReaderCapabilities, getCaps.Name)
	mock.send(MsgGetReaderCapabilitiesResponse, getCaps.ID, twoEntryCapabilities())

	addRospec := mock.recv()
	require.Equal(t, MsgAddROSpec, addRospec.Name)
	mock.send(MsgAddROSpecResponse, addRospec.ID, map[string]interface{}{"LLRPStatus": statusOK()})

	enableRospec := mock.recv()
	require.Equal(t, MsgEnableROSpec, enableRospec.Name)
	mock.send(MsgEnableROSpecResponse, enableRospec.ID, map[string]interface{}{"LLRPStatus": statusOK()})

	return nc, mock
}

// TestEngineReconnectsAfterSocketClose is spec.md §8's S6: with reconnect
// enabled, a mid-inventory socket close triggers a fresh dial, a full
// re-handshake, and resumed inventory, and the engine's terminal error
// channel never fires while reconnection is still possible.
func TestEngineReconnectsAfterSocketClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	engine := NewEngine(EngineConfig{Reconnect: true, ReconnectDelay: 50 * time.Millisecond}, nil)

	var states []State
	ropts := ReaderOptions{StateCallback: func(s State) { states = append(states, s) }}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCfg := ConnConfig{ROSpecID: 1, Antennas: []int{1}, TxPowerIndex: 1, Modulation: "M4", AutoStart: true}
	conn, errCh := engine.NewReader(ctx, ln.Addr().String(), connCfg, ropts)
	require.NotNil(t, conn)

	nc1, _ := acceptAndHandshake(t, ln)
	require.Eventually(t, func() bool { return conn.State() == StateInventorying }, time.Second, 5*time.Millisecond)

	// Simulate a dropped socket mid-inventory.
	require.NoError(t, nc1.Close())

	select {
	case err := <-errCh:
		t.Fatalf("engine reported a terminal error while reconnect was still possible: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	addr := ln.Addr().String()
	nc2, _ := acceptAndHandshake(t, ln)
	defer nc2.Close()

	require.Eventually(t, func() bool {
		c, ok := engine.connFor(addr)
		return ok && c.State() == StateInventorying
	}, time.Second, 5*time.Millisecond)

	select {
	case err := <-errCh:
		t.Fatalf("onFinish fired unexpectedly after a successful reconnect: %v", err)
	default:
	}
}

// TestEngineNoReconnectReportsTerminalError covers the Reconnect=false path:
// a lost connection is reported on the error channel rather than retried.
func TestEngineNoReconnectReportsTerminalError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	engine := NewEngine(EngineConfig{Reconnect: false}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCfg := ConnConfig{ROSpecID: 1, Antennas: []int{1}, TxPowerIndex: 1, Modulation: "M4", AutoStart: true}
	conn, errCh := engine.NewReader(ctx, ln.Addr().String(), connCfg, ReaderOptions{})
	require.NotNil(t, conn)

	nc, _ := acceptAndHandshake(t, ln)
	require.Eventually(t, func() bool { return conn.State() == StateInventorying }, time.Second, 5*time.Millisecond)

	require.NoError(t, nc.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected a terminal error once the socket closed with reconnect disabled")
	}
}

// TestEnginePauseInventoryBroadcastsWhenAddrEmpty covers spec.md §4.7's
// broadcast-or-targeted rule for pauseInventory/resumeInventory/setTxPower:
// an empty addr must reach every tracked reader, not just one.
func TestEnginePauseInventoryBroadcastsWhenAddrEmpty(t *testing.T) {
	ln1, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln1.Close()
	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln2.Close()

	engine := NewEngine(EngineConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCfg := ConnConfig{ROSpecID: 1, Antennas: []int{1}, TxPowerIndex: 1, Modulation: "M4", AutoStart: true}
	conn1, _ := engine.NewReader(ctx, ln1.Addr().String(), connCfg, ReaderOptions{})
	conn2, _ := engine.NewReader(ctx, ln2.Addr().String(), connCfg, ReaderOptions{})
	require.NotNil(t, conn1)
	require.NotNil(t, conn2)

	_, mock1 := acceptAndHandshake(t, ln1)
	_, mock2 := acceptAndHandshake(t, ln2)
	require.Eventually(t, func() bool { return conn1.State() == StateInventorying }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return conn2.State() == StateInventorying }, time.Second, 5*time.Millisecond)

	errPause := make(chan error, 1)
	go func() { errPause <- engine.PauseInventory("") }()

	disable1 := mock1.recv()
	require.Equal(t, MsgDisableROSpec, disable1.Name)
	mock1.send(MsgDisableROSpecResponse, disable1.ID, map[string]interface{}{"LLRPStatus": statusOK()})

	disable2 := mock2.recv()
	require.Equal(t, MsgDisableROSpec, disable2.Name)
	mock2.send(MsgDisableROSpecResponse, disable2.ID, map[string]interface{}{"LLRPStatus": statusOK()})

	require.NoError(t, <-errPause)
	require.Eventually(t, func() bool { return conn1.State() == StatePaused }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return conn2.State() == StatePaused }, time.Second, 5*time.Millisecond)
}

// TestEnginePauseInventoryNoConnectionForAddr covers the non-broadcast path:
// a nonexistent addr still reports the original "no connection" error.
func TestEnginePauseInventoryNoConnectionForAddr(t *testing.T) {
	engine := NewEngine(EngineConfig{}, nil)
	err := engine.PauseInventory("127.0.0.1:1")
	require.Error(t, err)
}
