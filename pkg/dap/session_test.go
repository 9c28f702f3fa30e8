package dap

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSession(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })

	session := NewSession(server, server, nil)
	go func() {
		_ = session.Serve()
		server.Close()
	}()
	return client, bufio.NewReader(client)
}

func sendRequest(t *testing.T, conn net.Conn, req dap.Message) {
	t.Helper()
	require.NoError(t, dap.WriteProtocolMessage(conn, req))
}

func readMessage(t *testing.T, r *bufio.Reader) dap.Message {
	t.Helper()
	msg, err := dap.ReadProtocolMessage(r)
	require.NoError(t, err)
	return msg
}

func TestInitializeAdvertisesCapabilities(t *testing.T) {
	conn, reader := startSession(t)

	sendRequest(t, conn, &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "initialize",
		},
		Arguments: dap.InitializeRequestArguments{AdapterID: "perl"},
	})

	msg := readMessage(t, reader)
	resp, ok := msg.(*dap.InitializeResponse)
	require.True(t, ok, "expected InitializeResponse, got %T", msg)
	assert.True(t, resp.Success)
	assert.True(t, resp.Body.SupportsConfigurationDoneRequest)
	assert.True(t, resp.Body.SupportsConditionalBreakpoints)
	assert.True(t, resp.Body.SupportsCompletionsRequest)
	assert.False(t, resp.Body.SupportsStepInTargetsRequest)
	require.Len(t, resp.Body.ExceptionBreakpointFilters, 1)
	assert.Equal(t, "die", resp.Body.ExceptionBreakpointFilters[0].Filter)
}

func TestThreadsReportsSingleMainThread(t *testing.T) {
	conn, reader := startSession(t)

	sendRequest(t, conn, &dap.ThreadsRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "threads",
		},
	})

	resp, ok := readMessage(t, reader).(*dap.ThreadsResponse)
	require.True(t, ok)
	require.Len(t, resp.Body.Threads, 1)
	assert.Equal(t, 1, resp.Body.Threads[0].Id)
	assert.Equal(t, "main thread", resp.Body.Threads[0].Name)
}

func TestLaunchWithoutProgramFails(t *testing.T) {
	conn, reader := startSession(t)

	sendRequest(t, conn, &dap.LaunchRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "launch",
		},
		Arguments: []byte(`{}`),
	})

	resp, ok := readMessage(t, reader).(*dap.ErrorResponse)
	require.True(t, ok)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Body.Error)
	assert.Equal(t, 1001, resp.Body.Error.Id)
	assert.Equal(t, "No program specified to debug.", resp.Body.Error.Format)
}

func TestSetBreakpointsBeforeLaunchAreStored(t *testing.T) {
	conn, reader := startSession(t)

	sendRequest(t, conn, &dap.SetBreakpointsRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "setBreakpoints",
		},
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: "/ws/script.pl"},
			Breakpoints: []dap.SourceBreakpoint{{Line: 10}, {Line: 20}},
		},
	})

	resp, ok := readMessage(t, reader).(*dap.SetBreakpointsResponse)
	require.True(t, ok)
	require.Len(t, resp.Body.Breakpoints, 2)
	assert.True(t, resp.Body.Breakpoints[0].Verified)
	assert.Equal(t, 10, resp.Body.Breakpoints[0].Line)
}

func TestConfigurationDoneUnblocksLaunchGate(t *testing.T) {
	conn, reader := startSession(t)

	sendRequest(t, conn, &dap.ConfigurationDoneRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "configurationDone",
		},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := readMessage(t, reader).(*dap.ConfigurationDoneResponse)
		assert.True(t, ok)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("configurationDone response not received")
	}
}
