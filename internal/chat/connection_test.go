package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/livechat/internal/models"
)

const waitFor = 2 * time.Second

func newTestConnection(t *testing.T, dialer Dialer, config Config) (*Connection, *recorder) {
	t.Helper()
	conn := NewConnection(dialer, NewStore(nil, nil), config, nil)
	rec := &recorder{}
	conn.SetListener(rec.listen)
	t.Cleanup(func() { conn.Close() })
	return conn, rec
}

func connectOpen(t *testing.T, config Config) (*Connection, *fakeTransport, *recorder) {
	t.Helper()
	transport := newFakeTransport()
	conn, rec := newTestConnection(t, &fakeDialer{transport: transport}, config)
	require.NoError(t, conn.Connect(context.Background(), "tok", "u1"))
	require.Equal(t, models.StateOpen, conn.State())
	return conn, transport, rec
}

func texts(seq iter.Seq[models.Message]) []string {
	var out []string
	for msg := range seq {
		out = append(out, msg.Text)
	}
	return out
}

func TestConnect_MissingCredentials(t *testing.T) {
	dialer := &fakeDialer{transport: newFakeTransport()}
	conn, _ := newTestConnection(t, dialer, Config{})

	for _, creds := range [][2]string{{"", "u1"}, {"tok", ""}, {"", ""}} {
		err := conn.Connect(context.Background(), creds[0], creds[1])
		assert.ErrorIs(t, err, ErrMissingCredentials)
	}

	assert.Equal(t, models.StateIdle, conn.State())
	assert.Equal(t, StatusMissingCredentials, conn.Status())
	assert.Zero(t, dialer.calls.Load())
}

func TestConnect_OpensAndWelcomes(t *testing.T) {
	conn, _, rec := connectOpen(t, Config{Channel: "random"})

	assert.Equal(t, StatusConnected, conn.Status())
	assert.Equal(t, []models.ConnectionState{models.StateConnecting, models.StateOpen}, rec.states())

	msgs := slices.Collect(conn.Store().FilterByChannel("random"))
	require.Len(t, msgs, 1)
	assert.Equal(t, WelcomeText, msgs[0].Text)
	assert.True(t, msgs[0].IsSystemMessage())
}

func TestConnect_NoDoubleConnect(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{transport: transport}
	conn, _ := newTestConnection(t, dialer, Config{})

	require.NoError(t, conn.Connect(context.Background(), "tok", "u1"))
	err := conn.Connect(context.Background(), "tok", "u1")

	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, StatusAlreadyConnected, conn.Status())
	assert.Equal(t, models.StateOpen, conn.State())
	assert.Equal(t, int32(1), dialer.calls.Load())
	assert.Zero(t, transport.closes.Load())
}

func TestConnect_DialFailure(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	conn, rec := newTestConnection(t, dialer, Config{})

	err := conn.Connect(context.Background(), "tok", "u1")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, models.StateClosed, conn.State())
	assert.Equal(t, StatusDisconnected, conn.Status())
	assert.Equal(t,
		[]models.ConnectionState{models.StateConnecting, models.StateErrored, models.StateClosed},
		rec.states())
	assert.Zero(t, conn.Store().Len())

	// A failed connect can be retried
	dialer.err = nil
	dialer.transport = newFakeTransport()
	require.NoError(t, conn.Connect(context.Background(), "tok", "u1"))
	assert.Equal(t, models.StateOpen, conn.State())
}

func TestConnect_DisconnectWhileDialing(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{transport: transport, gate: make(chan struct{})}
	conn, _ := newTestConnection(t, dialer, Config{})

	result := make(chan error, 1)
	go func() {
		result <- conn.Connect(context.Background(), "tok", "u1")
	}()

	require.Eventually(t, func() bool {
		return conn.State() == models.StateConnecting
	}, waitFor, 5*time.Millisecond)

	conn.Disconnect()
	close(dialer.gate)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrConnectAborted)
	case <-time.After(waitFor):
		t.Fatal("connect did not return")
	}

	assert.Equal(t, models.StateClosed, conn.State())
	assert.Equal(t, int32(1), transport.closes.Load())
	assert.Zero(t, conn.Store().Len())
}

func TestDisconnect_Idempotent(t *testing.T) {
	conn, transport, rec := connectOpen(t, Config{})

	conn.Disconnect()
	conn.Disconnect()
	require.NoError(t, conn.Close())

	assert.Equal(t, models.StateClosed, conn.State())
	assert.Equal(t, StatusDisconnected, conn.Status())

	// The reader goroutine also tries to release on exit
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), transport.closes.Load())
	assert.Equal(t,
		[]models.ConnectionState{models.StateConnecting, models.StateOpen, models.StateClosed},
		rec.states())
}

func TestDisconnect_FromIdle(t *testing.T) {
	conn, _ := newTestConnection(t, &fakeDialer{}, Config{})

	conn.Disconnect()
	conn.Disconnect()

	assert.Equal(t, models.StateClosed, conn.State())
}

func TestSend_RejectedWhenNotOpen(t *testing.T) {
	transport := newFakeTransport()
	conn, _ := newTestConnection(t, &fakeDialer{transport: transport}, Config{})

	err := conn.Send("hello", "general")
	assert.ErrorIs(t, err, ErrSendRejected)
	assert.Zero(t, conn.Store().Len())

	require.NoError(t, conn.Connect(context.Background(), "tok", "u1"))
	conn.Disconnect()
	before := conn.Store().Len()

	err = conn.Send("hello", "general")
	assert.ErrorIs(t, err, ErrSendRejected)
	assert.Equal(t, before, conn.Store().Len())
	assert.Empty(t, transport.written())
}

func TestSend_WritesFrameAndEchoes(t *testing.T) {
	conn, transport, rec := connectOpen(t, Config{})

	require.NoError(t, conn.Send("hello", "random"))

	writes := transport.written()
	require.Len(t, writes, 1)
	var frame map[string]string
	require.NoError(t, json.Unmarshal(writes[0], &frame))
	assert.Equal(t, map[string]string{"text": "hello", "channel": "random"}, frame)

	echo := slices.Collect(conn.Store().FilterByChannel("random"))
	require.Len(t, echo, 1)
	assert.Equal(t, "hello", echo[0].Text)
	assert.True(t, echo[0].IsOwn())
	assert.Equal(t, 2, rec.count(EventMessage))
}

func TestSend_DefaultsToActiveChannel(t *testing.T) {
	conn, transport, _ := connectOpen(t, Config{Channel: "random"})

	require.NoError(t, conn.Send("hi", ""))
	require.Len(t, transport.written(), 1)
	assert.Contains(t, string(transport.written()[0]), `"channel":"random"`)
}

func TestSend_WriteFailureDoesNotEcho(t *testing.T) {
	conn, transport, rec := connectOpen(t, Config{})
	transport.writeErr = errors.New("broken pipe")
	before := conn.Store().Len()

	err := conn.Send("hello", "general")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, before, conn.Store().Len())
	assert.Equal(t, 1, rec.count(EventError))
}

func TestSend_Validation(t *testing.T) {
	conn, transport, _ := connectOpen(t, Config{MaxMessageLength: 5})

	assert.ErrorIs(t, conn.Send("", "general"), ErrEmptyMessage)
	assert.ErrorIs(t, conn.Send("   ", "general"), ErrEmptyMessage)
	assert.ErrorIs(t, conn.Send("toolong", "general"), ErrMessageTooLong)
	assert.NoError(t, conn.Send("héllo", "general"))
	assert.Len(t, transport.written(), 1)
}

func TestSendCapturedDraft(t *testing.T) {
	conn, transport, _ := connectOpen(t, Config{})

	var draft Draft
	draft.Set("good ")
	draft.Append("morning")
	sent := draft.String()

	// Typing continues while the send is in flight
	draft.Append("!")
	require.NoError(t, conn.Send(sent, "general"))
	assert.False(t, draft.ClearIf(sent))
	assert.Equal(t, "good morning!", draft.String())
	assert.Contains(t, string(transport.written()[0]), `"good morning"`)

	draft.Set("kept")
	require.NoError(t, conn.Send(draft.String(), "general"))
	assert.True(t, draft.ClearIf("kept"))
	assert.Empty(t, draft.String())
}

func TestInbound_NormalizedInArrivalOrder(t *testing.T) {
	conn, transport, rec := connectOpen(t, Config{})

	transport.push(`{"text":"one","id":"u2"}`)
	transport.push(`{"text":{"text":"two"}}`)
	transport.push(`three`)
	transport.push(`{"message":"four"}`)

	require.Eventually(t, func() bool { return conn.Store().Len() == 5 }, waitFor, 5*time.Millisecond)

	msgs := slices.Collect(conn.Store().FilterByChannel("general"))
	assert.Equal(t, []string{WelcomeText, "one", "two", "three", `{"message":"four"}`}, texts(slices.Values(msgs)))

	assert.Equal(t, models.Remote("u2"), msgs[1].Sender)
	assert.Equal(t, models.UnknownRemote, msgs[2].Sender.Name)
	assert.True(t, msgs[3].NonJSON)
	assert.False(t, msgs[4].NonJSON)
	assert.Equal(t, 1, rec.count(EventNonJSON))
}

func TestInbound_ChannelIsolation(t *testing.T) {
	conn, transport, _ := connectOpen(t, Config{})

	transport.push(`{"text":"in general"}`)
	require.Eventually(t, func() bool { return conn.Store().Len() == 2 }, waitFor, 5*time.Millisecond)

	conn.SetChannel("random")
	transport.push(`{"text":"in random"}`)
	require.Eventually(t, func() bool { return conn.Store().Len() == 3 }, waitFor, 5*time.Millisecond)

	assert.Equal(t, []string{WelcomeText, "in general"}, texts(conn.Store().FilterByChannel("general")))
	assert.Equal(t, []string{"in random"}, texts(conn.Store().FilterByChannel("random")))
	assert.Empty(t, texts(conn.Store().FilterByChannel("staff")))
}

func TestInbound_EmptyText(t *testing.T) {
	conn, transport, _ := connectOpen(t, Config{})
	transport.push(`{"text":""}`)
	require.Eventually(t, func() bool { return conn.Store().Len() == 2 }, waitFor, 5*time.Millisecond)

	dropping, dropTransport, _ := connectOpen(t, Config{DropEmpty: true})
	dropTransport.push(`{"text":""}`)
	dropTransport.push(`{"text":"kept"}`)
	require.Eventually(t, func() bool { return dropping.Store().Len() == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{WelcomeText, "kept"}, texts(dropping.Store().FilterByChannel("general")))
}

func TestPeerClose(t *testing.T) {
	conn, transport, rec := connectOpen(t, Config{})

	transport.fail(&websocket.CloseError{Code: websocket.CloseNormalClosure})

	require.Eventually(t, func() bool { return conn.State() == models.StateClosed }, waitFor, 5*time.Millisecond)
	assert.Equal(t, StatusDisconnected, conn.Status())
	assert.NotContains(t, rec.states(), models.StateErrored)
	require.Eventually(t, func() bool { return transport.closes.Load() == 1 }, waitFor, 5*time.Millisecond)

	// Explicit disconnect afterwards changes nothing
	conn.Disconnect()
	assert.Equal(t, int32(1), transport.closes.Load())
}

func TestTransportError(t *testing.T) {
	conn, transport, rec := connectOpen(t, Config{})

	transport.fail(io.ErrUnexpectedEOF)

	require.Eventually(t, func() bool { return conn.State() == models.StateClosed }, waitFor, 5*time.Millisecond)
	assert.Equal(t,
		[]models.ConnectionState{models.StateConnecting, models.StateOpen, models.StateErrored, models.StateClosed},
		rec.states())
	require.Eventually(t, func() bool { return transport.closes.Load() == 1 }, waitFor, 5*time.Millisecond)
}

func TestEndToEnd_ConnectSendReceive(t *testing.T) {
	// connect -> welcome -> send "hi" -> inbound {"text":"hello","id":"u2"}
	conn, transport, _ := connectOpen(t, Config{})

	require.NoError(t, conn.Send("hi", "general"))
	transport.push(`{"text":"hello","id":"u2"}`)

	require.Eventually(t, func() bool { return conn.Store().Len() == 3 }, waitFor, 5*time.Millisecond)

	msgs := slices.Collect(conn.Store().FilterByChannel("general"))
	require.Len(t, msgs, 3)
	assert.Equal(t, models.SenderSystem, msgs[0].Sender.Kind)
	assert.Equal(t, models.Self(), msgs[1].Sender)
	assert.Equal(t, "hi", msgs[1].Text)
	assert.Equal(t, models.Remote("u2"), msgs[2].Sender)
	assert.Equal(t, "hello", msgs[2].Text)
	assert.Less(t, msgs[0].Seq, msgs[1].Seq)
	assert.Less(t, msgs[1].Seq, msgs[2].Seq)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		userID  string
		want    string
		wantErr bool
	}{
		{"http", "http://localhost:8000", "42", "ws://localhost:8000/user/42/websocketTest?token=t%2Bk&user_id=42", false},
		{"https", "https://chat.example.com/", "7", "wss://chat.example.com/user/7/websocketTest?token=t%2Bk&user_id=7", false},
		{"base path", "http://h/api", "a b", "ws://h/api/user/a%20b/websocketTest?token=t%2Bk&user_id=a+b", false},
		{"bad scheme", "ftp://h", "1", "", true},
		{"no host", "http://", "1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildURL(tt.base, "t+k", tt.userID)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasPrefix(got, "ws"))
		})
	}
}
