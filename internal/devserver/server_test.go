package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/livechat/internal/models"
)

const testSecret = "devserver-test-secret"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(&Config{JWTSecret: testSecret}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv.Start(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return srv, ts
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func login(t *testing.T, ts *httptest.Server, email, password string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AccessToken string      `json:"access_token"`
		User        models.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.AccessToken)
	assert.Equal(t, email, body.User.Email)
	return body.AccessToken
}

func TestLogin(t *testing.T) {
	srv, ts := newTestServer(t)
	user, err := srv.Seed("kim@example.com", "kim", "password123", models.RoleStudent)
	require.NoError(t, err)

	token := login(t, ts, "kim@example.com", "password123")
	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, models.RoleStudent, claims.Role)

	resp := postJSON(t, ts.URL+"/login", "", map[string]string{"email": "kim@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/login", "", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestProtected(t *testing.T) {
	srv, ts := newTestServer(t)
	_, err := srv.Seed("kim@example.com", "kim", "password123", models.RoleStudent)
	require.NoError(t, err)

	token := login(t, ts, "kim@example.com", "password123")
	assert.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/protected", token, nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, postJSON(t, ts.URL+"/protected", "", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, postJSON(t, ts.URL+"/protected", "forged", nil).StatusCode)
}

func TestAdminEndpoints(t *testing.T) {
	srv, ts := newTestServer(t)
	_, err := srv.Seed("root@example.com", "root", "password123", models.RoleSysAdmin)
	require.NoError(t, err)
	_, err = srv.Seed("kim@example.com", "kim", "password123", models.RoleStudent)
	require.NoError(t, err)

	admin := login(t, ts, "root@example.com", "password123")
	student := login(t, ts, "kim@example.com", "password123")

	assert.Equal(t, http.StatusForbidden, get(t, ts.URL+"/admin/get_user_list", student).StatusCode)

	resp := get(t, ts.URL+"/admin/get_user_list", admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users struct {
		Users []models.User `json:"users"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	assert.Len(t, users.Users, 2)

	resp = postJSON(t, ts.URL+"/admin/add_channel", admin, models.AddChannelRequest{Name: "staff", Status: models.ChannelActive})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = postJSON(t, ts.URL+"/admin/add_channel", admin, models.AddChannelRequest{Name: "staff", Status: models.ChannelActive})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = get(t, ts.URL+"/admin/get_channel_list", admin)
	var channels struct {
		Channel []models.Channel `json:"channel"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&channels))
	assert.Len(t, channels.Channel, 3)

	resp = get(t, ts.URL+"/admin/get_userinfo_at_channel", admin)
	var members struct {
		UserInfo []models.UserChannelInfo `json:"UserInfo"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&members))
	assert.Len(t, members.UserInfo, 4)

	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/admin/user/1", admin).StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/admin/user/99", admin).StatusCode)
}

func dialSocket(t *testing.T, ts *httptest.Server, userID, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/user/" + userID + "/websocketTest?token=" + token + "&user_id=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func TestWebSocketRelay(t *testing.T) {
	srv, ts := newTestServer(t)
	alice, err := srv.Seed("alice@example.com", "alice", "password123", models.RoleStudent)
	require.NoError(t, err)
	bob, err := srv.Seed("bob@example.com", "bob", "password123", models.RoleStudent)
	require.NoError(t, err)

	aliceConn, _, err := dialSocket(t, ts, alice.ID.String(), login(t, ts, "alice@example.com", "password123"))
	require.NoError(t, err)
	bobConn, _, err := dialSocket(t, ts, bob.ID.String(), login(t, ts, "bob@example.com", "password123"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return srv.Hub().ClientCount(context.Background()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, aliceConn.WriteMessage(websocket.TextMessage, []byte(`{"text":"hi bob","channel":"general"}`)))

	bobConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := bobConn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]string
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "hi bob", frame["text"])
	assert.Equal(t, alice.ID.String(), frame["id"])
	assert.Equal(t, "general", frame["channel"])
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	srv, ts := newTestServer(t)
	alice, err := srv.Seed("alice@example.com", "alice", "password123", models.RoleStudent)
	require.NoError(t, err)
	bob, err := srv.Seed("bob@example.com", "bob", "password123", models.RoleStudent)
	require.NoError(t, err)
	bobToken := login(t, ts, "bob@example.com", "password123")

	_, resp, err := dialSocket(t, ts, alice.ID.String(), "garbage")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Bob's token cannot open Alice's socket
	_, resp, err = dialSocket(t, ts, alice.ID.String(), bobToken)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, _, err = dialSocket(t, ts, bob.ID.String(), bobToken)
	assert.NoError(t, err)
}
