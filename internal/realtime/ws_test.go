package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/auth"
)

var testSecret = []byte("ws-secret")

type clientConn struct {
	io.Reader
	io.Writer
}

func dial(t *testing.T, server *httptest.Server, token string) (net.Conn, io.ReadWriter) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, br, _, err := ws.Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	return conn, clientConn{Reader: r, Writer: conn}
}

func readFrame(t *testing.T, conn net.Conn, rw io.ReadWriter) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, _, err := wsutil.ReadServerData(rw)
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestWebsocketJoinRoundTrip(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(NewWSHandler(f.router, testSecret))
	defer server.Close()

	token, err := auth.IssueToken(testSecret, auth.NewClaims("user-1", "Minji", time.Hour))
	require.NoError(t, err)
	conn, rw := dial(t, server, token)

	join := fmt.Sprintf(`{"event":"join","workspaceId":%q}`, testWorkspace)
	require.NoError(t, wsutil.WriteClientMessage(rw, ws.OpText, []byte(join)))
	assert.Equal(t, EventJoined, readFrame(t, conn, rw).Event)
	assert.Equal(t, EventSync, readFrame(t, conn, rw).Event)

	mark := fmt.Sprintf(`{"event":"mark","workspaceId":%q,"data":{"poi":{"latitude":33.4,"longitude":126.5}}}`, testWorkspace)
	require.NoError(t, wsutil.WriteClientMessage(rw, ws.OpText, []byte(mark)))
	marked := readFrame(t, conn, rw)
	assert.Equal(t, EventMarked, marked.Event)
	var payload poiPayload
	require.NoError(t, json.Unmarshal(marked.Data, &payload))
	assert.Equal(t, "user-1", payload.POI.CreatedBy)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return len(f.hub.ActiveWorkspaces()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketRejectsMissingToken(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(NewWSHandler(f.router, testSecret))
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionSendClosesSlowConsumer(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := newSession(server, Identity{UserID: "u"})

	for i := 0; i < sendBuffer; i++ {
		require.True(t, s.Send([]byte("x")))
	}
	assert.False(t, s.Send([]byte("overflow")))
	assert.False(t, s.Send([]byte("after close")))
	select {
	case <-s.done:
	default:
		t.Fatal("session should be closed")
	}
}
