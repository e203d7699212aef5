package e2e

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/granddizzy/ItismAsyncio/internal/protocol"
)

// rawConn dials the server and speaks headers directly, bypassing the
// client's own name checks.
func rawConn(t *testing.T, tc *TestContext) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", tc.Client.Address, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	return conn
}

// roundTrip sends raw header fields and reads one response.
func roundTrip(t *testing.T, conn net.Conn, fields ...string) *protocol.Response {
	t.Helper()

	block, err := protocol.Encode(fields)
	require.NoError(t, err)
	_, err = conn.Write(block)
	require.NoError(t, err)

	resp, err := protocol.ReadResponse(conn)
	require.NoError(t, err)
	return resp
}

// TestRawProtocol exercises server replies a well-behaved client never
// provokes
func TestRawProtocol(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		conn := rawConn(t, tc)

		t.Run("Test", func(t *testing.T) {
			resp := roundTrip(t, conn, "TEST")
			assert.Equal(t, protocol.StatusSuccess, resp.Status)
		})

		t.Run("ForbiddenChars", func(t *testing.T) {
			for _, name := range []string{"a/b", `a\b`, "a:b", `a"b`, "a*b", "a?b", "a<b", "a>b", "a|b"} {
				resp := roundTrip(t, conn, "PUT", name, "5", "WRITE")
				assert.Equal(t, protocol.StatusError, resp.Status, name)
				assert.Equal(t, protocol.MsgForbiddenChars, resp.Message, name)
			}
		})

		t.Run("ForbiddenNameLookups", func(t *testing.T) {
			for _, cmd := range []string{"GET", "DEL"} {
				resp := roundTrip(t, conn, cmd, "a/b")
				assert.Equal(t, protocol.StatusError, resp.Status, cmd)
				assert.Equal(t, protocol.MsgFileNotExists, resp.Message, cmd)
			}
			resp := roundTrip(t, conn, "CHECK", "a/b")
			assert.Equal(t, protocol.StatusNotExists, resp.Status)
		})

		t.Run("UnknownCommand", func(t *testing.T) {
			resp := roundTrip(t, conn, "RENAME", "a")
			assert.Equal(t, protocol.StatusError, resp.Status)
			assert.Equal(t, protocol.MsgUnknownCommand, resp.Message)
		})

		t.Run("MalformedSize", func(t *testing.T) {
			resp := roundTrip(t, conn, "PUT", "a", "five", "WRITE")
			assert.Equal(t, protocol.StatusError, resp.Status)
			assert.Equal(t, protocol.MsgMalformedHeader, resp.Message)
		})

		t.Run("GetListAlias", func(t *testing.T) {
			resp := roundTrip(t, conn, "GET_LIST")
			assert.Equal(t, protocol.StatusList, resp.Status)
			assert.Equal(t, int64(0), resp.Filesize)
		})

		t.Run("CheckMissing", func(t *testing.T) {
			resp := roundTrip(t, conn, "CHECK", "nothing")
			assert.Equal(t, protocol.StatusNotExists, resp.Status)
		})

		t.Run("PutThenCheck", func(t *testing.T) {
			resp := roundTrip(t, conn, "PUT", "raw", "3", "WRITE")
			require.Equal(t, protocol.StatusReady, resp.Status)

			_, err := conn.Write([]byte("abc"))
			require.NoError(t, err)
			resp, err = protocol.ReadResponse(conn)
			require.NoError(t, err)
			assert.Equal(t, protocol.StatusSuccess, resp.Status)

			resp = roundTrip(t, conn, "CHECK", "raw")
			assert.Equal(t, protocol.StatusExists, resp.Status)
		})

		t.Run("Quit", func(t *testing.T) {
			block, err := protocol.Encode([]string{"QUIT"})
			require.NoError(t, err)
			_, err = conn.Write(block)
			require.NoError(t, err)

			require.Eventually(t, func() bool {
				return tc.Adapter.GetActiveConnections() == 0
			}, 5*time.Second, 20*time.Millisecond)
		})
	})
}
