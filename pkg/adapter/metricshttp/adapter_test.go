package metricshttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/granddizzy/ItismAsyncio/pkg/adapter"
	"github.com/granddizzy/ItismAsyncio/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ adapter.Adapter = (*Adapter)(nil)

func TestAdapter(t *testing.T) {
	a := New(Config{Enabled: true, BindAddress: "127.0.0.1", Port: 19091})
	assert.Equal(t, "METRICS", a.Protocol())
	assert.Equal(t, 19091, a.Port())

	a.SetStore(nil)
	require.NoError(t, a.Stop(context.Background()))
}

func TestAdapterDefaultPort(t *testing.T) {
	assert.Equal(t, 9090, New(Config{}).Port())
}

func TestAdapterReadyzFollowsStore(t *testing.T) {
	a := New(Config{Enabled: true, Port: 19092})
	st := memory.NewMemoryStore(memory.MemoryStoreConfig{})
	a.SetStore(st)

	probe := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return rec
	}

	rec := probe()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")

	require.NoError(t, st.Close())
	rec = probe()
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not ready")
}
