package mcp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	t.Run("nil memory service returns error", func(t *testing.T) {
		ports := &Ports{}
		server, err := NewServer(ports)
		require.Error(t, err)
		assert.Nil(t, server)
		assert.ErrorIs(t, err, ErrMissingMemoryService)
	})

	t.Run("valid ports creates server", func(t *testing.T) {
		ports := &Ports{
			Memory: &mockMemoryService{},
		}
		server, err := NewServer(ports)
		require.NoError(t, err)
		assert.NotNil(t, server)
	})

	t.Run("backup port registers backup tools", func(t *testing.T) {
		ports := &Ports{
			Memory: &mockMemoryService{},
			Backup: &mockBackupService{},
		}
		server, err := NewServer(ports)
		require.NoError(t, err)
		assert.NotNil(t, server)
	})
}

func TestPorts_Validate(t *testing.T) {
	t.Run("nil memory service returns error", func(t *testing.T) {
		ports := &Ports{Backup: &mockBackupService{}}
		err := ports.Validate()
		assert.ErrorIs(t, err, ErrMissingMemoryService)
	})

	t.Run("memory only is valid", func(t *testing.T) {
		ports := &Ports{Memory: &mockMemoryService{}}
		assert.NoError(t, ports.Validate())
	})
}

func TestServer_Handler(t *testing.T) {
	server, err := NewServer(&Ports{Memory: &mockMemoryService{}})
	require.NoError(t, err)

	t.Run("without metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.NotEqual(t, "metrics", rec.Body.String())
	})

	t.Run("mounts metrics", func(t *testing.T) {
		server.SetMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		}))

		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "metrics", rec.Body.String())
	})
}
