package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

func TestGetPool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools/pool-1", r.URL.Path)
		json.NewEncoder(w).Encode(model.Pool{
			ID:   "pool-1",
			Name: "default",
			Resources: model.PoolResources{
				FuzzerMaxCPU:   4000,
				FuzzerMaxRAM:   8192,
				FuzzerMaxTmpfs: 1024,
			},
		})
	}))
	defer server.Close()

	pm := NewPoolManager(server.URL, time.Second)
	pool, err := pm.GetPool(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.Equal(t, "default", pool.Name)
	assert.EqualValues(t, 8192, pool.Resources.FuzzerMaxRAM)
}

func TestGetPoolNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	pm := NewPoolManager(server.URL, time.Second)
	_, err := pm.GetPool(context.Background(), "missing")
	assert.True(t, apierr.IsCode(err, apierr.ErrPoolNotFound.Code))
}

func TestRemoteErrorPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "E_POOL_BUSY",
			"message": "pool has running fuzzers",
		})
	}))
	defer server.Close()

	pm := NewPoolManager(server.URL, time.Second)
	err := pm.DeletePool(context.Background(), "pool-1")
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "E_POOL_BUSY", apiErr.Code)
	assert.Equal(t, "pool has running fuzzers", apiErr.Message)
}

func TestCreatePool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var in model.Pool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in.ID = "pool-new"
		json.NewEncoder(w).Encode(in)
	}))
	defer server.Close()

	pm := NewPoolManager(server.URL, time.Second)
	created, err := pm.CreatePool(context.Background(), &model.Pool{Name: "fresh"})
	require.NoError(t, err)
	assert.Equal(t, "pool-new", created.ID)
	assert.Equal(t, "fresh", created.Name)
}
