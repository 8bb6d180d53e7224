package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	ready := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}))
	defer ready.Close()
	require.NoError(t, probe(ready.Client(), ready.URL))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_ready","database":{"status":"down"}}`))
	}))
	defer down.Close()
	err := probe(down.Client(), down.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_ready, database down")
}
