package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_FetchSnapshots(t *testing.T) {
	var gotReq rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":[
			{"address":"tokenA","symbol":"TKA","name":"Token A","price":2.5,"priceChange24h":8.0,"volume24h":5000,"marketCap":1000000,"decimals":9},
			{"address":"tokenB","symbol":"TKB","price":0.04,"priceChange24h":-3.0,"volume24h":200}
		]}`)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	snaps, err := f.FetchSnapshots(context.Background(), []string{"tokenA", "tokenB"})
	require.NoError(t, err)

	assert.Equal(t, "getTokenSnapshots", gotReq.Method)
	require.Len(t, snaps, 2)
	assert.Equal(t, "tokenA", snaps[0].Address)
	assert.Equal(t, "TKA", snaps[0].Symbol)
	assert.InDelta(t, 2.5, snaps[0].Price, 1e-9)
	assert.InDelta(t, 8.0, snaps[0].PriceChange24h, 1e-9)
	assert.Equal(t, 9, snaps[0].Decimals)
	assert.False(t, snaps[0].FetchedAt.IsZero())
}

func TestHTTPFetcher_EmptyAddressList(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	snaps, err := f.FetchSnapshots(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, snaps)
	assert.Zero(t, calls.Load())
}

func TestHTTPFetcher_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":[]}`)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	_, err := f.FetchSnapshots(context.Background(), []string{"tokenA"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad params"}}`)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	_, err := f.FetchSnapshots(context.Background(), []string{"tokenA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad params")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_MaxRetriesExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	_, err := f.FetchSnapshots(context.Background(), []string{"tokenA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}
