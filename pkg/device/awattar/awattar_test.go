package awattar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/marketdata", r.URL.Path)
		assert.Equal(t, fmt.Sprint(now.Add(-24*time.Hour).UnixMilli()), r.URL.Query().Get("start"))
		assert.Equal(t, fmt.Sprint(now.Add(48*time.Hour).UnixMilli()), r.URL.Query().Get("end"))
		fmt.Fprintf(w, `{"object":"list","data":[
{"start_timestamp":%[1]d000,"end_timestamp":%[2]d000,"marketprice":88.5,"unit":"Eur/MWh"},
{"start_timestamp":%[2]d000,"end_timestamp":%[3]d000,"marketprice":-3.1,"unit":"Eur/MWh"}
]}`, 1717243200, 1717246800, 1717250400)
	}))
	defer srv.Close()

	clk := clock.NewFixed(now)
	a := New(srv.URL, clk)
	err := a.Refresh(context.TODO())
	require.NoError(t, err)

	price := a.Price()
	assert.Len(t, price, 2)
	assert.Equal(t, 88.5, price[1717243200])
	assert.Equal(t, -3.1, price[1717246800])

	// rate limited
	clk.Add(30 * time.Minute)
	require.NoError(t, a.Refresh(context.TODO()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clk.Add(30 * time.Minute)
	require.NoError(t, a.Refresh(context.TODO()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRefreshKeepsCacheOnError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data":[{"start_timestamp":1717243200000,"end_timestamp":1717246800000,"marketprice":50}]}`)
	}))
	defer srv.Close()

	clk := clock.NewFixed(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	a := New(srv.URL, clk)
	require.NoError(t, a.Refresh(context.TODO()))

	fail.Store(true)
	clk.Add(2 * time.Hour)
	err := a.Refresh(context.TODO())
	assert.ErrorContains(t, err, "StatusCode: 502")
	assert.Equal(t, 50.0, a.Price()[1717243200])

	// a failed refresh waits for the retry interval
	fail.Store(false)
	clk.Add(5 * time.Minute)
	require.NoError(t, a.Refresh(context.TODO()))
	assert.Equal(t, 50.0, a.Price()[1717243200])

	fail.Store(true)
	clk.Add(10 * time.Minute)
	assert.ErrorContains(t, a.Refresh(context.TODO()), "StatusCode: 502")

	fail.Store(false)
	clk.Add(15 * time.Minute)
	require.NoError(t, a.Refresh(context.TODO()))
}

func TestRefreshFailingEndpoint(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	clk := clock.NewFixed(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	a := New(srv.URL, clk)
	assert.Error(t, a.Refresh(context.TODO()))
	for i := 0; i < 11; i++ {
		clk.Add(5 * time.Second)
		assert.NoError(t, a.Refresh(context.TODO()))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, a.Price())

	clk.Add(15 * time.Minute)
	assert.Error(t, a.Refresh(context.TODO()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
