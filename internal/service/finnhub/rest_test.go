package finnhub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	drepo "SpikeWatch/internal/domain/repository"
	xhttp "SpikeWatch/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolution(t *testing.T) {
	tests := map[drepo.Timeframe]string{
		drepo.TF1m:  "1",
		drepo.TF5m:  "5",
		drepo.TF15m: "15",
		drepo.TF1h:  "60",
		drepo.TF4h:  "240",
		drepo.TF1d:  "D",
	}
	for tf, want := range tests {
		got, err := Resolution(tf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := Resolution("7m")
	assert.Error(t, err)
}

func TestCandleClientFetch(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var query map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Finnhub-Token"))
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(`{"s":"ok","t":[1709294100,1709294400,1709294700],
			"o":[1,2,3],"h":[1.5,2.5,3.5],"l":[0.5,1.5,2.5],"c":[1.2,2.2,3.2],"v":[10,20,30]}`))
	}))
	defer srv.Close()

	c := NewCandleClient(xhttp.NewClient(), srv.URL+"/", "k")
	c.now = func() time.Time { return now }

	samples, err := c.FetchSamples(context.Background(), "AAPL", drepo.TF5m, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 2.0, samples[0].Open)
	assert.Equal(t, 30.0, samples[1].Volume)
	assert.Equal(t, time.Unix(1709294700, 0).UTC(), samples[1].Timestamp)

	assert.Equal(t, "AAPL", query["symbol"])
	assert.Equal(t, "5", query["resolution"])
	assert.Equal(t, "1709294400", query["to"])
	assert.Equal(t, "1709293500", query["from"])
}

func TestCandleClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		unknown bool
		empty   bool
	}{
		{"not found is unknown", http.StatusNotFound, `{}`, true, false},
		{"server error is transient", http.StatusBadGateway, `bad gateway`, false, false},
		{"no data is empty", http.StatusOK, `{"s":"no_data"}`, false, true},
		{"ragged arrays", http.StatusOK, `{"s":"ok","t":[1],"o":[],"h":[1],"l":[1],"c":[1],"v":[1]}`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			samples, err := NewCandleClient(xhttp.NewClient(), srv.URL, "k").
				FetchSamples(context.Background(), "X", drepo.TF1m, time.Time{}, 5)
			if tt.empty {
				require.NoError(t, err)
				assert.Empty(t, samples)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.unknown, errors.Is(err, drepo.ErrUnknownInstrument))
		})
	}
}
