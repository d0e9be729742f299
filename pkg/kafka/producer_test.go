package kafka

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"bytes", []byte("raw"), "raw"},
		{"string", "text", "text"},
		{"struct", struct {
			Type string `json:"type"`
		}{"trade_opened"}, `{"type":"trade_opened"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeValue(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    kafka.Compression
		wantErr bool
	}{
		{"", kafka.Gzip, false},
		{"snappy", kafka.Snappy, false},
		{"zstd", kafka.Zstd, false},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCompression(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewProducerValidates(t *testing.T) {
	_, err := NewProducer()
	assert.ErrorContains(t, err, "brokers")

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli"), WithRegisterer(nil))
	assert.ErrorContains(t, err, "compression")
}

func TestProducersShareMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := []ProducerOption{WithBrokers([]string{"localhost:9092"}), WithRegisterer(reg)}

	a, err := NewProducer(opts...)
	require.NoError(t, err)
	b, err := NewProducer(opts...)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	a.metrics.observe("events", "gzip", 10, 0, nil)
	b.metrics.observe("events", "gzip", 5, 0, nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.metrics.messages.WithLabelValues("events", "ok")))
	assert.Equal(t, 15.0, testutil.ToFloat64(b.metrics.bytes.WithLabelValues("events", "gzip")))
}
