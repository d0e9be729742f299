package finnhub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	xhttp "SpikeWatch/pkg/http"
)

// Resolution maps a timeframe to the candle resolution understood by the REST API.
func Resolution(tf drepo.Timeframe) (string, error) {
	switch tf {
	case drepo.TF1m:
		return "1", nil
	case drepo.TF5m:
		return "5", nil
	case drepo.TF15m:
		return "15", nil
	case drepo.TF1h:
		return "60", nil
	case drepo.TF4h:
		return "240", nil
	case drepo.TF1d:
		return "D", nil
	}
	return "", fmt.Errorf("unsupported timeframe %q", tf)
}

type candleResponse struct {
	Status string    `json:"s"`
	Open   []float64 `json:"o"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Close  []float64 `json:"c"`
	Volume []float64 `json:"v"`
	Time   []int64   `json:"t"`
}

// CandleClient fetches OHLCV candles over REST.
type CandleClient struct {
	http    *xhttp.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

var _ drepo.MarketData = (*CandleClient)(nil)

func NewCandleClient(client *xhttp.Client, baseURL, apiKey string) *CandleClient {
	return &CandleClient{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		now:     time.Now,
	}
}

// FetchSamples returns up to limit candles ending now. A zero since asks for
// the most recent ones.
func (c *CandleClient) FetchSamples(ctx context.Context, instrument string, tf drepo.Timeframe, since time.Time, limit int) ([]models.Sample, error) {
	res, err := Resolution(tf)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}

	to := c.now()
	from := since
	if from.IsZero() {
		// one spare bucket for the still-open candle
		from = to.Add(-time.Duration(limit+1) * tf.Duration())
	}

	var body candleResponse
	err = c.http.GetJSON(ctx, c.baseURL+"/stock/candle", url.Values{
		"symbol":     {instrument},
		"resolution": {res},
		"from":       {strconv.FormatInt(from.Unix(), 10)},
		"to":         {strconv.FormatInt(to.Unix(), 10)},
	}, http.Header{"X-Finnhub-Token": {c.apiKey}}, &body)
	if err != nil {
		if xhttp.IsStatus(err, http.StatusNotFound, http.StatusUnprocessableEntity) {
			return nil, fmt.Errorf("%s: %w", instrument, drepo.ErrUnknownInstrument)
		}
		return nil, fmt.Errorf("candles %s: %w", instrument, err)
	}

	samples, err := body.samples()
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", instrument, err)
	}
	if len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples, nil
}

func (r candleResponse) samples() ([]models.Sample, error) {
	switch r.Status {
	case "no_data":
		return []models.Sample{}, nil
	case "ok":
	default:
		return nil, fmt.Errorf("unexpected status %q", r.Status)
	}

	n := len(r.Time)
	if len(r.Open) != n || len(r.High) != n || len(r.Low) != n || len(r.Close) != n || len(r.Volume) != n {
		return nil, fmt.Errorf("ragged candle arrays")
	}
	out := make([]models.Sample, n)
	for i := 0; i < n; i++ {
		out[i] = models.Sample{
			Timestamp: time.Unix(r.Time[i], 0).UTC(),
			Open:      r.Open[i],
			High:      r.High[i],
			Low:       r.Low[i],
			Close:     r.Close[i],
			Volume:    r.Volume[i],
		}
	}
	return out, nil
}
