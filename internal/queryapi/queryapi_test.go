package queryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/store"
)

type fakeCache struct{ vals map[string][]byte }

func (c *fakeCache) PutWithTTL(context.Context, string, []byte, time.Duration) error { return nil }
func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.vals[key]
	if !ok {
		return nil, store.ErrAbsent
	}
	return v, nil
}
func (c *fakeCache) Delete(context.Context, string) error { return nil }
func (c *fakeCache) TryMarkOnce(context.Context, string, time.Duration) (store.MarkResult, error) {
	return store.Acquired, nil
}
func (c *fakeCache) AppendDLQ(context.Context, []byte) error          { return nil }
func (c *fakeCache) ReadDLQ(context.Context, int64) ([][]byte, error) { return nil, nil }
func (c *fakeCache) PopDLQ(context.Context, int64) ([][]byte, error)  { return nil, nil }

type fakeDocStore struct {
	products []model.Product
	expiries []time.Time
	ticks    []model.UnderlyingTick
}

func (d *fakeDocStore) InsertTick(context.Context, model.UnderlyingTick) error   { return nil }
func (d *fakeDocStore) InsertChain(context.Context, model.EnrichedChain) error   { return nil }
func (d *fakeDocStore) ListUnderlyingTicks(context.Context, model.Product, time.Time, time.Time, int) ([]model.UnderlyingTick, error) {
	return d.ticks, nil
}
func (d *fakeDocStore) ListOptionChains(context.Context, model.Product, time.Time, time.Time, time.Time, int) ([]model.EnrichedChain, error) {
	return nil, nil
}
func (d *fakeDocStore) Products(context.Context) ([]model.Product, error) { return d.products, nil }
func (d *fakeDocStore) Expiries(context.Context, model.Product) ([]time.Time, error) {
	return d.expiries, nil
}
func (d *fakeDocStore) Close() error { return nil }

func TestServer_HandleHealth(t *testing.T) {
	s := NewServer(&fakeCache{vals: map[string][]byte{}}, &fakeDocStore{}, nil, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router(1 << 20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_HandleProducts(t *testing.T) {
	s := NewServer(&fakeCache{vals: map[string][]byte{}}, &fakeDocStore{products: []model.Product{"NIFTY", "BANKNIFTY"}}, nil, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	rec := httptest.NewRecorder()
	s.Router(1 << 20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Products []string `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"NIFTY", "BANKNIFTY"}, body.Products)
}

func TestServer_HandleUnderlyingHistory_DefaultsLimitAndRange(t *testing.T) {
	docs := &fakeDocStore{ticks: []model.UnderlyingTick{{Product: "NIFTY", TickID: 1}}}
	s := NewServer(&fakeCache{vals: map[string][]byte{}}, docs, nil, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/underlying/NIFTY", nil)
	rec := httptest.NewRecorder()
	s.Router(1 << 20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestServer_HandleLatestQuote(t *testing.T) {
	quote := model.OptionQuote{Symbol: "NIFTY24AUG21500CE", Product: "NIFTY"}
	raw, err := json.Marshal(quote)
	require.NoError(t, err)

	s := NewServer(&fakeCache{vals: map[string][]byte{model.KeyLatestOption("NIFTY24AUG21500CE"): raw}}, &fakeDocStore{}, nil, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/option/quote/NIFTY24AUG21500CE", nil)
	rec := httptest.NewRecorder()
	s.Router(1 << 20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body model.OptionQuote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NIFTY24AUG21500CE", body.Symbol)
}

func TestServer_HandleLatestQuote_AbsentReturnsNotFound(t *testing.T) {
	s := NewServer(&fakeCache{vals: map[string][]byte{}}, &fakeDocStore{}, nil, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/option/quote/UNKNOWN", nil)
	rec := httptest.NewRecorder()
	s.Router(1 << 20).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_HandleUnderlyingHistory_BadStartRejected(t *testing.T) {
	s := NewServer(&fakeCache{vals: map[string][]byte{}}, &fakeDocStore{}, nil, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/underlying/NIFTY?start=not-a-date", nil)
	rec := httptest.NewRecorder()
	s.Router(1 << 20).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
