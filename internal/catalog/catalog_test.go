package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "okxflow/config"
)

const exchangePayload = `{
  "id": "okex-swap",
  "datasets": {
    "symbols": [
      {"id": "PERPETUALS", "availableSince": "2020-02-01T00:00:00.000Z", "availableTo": "2030-01-01T00:00:00.000Z"},
      {"id": "BTC-USDT-SWAP", "availableSince": "2020-02-01T00:00:00.000Z", "availableTo": "2030-01-01T00:00:00.000Z"},
      {"id": "ETH-USD-SWAP", "availableSince": "2022-03-15T00:00:00.000Z", "availableTo": "2022-06-01T00:00:00.000Z"},
      {"id": "DOGE-USDT-SWAP", "availableSince": "2030-01-01T00:00:00.000Z", "availableTo": "2030-02-01T00:00:00.000Z"}
    ]
  }
}`

func newTestClient(t *testing.T, endpoint, quote string) *Client {
	t.Helper()
	cfg := &appconfig.Config{}
	cfg.Catalog.Endpoint = endpoint
	cfg.Catalog.Timeout = 5 * time.Second
	cfg.Dump.QuoteCurrency = quote
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestSymbolsClipsAndSkipsAggregate(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(exchangePayload))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	info, err := c.Symbols(context.Background(), "swap")
	if err != nil {
		t.Fatalf("Symbols failed: %v", err)
	}

	if gotPath != "/okex-swap" {
		t.Errorf("unexpected request path: %s", gotPath)
	}
	if _, ok := info["PERPETUALS"]; ok {
		t.Errorf("aggregate entry must be skipped")
	}
	if _, ok := info["DOGE-USDT-SWAP"]; ok {
		t.Errorf("symbol listing in the future has an empty window and must be dropped")
	}

	btc, ok := info["BTC-USDT-SWAP"]
	if !ok {
		t.Fatalf("BTC-USDT-SWAP missing from catalog")
	}
	if btc.Base != "BTC" || btc.Quote != "USDT" {
		t.Errorf("unexpected base/quote: %s/%s", btc.Base, btc.Quote)
	}
	wantStart := time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC)
	if !btc.Start.Equal(wantStart) {
		t.Errorf("start not clipped to archive epoch: %v", btc.Start)
	}
	if !btc.End.Equal(yesterdayUTC()) {
		t.Errorf("end not clipped to yesterday: %v", btc.End)
	}

	eth := info["ETH-USD-SWAP"]
	if !eth.Start.Equal(time.Date(2022, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("listing after epoch keeps its own start: %v", eth.Start)
	}
	if !eth.End.Equal(time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("delisted symbol keeps its own end: %v", eth.End)
	}
}

func TestSymbolsQuoteFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exchangePayload))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "USDT")
	info, err := c.Symbols(context.Background(), "swap")
	if err != nil {
		t.Fatalf("Symbols failed: %v", err)
	}
	if _, ok := info["ETH-USD-SWAP"]; ok {
		t.Errorf("USD-quoted symbol must be filtered out")
	}
	if _, ok := info["BTC-USDT-SWAP"]; !ok {
		t.Errorf("USDT-quoted symbol must survive the filter")
	}
}

func TestSymbolsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	if _, err := c.Symbols(context.Background(), "swap"); err == nil {
		t.Fatalf("expected error on bad status")
	}
}

func TestSymbolsUnknownAssetClass(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", "")
	if _, err := c.Symbols(context.Background(), "options"); err == nil {
		t.Fatalf("expected error for unknown asset class")
	}
}

func TestSplitInstrumentID(t *testing.T) {
	cases := []struct {
		id, class, base, quote string
	}{
		{"BTC-USDT", "spot", "BTC", "USDT"},
		{"BTC-USDT-SWAP", "swap", "BTC", "USDT"},
		{"BTC-USD-240329", "future", "BTC", "USD"},
	}
	for _, tc := range cases {
		base, quote := splitInstrumentID(tc.id, tc.class)
		if base != tc.base || quote != tc.quote {
			t.Errorf("%s (%s): got %s/%s, want %s/%s", tc.id, tc.class, base, quote, tc.base, tc.quote)
		}
	}
}
