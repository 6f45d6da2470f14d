package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	appconfig "okxflow/config"
	"okxflow/logger"
)

// exchangeIDs maps an asset class to its exchange id on the catalog API.
var exchangeIDs = map[string]string{
	"spot":   "okex",
	"swap":   "okex-swap",
	"future": "okex-futures",
}

// ArchiveEpoch is the first day the venue published trade-record archives.
// No symbol's validity window starts earlier regardless of listing date.
var ArchiveEpoch = time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC)

// SymbolInfo describes one tradable instrument and the date range for which
// archives can exist. Start and End are inclusive UTC dates already clipped
// to the archive epoch and yesterday.
type SymbolInfo struct {
	ID    string
	Base  string
	Quote string
	Start time.Time
	End   time.Time
}

type exchangeResponse struct {
	Datasets struct {
		Symbols []struct {
			ID             string `json:"id"`
			AvailableSince string `json:"availableSince"`
			AvailableTo    string `json:"availableTo"`
		} `json:"symbols"`
	} `json:"datasets"`
}

// Client fetches symbol metadata from the exchanges catalog.
type Client struct {
	endpoint      string
	quoteCurrency string
	client        *http.Client
	log           *logger.Log
}

func NewClient(cfg *appconfig.Config) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Fetch.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Fetch.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &Client{
		endpoint:      strings.TrimRight(cfg.Catalog.Endpoint, "/"),
		quoteCurrency: cfg.Dump.QuoteCurrency,
		client: &http.Client{
			Timeout:   cfg.Catalog.Timeout,
			Transport: transport,
		},
		log: logger.GetLogger(),
	}, nil
}

// Symbols returns the instruments of the given asset class, keyed by id.
// Symbols whose quote currency does not match the configured filter are
// dropped; an empty filter keeps everything. Symbols whose clipped validity
// window is empty are dropped as well.
func (c *Client) Symbols(ctx context.Context, assetClass string) (map[string]SymbolInfo, error) {
	exchange, ok := exchangeIDs[assetClass]
	if !ok {
		return nil, fmt.Errorf("unknown asset class %q", assetClass)
	}

	reqURL := fmt.Sprintf("%s/%s", c.endpoint, exchange)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog %s: %w", exchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog %s: unexpected status %d", exchange, resp.StatusCode)
	}

	var payload exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", exchange, err)
	}
	if len(payload.Datasets.Symbols) == 0 {
		return nil, fmt.Errorf("catalog %s returned no symbols", exchange)
	}

	yesterday := yesterdayUTC()

	info := make(map[string]SymbolInfo)
	// The first entry aggregates the whole exchange and is not an instrument.
	for _, sym := range payload.Datasets.Symbols[1:] {
		start, err := parseCatalogDate(sym.AvailableSince)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: parse availableSince: %w", sym.ID, err)
		}
		end, err := parseCatalogDate(sym.AvailableTo)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: parse availableTo: %w", sym.ID, err)
		}

		if start.Before(ArchiveEpoch) {
			start = ArchiveEpoch
		}
		if end.After(yesterday) {
			end = yesterday
		}
		if end.Before(start) {
			continue
		}

		base, quote := splitInstrumentID(sym.ID, assetClass)
		if c.quoteCurrency != "" && c.quoteCurrency != quote {
			continue
		}

		info[sym.ID] = SymbolInfo{
			ID:    sym.ID,
			Base:  base,
			Quote: quote,
			Start: start,
			End:   end,
		}
	}

	c.log.WithComponent("catalog").WithFields(logger.Fields{
		"exchange": exchange,
		"symbols":  len(info),
	}).Info("symbol catalog loaded")

	return info, nil
}

// parseCatalogDate truncates an ISO timestamp to its UTC date.
func parseCatalogDate(value string) (time.Time, error) {
	if i := strings.IndexByte(value, '.'); i >= 0 {
		value = value[:i]
	}
	value = strings.TrimSuffix(value, "Z")
	t, err := time.Parse("2006-01-02T15:04:05", value)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// splitInstrumentID derives base and quote currencies from an instrument id
// such as BTC-USDT or BTC-USDT-SWAP. Spot ids may carry extra segments, so
// the quote is taken from the end; derivative ids carry the quote second.
func splitInstrumentID(id, assetClass string) (base, quote string) {
	parts := strings.Split(id, "-")
	if len(parts) < 2 {
		return id, ""
	}
	base = parts[0]
	if assetClass == "spot" {
		quote = parts[len(parts)-1]
	} else {
		quote = parts[1]
	}
	return base, quote
}

func yesterdayUTC() time.Time {
	now := time.Now().UTC()
	y := now.AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)
}
