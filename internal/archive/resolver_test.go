package archive

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveDailyKind(t *testing.T) {
	r := NewResolver("/data", "swap")
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	target, err := r.Resolve("BTC-USDT-SWAP", KindAggTrades, date)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	wantURL := "https://www.okx.com/cdn/okex/traderecords/aggtrades/daily/20240115/BTC-USDT-SWAP-aggtrades-2024-01-15.zip"
	if target.URL != wantURL {
		t.Errorf("unexpected url:\n got %s\nwant %s", target.URL, wantURL)
	}

	wantArtifact := filepath.Join("/data", "swap", "aggtrades", "2024-01-15", "BTC-USDT-SWAP-aggtrades-2024-01-15.parquet")
	if target.ArtifactPath != wantArtifact {
		t.Errorf("unexpected artifact path: %s", target.ArtifactPath)
	}
	wantRaw := filepath.Join("/data", "swap", "aggtrades", "2024-01-15", "BTC-USDT-SWAP-aggtrades-2024-01-15.zip")
	if target.RawPath != wantRaw {
		t.Errorf("unexpected raw path: %s", target.RawPath)
	}
}

func TestResolveMonthlyKindUsesPseudoSymbol(t *testing.T) {
	r := NewResolver("/data", "swap")
	date := time.Date(2023, 3, 20, 0, 0, 0, 0, time.UTC)

	target, err := r.Resolve("BTC-USDT-SWAP", KindSwapRateAll, date)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if target.Symbol != AllSwapsSymbol {
		t.Errorf("expected pseudo-symbol, got %s", target.Symbol)
	}
	wantURL := "https://www.okx.com/cdn/okex/traderecords/swaprate-all/monthly/202303/allswaps-swaprate-all-2023-03.zip"
	if target.URL != wantURL {
		t.Errorf("unexpected url:\n got %s\nwant %s", target.URL, wantURL)
	}
	wantArtifact := filepath.Join("/data", "swap", "swaprate-all", "2023-03", "allswaps-swaprate-all-2023-03.parquet")
	if target.ArtifactPath != wantArtifact {
		t.Errorf("unexpected artifact path: %s", target.ArtifactPath)
	}
}

func TestResolveDerivedKindHasNoURL(t *testing.T) {
	r := NewResolver("/data", "swap")
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	target, err := r.Resolve("BTC-USDT-SWAP", KindKlines, date)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if target.URL != "" {
		t.Errorf("derived kind should not resolve a remote address, got %s", target.URL)
	}
}

func TestResolveInvalidKind(t *testing.T) {
	r := NewResolver("/data", "swap")
	_, err := r.Resolve("BTC-USDT-SWAP", Kind("orderbook"), time.Now())
	if !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := NewResolver("/data", "swap")
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	a, _ := r.Resolve("ETH-USDT-SWAP", KindTrades, date)
	b, _ := r.Resolve("ETH-USDT-SWAP", KindTrades, date)
	if a != b {
		t.Fatalf("resolution not deterministic: %+v vs %+v", a, b)
	}
}

func TestParseKind(t *testing.T) {
	if _, err := ParseKind("swaprate"); err != nil {
		t.Errorf("swaprate should parse: %v", err)
	}
	if _, err := ParseKind("candles"); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
}

func TestKindProperties(t *testing.T) {
	if !KindTrades.Sorted() || !KindAggTrades.Sorted() {
		t.Errorf("trade kinds must require sorting")
	}
	if KindSwapRate.Sorted() {
		t.Errorf("funding kinds must not require sorting")
	}
	if !KindSwapRateAll.Monthly() {
		t.Errorf("swaprate-all must be monthly")
	}
	if KindKlines.Remote() {
		t.Errorf("klines must not be remote")
	}
}
