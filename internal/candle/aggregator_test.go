package candle

import (
	"path/filepath"
	"testing"
	"time"

	pwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "okxflow/config"
	"okxflow/internal/convert"
)

func testAggregator(t *testing.T) *Aggregator {
	t.Helper()
	cfg := &appconfig.Config{}
	cfg.Writer.Formats.Parquet.Compression = "snappy"
	return NewAggregator(cfg)
}

// writeTradeFixture persists a trade artifact the way the converter would.
func writeTradeFixture(t *testing.T, path string, trades []convert.TradeRecord) {
	t.Helper()
	err := convert.WriteParquetAtomic(path, new(convert.TradeRecord), "snappy", func(pw *pwriter.ParquetWriter) error {
		for _, rec := range trades {
			if err := pw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write trade fixture: %v", err)
	}
}

func trade(id string, price, size float64, ts int64) convert.TradeRecord {
	return convert.TradeRecord{
		TradeID:     id,
		Side:        "buy",
		Size:        size,
		Price:       price,
		CreatedTime: ts,
		Timestamp:   ts,
	}
}

func TestAggregateBucketsAndGapFill(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	dayMs := day.UnixMilli()

	tradePath := filepath.Join(dir, "trades.parquet")
	candlePath := filepath.Join(dir, "candles.parquet")

	// Two trades in minute 0, none in minute 1, one in minute 2.
	writeTradeFixture(t, tradePath, []convert.TradeRecord{
		trade("1", 100, 1, dayMs+10_000),
		trade("2", 105, 2, dayMs+45_000),
		trade("3", 102, 0.5, dayMs+2*60_000+5_000),
	})

	a := testAggregator(t)
	rows, err := a.Aggregate(tradePath, candlePath, day)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if rows != minutesPerDay {
		t.Fatalf("expected %d rows, got %d", minutesPerDay, rows)
	}

	candles, err := convert.ReadCandles(candlePath)
	if err != nil {
		t.Fatalf("ReadCandles failed: %v", err)
	}
	if len(candles) != minutesPerDay {
		t.Fatalf("expected %d candles, got %d", minutesPerDay, len(candles))
	}

	c0 := candles[0]
	if c0.Timestamp != dayMs {
		t.Errorf("bucket 0 timestamp: got %d, want %d", c0.Timestamp, dayMs)
	}
	assertCandle(t, "bucket 0", c0, 100, 105, 100, 105, 3)

	// Empty minute carries the previous close as a flat zero-volume candle.
	assertCandle(t, "bucket 1", candles[1], 105, 105, 105, 105, 0)
	if candles[1].Timestamp != dayMs+60_000 {
		t.Errorf("bucket 1 timestamp: got %d", candles[1].Timestamp)
	}

	assertCandle(t, "bucket 2", candles[2], 102, 102, 102, 102, 0.5)

	// The fill persists through the rest of the day.
	assertCandle(t, "last bucket", candles[minutesPerDay-1], 102, 102, 102, 102, 0)
}

func TestAggregateLeadingEmptyBucketsAreNull(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	dayMs := day.UnixMilli()

	tradePath := filepath.Join(dir, "trades.parquet")
	candlePath := filepath.Join(dir, "candles.parquet")

	// First trade lands in minute 3; minutes 0..2 have nothing to carry.
	writeTradeFixture(t, tradePath, []convert.TradeRecord{
		trade("1", 50, 1, dayMs+3*60_000),
	})

	a := testAggregator(t)
	if _, err := a.Aggregate(tradePath, candlePath, day); err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	candles, err := convert.ReadCandles(candlePath)
	if err != nil {
		t.Fatalf("ReadCandles failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		c := candles[i]
		if c.Open != nil || c.High != nil || c.Low != nil || c.Close != nil {
			t.Errorf("bucket %d should have null prices, got %+v", i, c)
		}
		if c.Volume != 0 {
			t.Errorf("bucket %d volume: got %v, want 0", i, c.Volume)
		}
	}
	assertCandle(t, "bucket 3", candles[3], 50, 50, 50, 50, 1)
	assertCandle(t, "bucket 4", candles[4], 50, 50, 50, 50, 0)
}

func TestAggregateIgnoresOutOfDayTrades(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	dayMs := day.UnixMilli()

	tradePath := filepath.Join(dir, "trades.parquet")
	candlePath := filepath.Join(dir, "candles.parquet")

	writeTradeFixture(t, tradePath, []convert.TradeRecord{
		trade("0", 99, 1, dayMs-1),
		trade("1", 100, 1, dayMs),
		trade("2", 101, 1, dayMs+24*60*60_000),
	})

	a := testAggregator(t)
	if _, err := a.Aggregate(tradePath, candlePath, day); err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	candles, err := convert.ReadCandles(candlePath)
	if err != nil {
		t.Fatalf("ReadCandles failed: %v", err)
	}
	assertCandle(t, "bucket 0", candles[0], 100, 100, 100, 100, 1)
	assertCandle(t, "last bucket", candles[minutesPerDay-1], 100, 100, 100, 100, 0)
}

func assertCandle(t *testing.T, name string, c convert.CandleRecord, open, high, low, last, volume float64) {
	t.Helper()
	if c.Open == nil || c.High == nil || c.Low == nil || c.Close == nil {
		t.Fatalf("%s: unexpected null prices: %+v", name, c)
	}
	if *c.Open != open || *c.High != high || *c.Low != low || *c.Close != last {
		t.Errorf("%s: got O=%v H=%v L=%v C=%v, want O=%v H=%v L=%v C=%v",
			name, *c.Open, *c.High, *c.Low, *c.Close, open, high, low, last)
	}
	if c.Volume != volume {
		t.Errorf("%s: volume got %v, want %v", name, c.Volume, volume)
	}
}
