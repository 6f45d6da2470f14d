package candle

import (
	"fmt"
	"time"

	pwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "okxflow/config"
	"okxflow/internal/convert"
	"okxflow/logger"
)

// minutesPerDay is the number of buckets in one daily candle artifact.
const minutesPerDay = 24 * 60

// Aggregator resamples a converted aggtrade artifact into 1-minute OHLCV
// candles covering the full UTC day. Buckets without trades carry the
// previous bucket's close across all four price columns; buckets before the
// day's first trade have no close to carry and stay null.
type Aggregator struct {
	compression string
	log         *logger.Log
}

func NewAggregator(cfg *appconfig.Config) *Aggregator {
	return &Aggregator{
		compression: cfg.Writer.Formats.Parquet.Compression,
		log:         logger.GetLogger(),
	}
}

type bucket struct {
	open   float64
	high   float64
	low    float64
	last   float64
	volume float64
	trades int
}

// Aggregate reads the trade artifact at tradePath and writes the derived
// candle artifact to candlePath with the usual atomic-replace contract.
// date selects the UTC day the buckets span. Returns the number of candle
// rows written, which is always one per minute of the day.
func (a *Aggregator) Aggregate(tradePath, candlePath string, date time.Time) (int, error) {
	trades, err := convert.ReadTrades(tradePath)
	if err != nil {
		return 0, err
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayStartMs := dayStart.UnixMilli()

	buckets := make([]bucket, minutesPerDay)
	for _, trade := range trades {
		idx := (trade.Timestamp - dayStartMs) / 60_000
		if idx < 0 || idx >= minutesPerDay {
			// Archives occasionally carry a straggler from the neighbouring
			// day; it belongs to that day's artifact, not this one.
			continue
		}
		b := &buckets[idx]
		if b.trades == 0 {
			b.open = trade.Price
			b.high = trade.Price
			b.low = trade.Price
		} else {
			if trade.Price > b.high {
				b.high = trade.Price
			}
			if trade.Price < b.low {
				b.low = trade.Price
			}
		}
		b.last = trade.Price
		b.volume += trade.Size
		b.trades++
	}

	records := make([]convert.CandleRecord, minutesPerDay)
	var prevClose *float64
	for i := range buckets {
		b := buckets[i]
		rec := convert.CandleRecord{
			Timestamp: dayStartMs + int64(i)*60_000,
			Volume:    b.volume,
		}
		if b.trades > 0 {
			open, high, low, last := b.open, b.high, b.low, b.last
			rec.Open, rec.High, rec.Low, rec.Close = &open, &high, &low, &last
			prevClose = &last
		} else if prevClose != nil {
			// Flat candle at the last known close.
			fill := *prevClose
			rec.Open, rec.High, rec.Low, rec.Close = &fill, &fill, &fill, &fill
			prevClose = &fill
		}
		records[i] = rec
	}

	err = convert.WriteParquetAtomic(candlePath, new(convert.CandleRecord), a.compression, func(pw *pwriter.ParquetWriter) error {
		for _, rec := range records {
			if err := pw.Write(rec); err != nil {
				return fmt.Errorf("write candle record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	a.log.WithComponent("candle").WithFields(logger.Fields{
		"date":    dayStart.Format("2006-01-02"),
		"trades":  len(trades),
		"candles": minutesPerDay,
	}).Debug("candle artifact written")
	logger.IncrementCandleArtifact(minutesPerDay)

	return minutesPerDay, nil
}
