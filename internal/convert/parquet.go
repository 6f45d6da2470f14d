package convert

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// compressionCodec maps the configured compression name onto a parquet codec.
func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// WriteParquetAtomic writes a parquet file at path without ever exposing a
// partial file: rows are written to a uniquely named sibling and renamed into
// place only after a clean WriteStop. sample must be a pointer to the record
// struct describing the schema; write receives the open writer and emits rows.
func WriteParquetAtomic(path string, sample interface{}, compression string, write func(pw *writer.ParquetWriter) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.New().String())

	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, sample, 4)
	if err != nil {
		fw.Close()
		os.Remove(tmp)
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)

	if err := write(pw); err != nil {
		pw.WriteStop()
		fw.Close()
		os.Remove(tmp)
		return err
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		os.Remove(tmp)
		return fmt.Errorf("finalize parquet writing: %w", err)
	}
	if err := fw.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close parquet file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move artifact into place: %w", err)
	}
	return nil
}

// ReadTrades loads a trade or aggtrade artifact back into memory. The candle
// aggregator is the primary consumer.
func ReadTrades(path string) ([]TradeRecord, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open trade artifact: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(TradeRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]TradeRecord, pr.GetNumRows())
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read trade artifact: %w", err)
	}
	return rows, nil
}

// ReadCandles loads a derived kline artifact, mainly for tests and ad-hoc
// inspection.
func ReadCandles(path string) ([]CandleRecord, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open candle artifact: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(CandleRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]CandleRecord, pr.GetNumRows())
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read candle artifact: %w", err)
	}
	return rows, nil
}
