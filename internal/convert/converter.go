package convert

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	pwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "okxflow/config"
	"okxflow/internal/archive"
	"okxflow/logger"
)

// Converter parses raw archive downloads and persists normalized parquet
// artifacts. A parse failure is fatal for the unit; the atomic write ensures
// no partial artifact is ever left at the final path.
type Converter struct {
	compression string
	log         *logger.Log
}

func NewConverter(cfg *appconfig.Config) *Converter {
	return &Converter{
		compression: cfg.Writer.Formats.Parquet.Compression,
		log:         logger.GetLogger(),
	}
}

// Convert reads the raw zip at target.RawPath, normalizes it according to the
// target kind and writes the artifact to target.ArtifactPath. On success the
// raw zip is deleted; a failed delete is logged but does not fail the unit
// since the artifact's existence is the done marker. Returns the row count.
func (c *Converter) Convert(target archive.Target) (int, error) {
	log := c.log.WithComponent("converter").WithFields(logger.Fields{
		"symbol": target.Symbol,
		"kind":   target.Kind.String(),
		"date":   target.Date.Format("2006-01-02"),
	})

	rows, err := readArchiveRows(target.RawPath)
	if err != nil {
		return 0, err
	}

	var count int
	switch target.Kind {
	case archive.KindTrades, archive.KindAggTrades:
		count, err = c.writeTrades(target.ArtifactPath, rows)
	case archive.KindSwapRate:
		count, err = c.writeFunding(target.ArtifactPath, rows)
	case archive.KindSwapRateAll:
		count, err = c.writeAllFunding(target.ArtifactPath, rows)
	default:
		return 0, fmt.Errorf("%w: %q", archive.ErrInvalidKind, target.Kind.String())
	}
	if err != nil {
		return 0, err
	}

	if err := os.Remove(target.RawPath); err != nil {
		log.WithError(err).WithFields(logger.Fields{"path": target.RawPath}).Warn("failed to delete raw archive")
	}

	log.WithFields(logger.Fields{"rows": count}).Debug("artifact converted")
	logger.IncrementConversion(count)
	return count, nil
}

// readArchiveRows extracts the csv table from the first file inside the zip
// and returns its data rows with the header discarded.
func readArchiveRows(path string) ([][]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	var file *zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			file = f
			break
		}
	}
	if file == nil {
		return nil, fmt.Errorf("archive %s contains no files", path)
	}

	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive entry: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read archive entry: %w", err)
	}

	text := strings.TrimPrefix(string(data), "\ufeff")

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("archive %s is empty", path)
	}

	// First row is the header; column mapping is positional.
	return records[1:], nil
}

// sniffDelimiter picks the delimiter from the header line. Venue exports have
// shipped both comma and semicolon separated tables.
func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}

func (c *Converter) writeTrades(path string, rows [][]string) (int, error) {
	records := make([]TradeRecord, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return 0, fmt.Errorf("trade row %d: expected 5 columns, got %d", i+1, len(row))
		}
		size, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return 0, fmt.Errorf("trade row %d: parse size: %w", i+1, err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return 0, fmt.Errorf("trade row %d: parse price: %w", i+1, err)
		}
		created, err := strconv.ParseInt(strings.TrimSpace(row[4]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("trade row %d: parse created_time: %w", i+1, err)
		}
		records = append(records, TradeRecord{
			TradeID:     strings.TrimSpace(row[0]),
			Side:        strings.TrimSpace(row[1]),
			Size:        size,
			Price:       price,
			CreatedTime: created,
			Timestamp:   created,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})

	err := WriteParquetAtomic(path, new(TradeRecord), c.compression, func(pw *pwriter.ParquetWriter) error {
		for _, rec := range records {
			if err := pw.Write(rec); err != nil {
				return fmt.Errorf("write trade record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (c *Converter) writeFunding(path string, rows [][]string) (int, error) {
	records := make([]FundingRecord, 0, len(rows))
	for i, row := range rows {
		if len(row) < 4 {
			return 0, fmt.Errorf("funding row %d: expected 4 columns, got %d", i+1, len(row))
		}
		fr, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return 0, fmt.Errorf("funding row %d: parse funding_rate: %w", i+1, err)
		}
		real, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return 0, fmt.Errorf("funding row %d: parse real_funding_rate: %w", i+1, err)
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(row[3]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("funding row %d: parse funding_time: %w", i+1, err)
		}
		records = append(records, FundingRecord{
			ContractType:    strings.TrimSpace(row[0]),
			FundingRate:     fr,
			RealFundingRate: real,
			FundingTime:     ts,
			Timestamp:       ts,
		})
	}

	err := WriteParquetAtomic(path, new(FundingRecord), c.compression, func(pw *pwriter.ParquetWriter) error {
		for _, rec := range records {
			if err := pw.Write(rec); err != nil {
				return fmt.Errorf("write funding record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (c *Converter) writeAllFunding(path string, rows [][]string) (int, error) {
	records := make([]AllFundingRecord, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return 0, fmt.Errorf("all-funding row %d: expected 5 columns, got %d", i+1, len(row))
		}
		predict, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return 0, fmt.Errorf("all-funding row %d: parse funding_rate_predict: %w", i+1, err)
		}
		real, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return 0, fmt.Errorf("all-funding row %d: parse real_funding_rate: %w", i+1, err)
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(row[4]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("all-funding row %d: parse funding_time: %w", i+1, err)
		}
		records = append(records, AllFundingRecord{
			InstrumentName:     strings.TrimSpace(row[0]),
			ContractType:       strings.TrimSpace(row[1]),
			FundingRatePredict: predict,
			RealFundingRate:    real,
			FundingTime:        ts,
			Timestamp:          ts,
		})
	}

	err := WriteParquetAtomic(path, new(AllFundingRecord), c.compression, func(pw *pwriter.ParquetWriter) error {
		for _, rec := range records {
			if err := pw.Write(rec); err != nil {
				return fmt.Errorf("write all-funding record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
