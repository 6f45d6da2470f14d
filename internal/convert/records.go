package convert

// TradeRecord is one normalized row of a trades or aggtrades artifact.
// Column order in the source csv is positional; the header row is discarded
// and columns are renamed to this schema. Timestamp duplicates the raw
// epoch-millis column as a proper parquet timestamp.
type TradeRecord struct {
	TradeID     string  `parquet:"name=trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side        string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Size        float64 `parquet:"name=size, type=DOUBLE"`
	Price       float64 `parquet:"name=price, type=DOUBLE"`
	CreatedTime int64   `parquet:"name=created_time, type=INT64"`
	Timestamp   int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// FundingRecord is one row of a per-symbol funding rate artifact.
type FundingRecord struct {
	ContractType    string  `parquet:"name=contract_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	FundingRate     float64 `parquet:"name=funding_rate, type=DOUBLE"`
	RealFundingRate float64 `parquet:"name=real_funding_rate, type=DOUBLE"`
	FundingTime     int64   `parquet:"name=funding_time, type=INT64"`
	Timestamp       int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// AllFundingRecord is one row of the monthly all-symbols funding artifact.
type AllFundingRecord struct {
	InstrumentName     string  `parquet:"name=instrument_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	ContractType       string  `parquet:"name=contract_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	FundingRatePredict float64 `parquet:"name=funding_rate_predict, type=DOUBLE"`
	RealFundingRate    float64 `parquet:"name=real_funding_rate, type=DOUBLE"`
	FundingTime        int64   `parquet:"name=funding_time, type=INT64"`
	Timestamp          int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// CandleRecord is one minute bucket of a derived kline artifact. OHLC columns
// are optional: leading buckets of a day with no trades have no previous
// close to carry forward and stay null.
type CandleRecord struct {
	Timestamp int64    `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Open      *float64 `parquet:"name=open, type=DOUBLE, repetitiontype=OPTIONAL"`
	High      *float64 `parquet:"name=high, type=DOUBLE, repetitiontype=OPTIONAL"`
	Low       *float64 `parquet:"name=low, type=DOUBLE, repetitiontype=OPTIONAL"`
	Close     *float64 `parquet:"name=close, type=DOUBLE, repetitiontype=OPTIONAL"`
	Volume    float64  `parquet:"name=volume, type=DOUBLE"`
}
