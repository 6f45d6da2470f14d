package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type flowStat struct {
	units int64
	bytes int64
}

var (
	errorsFetch    int64
	errorsConvert  int64
	warnsFetch     int64
	warnsConvert   int64
	downloads      int64
	conversions    int64
	candleArtifact int64
	cacheHits      int64
	flows          sync.Map // map[string]*flowStat
)

func recordWarn(component string) {
	if strings.Contains(component, "fetch") {
		atomic.AddInt64(&warnsFetch, 1)
	} else if strings.Contains(component, "convert") || strings.Contains(component, "candle") {
		atomic.AddInt64(&warnsConvert, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "fetch") {
		atomic.AddInt64(&errorsFetch, 1)
	} else if strings.Contains(component, "convert") || strings.Contains(component, "candle") {
		atomic.AddInt64(&errorsConvert, 1)
	}
}

// IncrementDownload records a completed archive download of the given size.
func IncrementDownload(size int64) {
	atomic.AddInt64(&downloads, 1)
	recordFlow("cdn_download", int(size))
}

// IncrementConversion records a converted artifact with its row count.
func IncrementConversion(rows int) {
	atomic.AddInt64(&conversions, 1)
	recordFlow("parquet_write", rows)
}

// IncrementCandleArtifact records a derived candle artifact with its row count.
func IncrementCandleArtifact(rows int) {
	atomic.AddInt64(&candleArtifact, 1)
	recordFlow("candle_write", rows)
}

// IncrementCacheHit records a unit skipped because its artifact already exists.
func IncrementCacheHit() {
	atomic.AddInt64(&cacheHits, 1)
}

func RecordFlow(name string, size int) {
	recordFlow(name, size)
}

func recordFlow(name string, size int) {
	v, _ := flows.LoadOrStore(name, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.units, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and pipeline statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	flowData := map[string]map[string]int64{}
	flows.Range(func(k, v any) bool {
		name := k.(string)
		fs := v.(*flowStat)
		flowData[name] = map[string]int64{
			"units": atomic.LoadInt64(&fs.units),
			"bytes": atomic.LoadInt64(&fs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_fetch":     atomic.LoadInt64(&errorsFetch),
		"errors_convert":   atomic.LoadInt64(&errorsConvert),
		"warns_fetch":      atomic.LoadInt64(&warnsFetch),
		"warns_convert":    atomic.LoadInt64(&warnsConvert),
		"downloads":        atomic.LoadInt64(&downloads),
		"conversions":      atomic.LoadInt64(&conversions),
		"candle_artifacts": atomic.LoadInt64(&candleArtifact),
		"cache_hits":       atomic.LoadInt64(&cacheHits),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memStats.Used) / 1024 / 1024,
		"disk_mb":          int64(diskStats.Used) / 1024 / 1024,
		"flows":            flowData,
		"net_bytes_sent":   int64(bytesSent),
		"net_bytes_recv":   int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsFetch"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_fetch"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsConvert"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_convert"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsFetch"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_fetch"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsConvert"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_convert"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Downloads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["downloads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Conversions"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["conversions"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CandleArtifacts"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["candle_artifacts"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CacheHits"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["cache_hits"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range flowData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("FlowUnits"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["units"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("FlowBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
