// Command replay drives the trading engine from historical OHLCV bars
// instead of a live or simulated book, publishing synthesized
// types.MarketData snapshots onto the same marketdata.tick.<symbol>
// subjects feedhandler uses so the execution process needs no code
// path specific to replay. Adapted from the teacher's
// replay_service.go (CSV/Parquet ingestion via encoding/csv and
// xitongsys/parquet-go, pause/resume/seek over a NATS control
// subject); the bar-to-book synthesis in buildSnapshot follows the
// teacher's buildMarketData spread/size heuristics, re-expressed in
// decimal Price/Size/Level types instead of bare float64 fields.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/bus"
	"github.com/autovant/perp-core/internal/config"
	"github.com/autovant/perp-core/internal/obslog"
	"github.com/autovant/perp-core/internal/types"
)

const tickSubjectPrefix = "marketdata.tick."

// bar is one OHLCV row, source-agnostic (CSV or Parquet).
type bar struct {
	Symbol string
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// replayCommand is a control-subject message, same shape as the
// teacher's: pause, resume, or seek to a timestamp.
type replayCommand struct {
	Command   string `json:"command"`
	Timestamp string `json:"timestamp"`
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	checkConfig := flag.Bool("check-config", false, "parse config and exit")
	source := flag.String("source", "", "csv:// or parquet:// path to OHLCV bars")
	speed := flag.Float64("speed", 10, "replay speed multiplier (bars per second = speed)")
	start := flag.String("start", "", "RFC3339 replay window start (optional)")
	end := flag.String("end", "", "RFC3339 replay window end (optional)")
	controlSubject := flag.String("control-subject", "replay.control", "NATS subject for pause/resume/seek commands")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *checkConfig {
		return
	}
	if *source == "" {
		panic("replay: -source is required")
	}

	logger, err := obslog.New(obslog.Config{Service: "replay"})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	conn, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		logger.Fatal("nats connect failed", zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runReplay(ctx, conn, logger, replayOptions{
		source:         *source,
		speed:          *speed,
		start:          *start,
		end:            *end,
		controlSubject: *controlSubject,
	}); err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}
	logger.Info("replay finished")
}

type replayOptions struct {
	source         string
	speed          float64
	start          string
	end            string
	controlSubject string
}

func runReplay(ctx context.Context, conn *bus.Conn, logger *zap.Logger, opts replayOptions) error {
	bars, err := readBars(opts.source)
	if err != nil {
		return fmt.Errorf("replay: read %s: %w", opts.source, err)
	}
	bars = filterWindow(bars, opts.start, opts.end)
	sort.Slice(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	if len(bars) == 0 {
		return fmt.Errorf("replay: no bars available for %s", opts.source)
	}

	speed := opts.speed
	if speed <= 0 {
		speed = 1
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / speed))
	defer ticker.Stop()

	controlCh := make(chan replayCommand, 16)
	if opts.controlSubject != "" {
		if _, err := subscribeControl(conn, opts.controlSubject, controlCh, logger); err != nil {
			return err
		}
	}

	paused := false
	index := 0

	for index < len(bars) {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-controlCh:
			applyControl(&paused, &index, bars, cmd, logger)
		case <-ticker.C:
			if paused {
				continue
			}
			snapshot := buildSnapshot(bars[index])
			if err := conn.PublishJSON(tickSubjectPrefix+snapshot.Symbol, snapshot); err != nil {
				logger.Warn("replay publish failed", zap.Error(err))
			}
			index++
		}
	}
	return nil
}

func subscribeControl(conn *bus.Conn, subject string, controlCh chan<- replayCommand, logger *zap.Logger) (*nats.Subscription, error) {
	return conn.Raw().Subscribe(subject, func(msg *nats.Msg) {
		var cmd replayCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			logger.Warn("invalid replay control message", zap.Error(err))
			return
		}
		select {
		case controlCh <- cmd:
		default:
			logger.Warn("control channel saturated, dropping command", zap.String("command", cmd.Command))
		}
	})
}

func applyControl(paused *bool, index *int, bars []bar, cmd replayCommand, logger *zap.Logger) {
	switch strings.ToLower(cmd.Command) {
	case "pause":
		*paused = true
	case "resume":
		*paused = false
	case "seek":
		ts, err := time.Parse(time.RFC3339, cmd.Timestamp)
		if err != nil {
			logger.Warn("invalid seek timestamp", zap.Error(err))
			return
		}
		*index = seekIndex(bars, ts)
	default:
		logger.Warn("unknown replay command", zap.String("command", cmd.Command))
	}
}

func seekIndex(bars []bar, target time.Time) int {
	for i, b := range bars {
		if !b.TS.Before(target) {
			return i
		}
	}
	if len(bars) == 0 {
		return 0
	}
	return len(bars) - 1
}

func filterWindow(bars []bar, start, end string) []bar {
	var startTime, endTime time.Time
	if start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			startTime = t
		}
	}
	if end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			endTime = t
		}
	}
	if startTime.IsZero() && endTime.IsZero() {
		return bars
	}
	filtered := bars[:0:0]
	for _, b := range bars {
		if !startTime.IsZero() && b.TS.Before(startTime) {
			continue
		}
		if !endTime.IsZero() && b.TS.After(endTime) {
			continue
		}
		filtered = append(filtered, b)
	}
	if len(filtered) == 0 {
		return bars
	}
	return filtered
}

// buildSnapshot synthesizes a one-level book and a single recent trade
// from an OHLCV bar, following the teacher's buildMarketData heuristic:
// spread is the largest of 20% of the bar's range, 4bps of close, or 0.5
// price units, and
// side/volume split evenly across bid/ask depth.
func buildSnapshot(b bar) types.MarketData {
	volume := math.Max(b.Volume, 1)
	spread := math.Max((b.High-b.Low)*0.2, math.Max(b.Close*0.0004, 0.5))
	bidPrice := b.Close - spread/2
	askPrice := b.Close + spread/2
	depthSize := math.Max(volume*0.25, 1)
	tradeSize := math.Max(volume*0.1, 1)

	side := types.SideBuy
	if b.Close < b.Open {
		side = types.SideSell
	}

	return types.MarketData{
		Symbol: b.Symbol,
		TS:     b.TS,
		Bids:   []types.Level{{Price: types.NewPrice(bidPrice), Size: types.NewSize(depthSize)}},
		Asks:   []types.Level{{Price: types.NewPrice(askPrice), Size: types.NewSize(depthSize)}},
		RecentTrades: []types.Trade{{
			TS:     b.TS,
			Symbol: b.Symbol,
			Side:   side,
			Price:  types.NewPrice(b.Close),
			Size:   types.NewSize(tradeSize),
		}},
	}
}

func readBars(source string) ([]bar, error) {
	source = strings.TrimSpace(source)
	scheme, path := parseSource(source)

	switch scheme {
	case "csv":
		return readCSVBars(path)
	case "parquet":
		return readParquetBars(path)
	case "":
		switch {
		case strings.HasSuffix(strings.ToLower(path), ".csv"):
			return readCSVBars(path)
		case strings.HasSuffix(strings.ToLower(path), ".parquet"):
			return readParquetBars(path)
		}
	}
	return nil, fmt.Errorf("unsupported replay source: %s", source)
}

func parseSource(source string) (scheme string, path string) {
	if idx := strings.Index(source, "://"); idx != -1 {
		return strings.ToLower(source[:idx]), source[idx+3:]
	}
	return "", source
}

func readCSVBars(path string) ([]bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv file %s has no data rows", path)
	}

	header := make(map[string]int)
	for idx, col := range records[0] {
		header[strings.ToLower(strings.TrimSpace(col))] = idx
	}
	for _, key := range []string{"timestamp", "open", "high", "low", "close"} {
		if _, ok := header[key]; !ok {
			return nil, fmt.Errorf("csv file %s missing required column %q", path, key)
		}
	}
	symbolIdx, hasSymbol := header["symbol"]
	volumeIdx, hasVolume := header["volume"]

	bars := make([]bar, 0, len(records)-1)
	for _, record := range records[1:] {
		ts, err := time.Parse(time.RFC3339, record[header["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", record[header["timestamp"]], err)
		}
		open, err := strconv.ParseFloat(record[header["open"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid open %q: %w", record[header["open"]], err)
		}
		high, err := strconv.ParseFloat(record[header["high"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid high %q: %w", record[header["high"]], err)
		}
		low, err := strconv.ParseFloat(record[header["low"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid low %q: %w", record[header["low"]], err)
		}
		closeVal, err := strconv.ParseFloat(record[header["close"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid close %q: %w", record[header["close"]], err)
		}
		volume := 0.0
		if hasVolume && volumeIdx < len(record) && record[volumeIdx] != "" {
			if volume, err = strconv.ParseFloat(record[volumeIdx], 64); err != nil {
				volume = 0
			}
		}
		symbol := "BTCUSDT"
		if hasSymbol && symbolIdx < len(record) && record[symbolIdx] != "" {
			symbol = record[symbolIdx]
		}
		bars = append(bars, bar{Symbol: symbol, TS: ts.UTC(), Open: open, High: high, Low: low, Close: closeVal, Volume: volume})
	}
	return bars, nil
}

func readParquetBars(path string) ([]bar, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	type parquetRow struct {
		Timestamp int64   `parquet:"name=timestamp"`
		Symbol    string  `parquet:"name=symbol"`
		Open      float64 `parquet:"name=open"`
		High      float64 `parquet:"name=high"`
		Low       float64 `parquet:"name=low"`
		Close     float64 `parquet:"name=close"`
		Volume    float64 `parquet:"name=volume"`
	}

	pr, err := reader.NewParquetReader(fr, new(parquetRow), 4)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	numRows := int(pr.GetNumRows())
	rows := make([]parquetRow, numRows)
	if err := pr.Read(&rows); err != nil {
		return nil, err
	}

	bars := make([]bar, 0, numRows)
	for _, row := range rows {
		var ts time.Time
		switch {
		case row.Timestamp > 1e16:
			ts = time.Unix(0, row.Timestamp).UTC()
		case row.Timestamp > 1e12:
			ts = time.Unix(0, row.Timestamp*int64(time.Millisecond)).UTC()
		default:
			ts = time.Unix(row.Timestamp, 0).UTC()
		}
		symbol := row.Symbol
		if symbol == "" {
			symbol = "BTCUSDT"
		}
		bars = append(bars, bar{Symbol: symbol, TS: ts, Open: row.Open, High: row.High, Low: row.Low, Close: row.Close, Volume: row.Volume})
	}
	return bars, nil
}
