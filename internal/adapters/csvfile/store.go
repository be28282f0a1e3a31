package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"cryptoKline/internal/domain"
	"cryptoKline/internal/ports"

	"github.com/shopspring/decimal"
)

// TimeLayout is how open and close times are written.
const TimeLayout = "2006-01-02 15:04:05"

const dayLayout = "20060102"

var (
	header = []string{
		"symbol", "open_time", "open", "high", "low", "close", "volume", "close_time",
		"quote_asset_volume", "number_of_trades", "taker_buy_base_asset_volume", "taker_buy_quote_asset_volume",
	}
	yearDirRe = regexp.MustCompile(`^\d{4}$`)
	dayDirRe  = regexp.MustCompile(`^\d{8}$`)
)

// Config holds configuration for the file store.
type Config struct {
	Root   string
	Logger ports.Logger
}

// Store writes klines as one CSV per symbol and UTC day under
// root/<year>/<yyyymmdd>/<symbol>_<yyyymmdd>.csv.
type Store struct {
	root   string
	logger ports.Logger
}

// New creates a file store rooted at cfg.Root.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for file store")
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("root directory is required for file store")
	}
	return &Store{root: cfg.Root, logger: cfg.Logger}, nil
}

// Name identifies the sink in logs and metrics.
func (s *Store) Name() string { return "csv" }

// Path returns the file that holds symbol's klines for the UTC day containing day.
func (s *Store) Path(symbol string, day time.Time) string {
	day = day.UTC()
	d := day.Format(dayLayout)
	return filepath.Join(s.root, day.Format("2006"), d, fmt.Sprintf("%s_%s.csv", symbol, d))
}

// Exists reports whether a file for symbol and day was already written.
func (s *Store) Exists(symbol string, day time.Time) bool {
	info, err := os.Stat(s.Path(symbol, day))
	return err == nil && !info.IsDir()
}

// Write splits the batch by UTC day and overwrites each day's file.
func (s *Store) Write(ctx context.Context, batch *domain.KlineBatch) error {
	if batch.IsEmpty() {
		return nil
	}

	byDay := make(map[string][]*domain.Kline)
	var order []string
	for _, k := range batch.Klines {
		path := s.Path(k.Symbol, k.OpenTime)
		if _, ok := byDay[path]; !ok {
			order = append(order, path)
		}
		byDay[path] = append(byDay[path], k)
	}

	for _, path := range order {
		if err := WriteKlines(path, byDay[path]); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		s.logger.Debug(ctx, "Kline file written", map[string]interface{}{"path": path, "rows": len(byDay[path])})
	}
	return nil
}

// LatestDate returns the newest day directory under root, or false if none.
func (s *Store) LatestDate() (time.Time, bool, error) {
	years, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to list %s: %w", s.root, err)
	}

	var latest time.Time
	for _, y := range years {
		if !y.IsDir() || !yearDirRe.MatchString(y.Name()) {
			continue
		}
		days, err := os.ReadDir(filepath.Join(s.root, y.Name()))
		if err != nil {
			return time.Time{}, false, fmt.Errorf("failed to list year %s: %w", y.Name(), err)
		}
		for _, d := range days {
			if !d.IsDir() || !dayDirRe.MatchString(d.Name()) {
				continue
			}
			t, err := time.ParseInLocation(dayLayout, d.Name(), time.UTC)
			if err != nil {
				continue
			}
			if t.After(latest) {
				latest = t
			}
		}
	}
	return latest, !latest.IsZero(), nil
}

// WriteKlines writes klines to filename, creating parent directories.
func WriteKlines(filename string, klines []*domain.Kline) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, k := range klines {
		err := writer.Write([]string{
			k.Symbol,
			k.OpenTime.UTC().Format(TimeLayout),
			k.Open.String(),
			k.High.String(),
			k.Low.String(),
			k.Close.String(),
			k.Volume.String(),
			k.CloseTime.UTC().Format(TimeLayout),
			k.QuoteAssetVolume.String(),
			strconv.FormatInt(k.TradeCount, 10),
			k.TakerBuyBaseVolume.String(),
			k.TakerBuyQuoteVolume.String(),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

// ReadKlines loads a file written by WriteKlines, sorted by open time.
func ReadKlines(filename string, interval domain.Interval) ([]*domain.Kline, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(header)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	klines := make([]*domain.Kline, 0, len(records)-1)
	for i, rec := range records[1:] {
		k, err := parseRecord(rec, interval)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filename, i+2, err)
		}
		klines = append(klines, k)
	}
	sort.Slice(klines, func(i, j int) bool { return klines[i].OpenTime.Before(klines[j].OpenTime) })
	return klines, nil
}

func parseRecord(rec []string, interval domain.Interval) (*domain.Kline, error) {
	k := &domain.Kline{Symbol: rec[0], Interval: interval}
	var err error
	if k.OpenTime, err = time.ParseInLocation(TimeLayout, rec[1], time.UTC); err != nil {
		return nil, fmt.Errorf("parsing open_time: %w", err)
	}
	if k.CloseTime, err = time.ParseInLocation(TimeLayout, rec[7], time.UTC); err != nil {
		return nil, fmt.Errorf("parsing close_time: %w", err)
	}
	if k.TradeCount, err = strconv.ParseInt(rec[9], 10, 64); err != nil {
		return nil, fmt.Errorf("parsing number_of_trades: %w", err)
	}

	decimals := []struct {
		col int
		dst *decimal.Decimal
	}{
		{2, &k.Open}, {3, &k.High}, {4, &k.Low}, {5, &k.Close}, {6, &k.Volume},
		{8, &k.QuoteAssetVolume}, {10, &k.TakerBuyBaseVolume}, {11, &k.TakerBuyQuoteVolume},
	}
	for _, d := range decimals {
		if *d.dst, err = decimal.NewFromString(rec[d.col]); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", header[d.col], err)
		}
	}
	return k, nil
}

var _ ports.Sink = (*Store)(nil)
