package binanceclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"cryptoKline/internal/domain"
	"cryptoKline/internal/ports"

	"github.com/adshao/go-binance/v2"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"

	// MaxPageLimit is the largest page the spot klines endpoint serves.
	MaxPageLimit = 1000
)

// Client implements ports.ExchangeClient on the Binance spot REST API.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey      string
	SecretKey   string
	BaseURL     string        // Empty selects production
	ProxyURL    string        // Optional HTTP(S) proxy for REST calls
	HTTPTimeout time.Duration // Per request timeout (e.g., 30 * time.Second)
	Logger      ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	client.BaseURL = baseURLProduction
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client.BaseURL = strings.TrimRight(base, "/")
	}

	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok || baseTransport == nil {
		return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
	}
	transport := baseTransport.Clone()
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &statusTransport{next: transport},
	}

	cfg.Logger.Info(context.Background(), "Binance spot client configured", map[string]interface{}{
		"baseURL": client.BaseURL,
		"proxy":   cfg.ProxyURL != "",
		"timeout": timeout.String(),
	})

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
	}, nil
}

// FetchPage retrieves one page of klines opening in [startTime, endTime].
func (c *Client) FetchPage(ctx context.Context, symbol string, interval domain.Interval, startTime, endTime time.Time, limit int) ([]*domain.Kline, error) {
	op := "FetchPage"
	if limit <= 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	ctx, status := withStatus(ctx)
	binanceKlines, err := c.spotClient.NewKlinesService().
		Symbol(symbol).
		Interval(string(interval)).
		StartTime(startTime.UnixMilli()).
		EndTime(endTime.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op, status)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, &ports.FatalError{Op: op, Err: fmt.Errorf("%w: failed to translate kline: %w", ports.ErrUnknown, err)}
		}
		domainKlines = append(domainKlines, dk)
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{
		"symbol":   symbol,
		"interval": string(interval),
		"start":    startTime.UTC().Format(time.RFC3339),
		"rows":     len(domainKlines),
	})
	return domainKlines, nil
}

// ListSymbols returns spot symbols quoted in quoteAsset that allow spot and margin trading.
func (c *Client) ListSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	op := "ListSymbols"
	ctx, status := withStatus(ctx)
	info, err := c.spotClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op, status)
	}

	quoteAsset = strings.ToUpper(quoteAsset)
	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.QuoteAsset != quoteAsset {
			continue
		}
		if !s.IsSpotTradingAllowed || !s.IsMarginTradingAllowed {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}
	sort.Strings(symbols)

	c.logger.Info(ctx, op+" successful", map[string]interface{}{"quoteAsset": quoteAsset, "count": len(symbols)})
	return symbols, nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	ctx, status := withStatus(ctx)
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op, status)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	ctx, status := withStatus(ctx)
	serverTimeMs, err := c.spotClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op, status)
	}
	return time.UnixMilli(serverTimeMs).UTC(), nil
}

// handleError classifies err and logs it at a level matching its severity.
func (c *Client) handleError(ctx context.Context, err error, operation string, status *responseStatus) error {
	classified := classify(operation, status.code(), status.retryAfter(), err)

	fields := map[string]interface{}{"operation": operation, "status": status.code()}
	if rl, ok := ports.IsRateLimited(classified); ok {
		fields["tier"] = rl.Tier.String()
		fields["retryAfter"] = rl.RetryAfter.String()
		c.logger.Warn(ctx, operation+" rate limited", fields)
		return classified
	}
	c.logger.Error(ctx, err, operation+" failed", fields)
	return classified
}
