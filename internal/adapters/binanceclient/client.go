package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"tradeledger/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.PriceSource interface using the go-binance
// library. Only public market-data endpoints are used, so API keys are
// optional.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance price source.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance price source adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance price source configured", map[string]interface{}{
		"baseURL": client.BaseURL,
	})

	return &Client{futuresClient: client, logger: cfg.Logger}, nil
}

// MarkPrice retrieves the current mark price for an instrument.
func (c *Client) MarkPrice(ctx context.Context, instrument string) (float64, error) {
	premiums, err := c.futuresClient.NewPremiumIndexService().Symbol(instrument).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, "MarkPrice")
	}
	if len(premiums) == 0 {
		return 0, fmt.Errorf("MarkPrice: no premium index returned for %s: %w", instrument, ports.ErrNotFound)
	}

	price, err := strconv.ParseFloat(premiums[0].MarkPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("MarkPrice: failed to parse mark price %q for %s: %w", premiums[0].MarkPrice, instrument, err)
	}
	return price, nil
}

// handleError translates Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrServiceUnavailable
		case -1121: // Invalid symbol
			mappedErr = ports.ErrValidation
		default:
			mappedErr = ports.ErrServiceUnavailable
		}
		finalErr := fmt.Errorf("%s failed: %w: %v", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Network failures and deadline hits are retryable outages.
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %v", operation, ports.ErrTimeout, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %v", operation, ports.ErrServiceUnavailable, err)
	}
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}
