package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// EmbedWithRetry retries transient embedding failures with exponential
// backoff. Intended for ingestion paths; the query path uses Embed
// directly so a slow embedder cannot eat the request budget.
func (c *Client) EmbedWithRetry(ctx context.Context, text string) ([]float32, error) {
	config := DefaultRetryConfig()

	var vector []float32
	err := c.retryOperation(ctx, config, func() error {
		var err error
		vector, err = c.Embed(ctx, text)
		return err
	})
	return vector, err
}

func (c *Client) retryOperation(ctx context.Context, config RetryConfig, operation func() error) error {
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		if attempt == config.MaxRetries {
			return fmt.Errorf("operation failed after %d retries: %w", config.MaxRetries, err)
		}

		delay := time.Duration(float64(config.BaseDelay) * math.Pow(1.5, float64(attempt)))
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
			"error":   err.Error(),
		}).Warn("Retrying embedding operation")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil
}
