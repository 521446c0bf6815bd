package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/config"
)

const (
	sendPath     = "/--/api/v2/push/send"
	receiptsPath = "/--/api/v2/push/getReceipts"

	// MaxMessagesPerRequest and MaxReceiptIDsPerRequest are the provider's
	// per-call limits.
	MaxMessagesPerRequest   = 100
	MaxReceiptIDsPerRequest = 300
)

// ErrBatchTooLarge is returned when SendBatch gets more than 100 messages.
var ErrBatchTooLarge = errors.New("push: batch exceeds provider limit")

// StatusError is an unexpected HTTP status from the provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push provider returned %d: %s", e.Code, e.Body)
}

// ExpoClient is the Expo push HTTP API client. Every call runs through a
// circuit breaker, and retryable failures (network, 429, 5xx) are retried
// with exponential backoff.
type ExpoClient struct {
	http        *http.Client
	baseURL     string
	accessToken string
	maxTries    uint
	retryEvery  time.Duration
	breaker     *gobreaker.CircuitBreaker[[]byte]
	log         *zap.SugaredLogger
}

func NewExpoClient(cfg config.Push, log *zap.SugaredLogger) *ExpoClient {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "expo-push",
		Timeout: cfg.BreakerOpenPeriod,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// client errors say nothing about provider health
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || (errors.As(err, &se) && se.Code < 500 && se.Code != http.StatusTooManyRequests)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	tries := cfg.RetryMaxTries
	if tries == 0 {
		tries = 1
	}
	return &ExpoClient{
		http:        &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		maxTries:    tries,
		retryEvery:  cfg.RetryInterval,
		breaker:     cb,
		log:         log,
	}
}

// IsValidTokenFormat implements Gateway.
func (c *ExpoClient) IsValidTokenFormat(token string) bool { return IsExpoPushToken(token) }

type sendResponse struct {
	Data   []Ticket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// SendBatch posts up to 100 messages and returns their tickets in order.
func (c *ExpoClient) SendBatch(ctx context.Context, msgs []Message) ([]Ticket, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if len(msgs) > MaxMessagesPerRequest {
		return nil, ErrBatchTooLarge
	}
	body, err := c.post(ctx, sendPath, msgs)
	if err != nil {
		return nil, err
	}
	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode push tickets: %w", err)
	}
	if len(resp.Data) == 0 && len(resp.Errors) > 0 {
		return nil, fmt.Errorf("push request rejected: %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	return resp.Data, nil
}

type receiptsResponse struct {
	Data map[string]Receipt `json:"data"`
}

// CheckReceipts implements ReceiptChecker. Ids are requested in chunks
// of 300; a failing chunk is logged and skipped.
func (c *ExpoClient) CheckReceipts(ctx context.Context, ids []string) (map[string]Receipt, error) {
	out := make(map[string]Receipt, len(ids))
	var firstErr error
	for start := 0; start < len(ids); start += MaxReceiptIDsPerRequest {
		end := min(start+MaxReceiptIDsPerRequest, len(ids))
		body, err := c.post(ctx, receiptsPath, map[string][]string{"ids": ids[start:end]})
		if err == nil {
			var resp receiptsResponse
			if err = json.Unmarshal(body, &resp); err == nil {
				for id, r := range resp.Data {
					out[id] = r
				}
				continue
			}
		}
		c.log.Warnw("receipt chunk failed", "from", start, "to", end, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (c *ExpoClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	if c.retryEvery > 0 {
		b.InitialInterval = c.retryEvery
	}

	return backoff.Retry(ctx, func() ([]byte, error) {
		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.do(ctx, path, raw)
		})
		if err == nil {
			return body, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(err)
		}
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 && se.Code != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		c.log.Debugw("push request retry", "path", path, "error", err)
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
}

func (c *ExpoClient) do(ctx context.Context, path string, raw []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
