package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/config"
)

func newTestClient(url string) *ExpoClient {
	return NewExpoClient(config.Push{
		BaseURL:           url,
		AccessToken:       "expo-token",
		RequestTimeout:    time.Second,
		RetryMaxTries:     3,
		RetryInterval:     time.Millisecond,
		BreakerFailures:   5,
		BreakerOpenPeriod: time.Minute,
	}, zap.NewNop().Sugar())
}

func TestIsExpoPushToken(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"ExponentPushToken[abc]":               true,
		"ExpoPushToken[xyz-123]":               true,
		"ExponentPushToken[]":                  false,
		"ExponentPushToken[abc":                false,
		"3f2504e0-4f89-11d3-9a0c-0305e82c3301": true,
		"not-a-token":                          false,
		"":                                     false,
	}
	long := "ExponentPushToken[" + strings.Repeat("a", MaxTokenLength) + "]"
	cases[long] = false
	cases[long[:MaxTokenLength-1]+"]"] = true
	for in, want := range cases {
		require.Equal(t, want, IsExpoPushToken(in), in)
	}
}

func TestSendBatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, sendPath, r.URL.Path)
		require.Equal(t, "Bearer expo-token", r.Header.Get("Authorization"))

		var msgs []Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msgs))
		require.Len(t, msgs, 2)

		_ = json.NewEncoder(w).Encode(map[string]any{"data": []Ticket{
			{Status: StatusOK, ID: "r1"},
			{Status: StatusFailed, Message: "gone", Details: &Details{Error: ErrorDeviceNotRegistered}},
		}})
	}))
	defer srv.Close()

	tickets, err := newTestClient(srv.URL).SendBatch(context.Background(), []Message{
		{To: "ExponentPushToken[a]", Title: "t"},
		{To: "ExponentPushToken[b]", Title: "t"},
	})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	require.True(t, tickets[0].OK())
	require.True(t, tickets[1].DeviceNotRegistered())
}

func TestSendBatchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"r1"}]}`))
	}))
	defer srv.Close()

	tickets, err := newTestClient(srv.URL).SendBatch(context.Background(), []Message{{To: "ExponentPushToken[a]"}})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.EqualValues(t, 3, calls.Load())
}

func TestSendBatchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":"VALIDATION_ERROR","message":"bad"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendBatch(context.Background(), []Message{{To: "ExponentPushToken[a]"}})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadRequest, se.Code)
	require.EqualValues(t, 1, calls.Load())
}

func TestSendBatchLimit(t *testing.T) {
	t.Parallel()

	_, err := newTestClient("http://unused").SendBatch(context.Background(), make([]Message, MaxMessagesPerRequest+1))
	require.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestCheckReceiptsChunks(t *testing.T) {
	t.Parallel()

	var chunks atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, receiptsPath, r.URL.Path)
		var req struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.LessOrEqual(t, len(req.IDs), MaxReceiptIDsPerRequest)
		chunks.Add(1)

		data := map[string]Receipt{}
		for _, id := range req.IDs {
			data[id] = Receipt{Status: StatusOK}
		}
		data[req.IDs[0]] = Receipt{Status: StatusFailed, Details: &Details{Error: ErrorDeviceNotRegistered}}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	ids := make([]string, 301)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	receipts, err := newTestClient(srv.URL).CheckReceipts(context.Background(), ids)
	require.NoError(t, err)
	require.EqualValues(t, 2, chunks.Load())
	require.Len(t, receipts, 301)
	require.True(t, receipts[ids[0]].DeviceNotRegistered())
	require.True(t, receipts[ids[300]].DeviceNotRegistered())
}
