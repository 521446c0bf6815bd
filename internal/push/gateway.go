// Package push talks to the push-delivery provider. The dispatcher only
// sees the Gateway and ReceiptChecker interfaces.
package push

import (
	"context"
	"regexp"
	"strings"
)

// ErrorDeviceNotRegistered is the provider error class that marks a token
// as permanently dead.
const ErrorDeviceNotRegistered = "DeviceNotRegistered"

const (
	StatusOK     = "ok"
	StatusFailed = "error"
)

// Message is one notification addressed to a single token.
type Message struct {
	To        string            `json:"to"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Sound     string            `json:"sound,omitempty"`
	Priority  string            `json:"priority,omitempty"`
	ChannelID string            `json:"channelId,omitempty"`
}

type Details struct {
	Error string `json:"error,omitempty"`
}

// Ticket is the immediate per-message outcome of a send. ID is set for
// accepted messages and is later exchanged for a Receipt.
type Ticket struct {
	Status  string   `json:"status"`
	ID      string   `json:"id,omitempty"`
	Message string   `json:"message,omitempty"`
	Details *Details `json:"details,omitempty"`
}

func (t Ticket) OK() bool { return t.Status == StatusOK }

// DeviceNotRegistered reports a provider-confirmed dead token.
func (t Ticket) DeviceNotRegistered() bool {
	return t.Status == StatusFailed && t.Details != nil && t.Details.Error == ErrorDeviceNotRegistered
}

// Receipt is the delivery outcome of an accepted ticket.
type Receipt struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Details *Details `json:"details,omitempty"`
}

func (r Receipt) DeviceNotRegistered() bool {
	return r.Status == StatusFailed && r.Details != nil && r.Details.Error == ErrorDeviceNotRegistered
}

// Gateway sends batches of messages. Tickets are returned in message order.
type Gateway interface {
	IsValidTokenFormat(token string) bool
	SendBatch(ctx context.Context, msgs []Message) ([]Ticket, error)
}

// ReceiptChecker resolves ticket ids into receipts. Gateways may implement it.
type ReceiptChecker interface {
	CheckReceipts(ctx context.Context, ids []string) (map[string]Receipt, error)
}

// MaxTokenLength matches the width of the device_tokens.token column.
const MaxTokenLength = 255

var bareTokenPattern = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// IsExpoPushToken reports whether token has the Expo token shape:
// ExponentPushToken[...], ExpoPushToken[...] or a bare uuid, at most
// MaxTokenLength bytes long.
func IsExpoPushToken(token string) bool {
	if len(token) > MaxTokenLength {
		return false
	}
	for _, prefix := range []string{"ExponentPushToken[", "ExpoPushToken["} {
		if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, "]") {
			return len(token) > len(prefix)+1
		}
	}
	return bareTokenPattern.MatchString(token)
}
