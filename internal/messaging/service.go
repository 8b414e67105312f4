// Package messaging provides pluggable message transports for SupportFlow and
// the responder that pumps inbound messages through the orchestrator.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/supportflow/supportflow/internal/models"
)

// ErrServiceStopped is returned when an operation is attempted on a stopped
// service.
var ErrServiceStopped = errors.New("messaging service stopped")

// Shared transport configuration.
const (
	// DefaultChannelBufferSize defines the buffer size for receipt and
	// response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the timeout for non-blocking channel
	// sends before an event is dropped.
	DefaultChannelTimeout = 1 * time.Second
	// MinPhoneNumberDigits is the minimum digit count for a canonical
	// recipient.
	MinPhoneNumberDigits = 6
)

// phoneNumberRegex strips non-numeric characters during canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction. It supports
// sending messages and provides channels for receipt and inbound response
// events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier according to the transport's rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of receipt events.
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming user messages.
	Responses() <-chan models.Response
}
