// Package gateway defines the outbound messaging contract and the
// delivery policy that turns one structured reply into transport sends.
package gateway

import "context"

// Client sends outbound messages over one messaging transport. Both
// sends are synchronous and return once the transport accepted the
// message.
type Client interface {
	// SendText delivers a plain text message.
	SendText(ctx context.Context, to, body string) error
	// SendImage delivers one picture by URL with an optional caption.
	SendImage(ctx context.Context, to, url, caption string) error
}
