// Package client defines the boundary to the automation client that pairs and drives
// each session. Drivers live in subpackages.
package client

import "context"

// Options carries per-session behaviour settings to the driver.
type Options struct {
	AlwaysOnline    bool
	MarkReadOnReply bool
	// SendingDelayMs is applied between outgoing messages.
	SendingDelayMs int
}

// Result mirrors the driver's create call: Success=false with a Message means the driver
// declined (e.g. out of capacity); a non-nil error means the call itself failed.
type Result struct {
	Success bool
	Message string
	Handle  Handle
}

type Provider interface {
	CreateSession(ctx context.Context, sessionID string, opts Options) (Result, error)
}

// Event is emitted by a running handle. Data is JSON-serialisable.
type Event struct {
	Type string
	Data any
}

// ReadyInfo is the payload of a "ready" event.
type ReadyInfo struct {
	WID         string `json:"wid"`
	PhoneNumber string `json:"phoneNumber"`
	Platform    string `json:"platform,omitempty"`
}

type Handle interface {
	// Events is closed when the handle is destroyed.
	Events() <-chan Event
	Logout(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// ReadyNotifier is implemented by handles that signal readiness of their runtime context
// through a channel. Handles without it are polled through their readiness field path.
type ReadyNotifier interface {
	Ready() <-chan struct{}
}
