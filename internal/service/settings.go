package service

import (
	"slices"

	apperrors "github.com/openclaw/session-gateway/internal/errors"
	"github.com/openclaw/session-gateway/internal/model"
)

// KnownCallbacks lists every event type a session can forward to its webhook.
var KnownCallbacks = []string{
	model.EventAuthFailure,
	model.EventAuthenticated,
	model.EventCall,
	model.EventChangeState,
	model.EventDisconnected,
	model.EventLoadingScreen,
	model.EventMediaUploaded,
	model.EventMessage,
	model.EventMessageAck,
	model.EventMessageCreate,
	model.EventMessageReaction,
	model.EventMessageRevokeEveryone,
	model.EventQR,
	model.EventReady,
	model.EventMedia,
}

const (
	defaultMarkReadOnReply = true
	defaultSendingDelayMs  = 1000
)

// DefaultSettings returns the settings applied to sessions created without overrides.
func DefaultSettings() model.Settings {
	return model.Settings{
		EnabledCallbacks: slices.Clone(KnownCallbacks),
		AlwaysOnline:     false,
		MarkReadOnReply:  defaultMarkReadOnReply,
		SendingDelay:     defaultSendingDelayMs,
	}
}

// SettingsInput is the caller-supplied subset of settings. Nil fields keep the default.
type SettingsInput struct {
	EnabledCallbacks []string `json:"enabledCallbacks"`
	AlwaysOnline     *bool    `json:"alwaysOnline"`
	MarkReadOnReply  *bool    `json:"markReadOnReply"`
	SendingDelay     *int     `json:"sendingDelay"`
}

func (in *SettingsInput) validate() error {
	if in == nil {
		return nil
	}
	for _, name := range in.EnabledCallbacks {
		if !slices.Contains(KnownCallbacks, name) {
			return apperrors.InvalidInput("settings.enabledCallbacks", "unknown callback "+name)
		}
	}
	if in.SendingDelay != nil && *in.SendingDelay < 0 {
		return apperrors.InvalidInput("settings.sendingDelay", "must not be negative")
	}
	return nil
}

// Merge applies the input over DefaultSettings.
func (in *SettingsInput) Merge() model.Settings {
	settings := DefaultSettings()
	if in == nil {
		return settings
	}
	if in.EnabledCallbacks != nil {
		settings.EnabledCallbacks = dedupe(in.EnabledCallbacks)
	}
	if in.AlwaysOnline != nil {
		settings.AlwaysOnline = *in.AlwaysOnline
	}
	if in.MarkReadOnReply != nil {
		settings.MarkReadOnReply = *in.MarkReadOnReply
	}
	if in.SendingDelay != nil {
		settings.SendingDelay = *in.SendingDelay
	}
	return settings
}

// dedupe keeps the first occurrence of each name, preserving order.
func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
