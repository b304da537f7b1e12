package model

type SessionStatus string

const (
	SessionStatusNotConnected  SessionStatus = "not_connected"
	SessionStatusQRPending     SessionStatus = "qr_pending"
	SessionStatusConnected     SessionStatus = "connected"
	SessionStatusAuthenticated SessionStatus = "authenticated"
	SessionStatusDisconnected  SessionStatus = "disconnected"
	SessionStatusTerminated    SessionStatus = "terminated"
)

// Operational reports whether the session is paired and usable.
func (s SessionStatus) Operational() bool {
	return s == SessionStatusConnected || s == SessionStatusAuthenticated
}

// Event types emitted by the automation client.
const (
	EventAuthFailure           = "auth_failure"
	EventAuthenticated         = "authenticated"
	EventCall                  = "call"
	EventChangeState           = "change_state"
	EventDisconnected          = "disconnected"
	EventLoadingScreen         = "loading_screen"
	EventMediaUploaded         = "media_uploaded"
	EventMessage               = "message"
	EventMessageAck            = "message_ack"
	EventMessageCreate         = "message_create"
	EventMessageReaction       = "message_reaction"
	EventMessageRevokeEveryone = "message_revoke_everyone"
	EventQR                    = "qr"
	EventReady                 = "ready"
	EventMedia                 = "media"
)
