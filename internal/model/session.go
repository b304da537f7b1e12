package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Session is the durable record of one automation-client session.
type Session struct {
	SessionID   string        `db:"session_id" json:"sessionId"`
	WebhookURL  string        `db:"webhook_url" json:"webhookUrl"`
	AuthToken   string        `db:"auth_token" json:"authToken"`
	Name        *string       `db:"name" json:"name"`
	WID         *string       `db:"wid" json:"wid"`
	Status      SessionStatus `db:"status" json:"status"`
	PhoneNumber *string       `db:"phone_number" json:"phoneNumber"`
	Settings    Settings      `db:"settings" json:"settings"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updatedAt"`
}

type CreateSessionParams struct {
	SessionID   string
	WebhookURL  string
	AuthToken   string
	Name        *string
	PhoneNumber *string
	Settings    Settings
}

// Settings is stored as a JSON document alongside the session row.
type Settings struct {
	EnabledCallbacks []string `json:"enabledCallbacks"`
	AlwaysOnline     bool     `json:"alwaysOnline"`
	MarkReadOnReply  bool     `json:"markReadOnReply"`
	// SendingDelay is in milliseconds.
	SendingDelay int `json:"sendingDelay"`
}

// CallbackEnabled reports whether events of the given type may be forwarded.
func (s Settings) CallbackEnabled(event string) bool {
	return slices.Contains(s.EnabledCallbacks, event)
}

// Value encodes settings as text so both JSONB (lib/pq) and TEXT (sqlite) columns accept it.
func (s Settings) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *Settings) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = Settings{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("settings: unsupported scan type %T", src)
	}
}
