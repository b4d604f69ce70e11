package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Practicum PracticumConfig `json:"practicum"`
	Poller    PollerConfig    `json:"poller"`
	Logging   LoggingConfig   `json:"logging"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID is the single chat that receives status notifications.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
	// OwnerUserIDs may issue chat commands (/check, /status, ...).
	// Empty means anyone in the target chat.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// PracticumConfig controls the homework status API client.
//
// Strict is a pointer so we can distinguish "omitted" (defaults to true,
// i.e. current_date is required in responses) from an explicit false.
type PracticumConfig struct {
	Token    string `json:"token"`
	Endpoint string `json:"endpoint,omitempty"`
	// Timeout is a Go duration string for one API request. Default "5s".
	Timeout string `json:"timeout,omitempty"`
	Strict  *bool  `json:"strict,omitempty"`
}

// PollerConfig controls the poll loop cadence.
//
// Schedule accepts a cron expression ("*/10 * * * *", "@every 10m"),
// a Go duration ("600s", "10m"), HH:MM ("02:30"), or bare seconds ("600").
// Default is "600s".
type PollerConfig struct {
	Schedule string `json:"schedule,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotifierConfig controls delivery pacing and quiet hours.
// If the whole section is omitted, delivery defaults apply (1 msg/sec,
// no quiet hours).
type NotifierConfig struct {
	RatePerSec int               `json:"rate_per_sec,omitempty"`
	QuietHours *QuietHoursConfig `json:"quiet_hours,omitempty"`
}

// QuietHoursConfig parks notifications inside the window instead of sending.
// Start/End are "HH:MM"; a window crossing midnight (Start > End) is fine.
type QuietHoursConfig struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the optional persistence layer (delivery history
// and the parked-notification queue; the poll cursor is never persisted).
//
// Example:
//
//	"storage": { "driver": "file", "path": "./hwbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// StrictPracticum reports the effective strictness (default true).
func (c *Config) StrictPracticum() bool {
	if c.Practicum.Strict == nil {
		return true
	}
	return *c.Practicum.Strict
}

// Schedule returns the effective poll schedule string (default "600s").
func (c *Config) Schedule() string {
	if s := strings.TrimSpace(c.Poller.Schedule); s != "" {
		return s
	}
	return "600s"
}

// Validate checks credentials and field syntax. Cross-service checks
// (schedule grammar, quiet window) are installed as a Manager validator
// by the app so this package stays free of service imports.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Practicum.Token) == "" {
		missing = append(missing, "practicum.token (PRACTICUM_TOKEN)")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		missing = append(missing, "telegram.token (TELEGRAM_TOKEN)")
	}
	if c.Telegram.ChatID == 0 {
		missing = append(missing, "telegram.chat_id (TELEGRAM_CHAT_ID)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required credentials: %s", strings.Join(missing, ", "))
	}

	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("practicum.timeout", c.Practicum.Timeout); err != nil {
		return err
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
