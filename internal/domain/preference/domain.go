package preference

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/NordCoder/Courier/internal/domain/notification"
)

type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
)

type EventPreference struct {
	Enabled   bool                   `json:"enabled"`
	Channels  []notification.Channel `json:"channels"`
	Frequency Frequency              `json:"frequency,omitempty"`
}

// QuietHours is a local time-of-day window; Start and End are "HH:MM".
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"startTime"`
	End      string `json:"endTime"`
	Timezone string `json:"timezone"`
}

// FrequencyLimit caps sends per Window. On the wire Window is a duration string such as "1h"
// or "30m"; a bare number is read as seconds.
type FrequencyLimit struct {
	Enabled          bool
	MaxNotifications int
	Window           time.Duration
}

type frequencyLimitJSON struct {
	Enabled          bool            `json:"enabled"`
	MaxNotifications int             `json:"maxNotifications"`
	Window           json.RawMessage `json:"window,omitempty"`
}

func (f FrequencyLimit) MarshalJSON() ([]byte, error) {
	w, err := json.Marshal(f.Window.String())
	if err != nil {
		return nil, err
	}
	return json.Marshal(frequencyLimitJSON{Enabled: f.Enabled, MaxNotifications: f.MaxNotifications, Window: w})
}

func (f *FrequencyLimit) UnmarshalJSON(b []byte) error {
	var aux frequencyLimitJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	w, err := parseWindow(aux.Window)
	if err != nil {
		return err
	}
	*f = FrequencyLimit{Enabled: aux.Enabled, MaxNotifications: aux.MaxNotifications, Window: w}
	return nil
}

func parseWindow(raw json.RawMessage) (time.Duration, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("frequency window %q: %w", s, err)
		}
		return d, nil
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return 0, fmt.Errorf("frequency window %s: want duration string or seconds", raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

type Preferences struct {
	UserID         string                                     `json:"userId"`
	Events         map[notification.EventType]EventPreference `json:"events"`
	QuietHours     *QuietHours                                `json:"quietHours,omitempty"`
	FrequencyLimit *FrequencyLimit                            `json:"frequencyLimit,omitempty"`
	CreatedAt      time.Time                                  `json:"createdAt"`
	UpdatedAt      time.Time                                  `json:"updatedAt"`
}

// Defaults returns the built-in preferences used when nothing is stored for the user.
func Defaults(userID string) *Preferences {
	events := make(map[notification.EventType]EventPreference, len(notification.KnownEventTypes))
	for _, et := range notification.KnownEventTypes {
		events[et] = EventPreference{
			Enabled:   false,
			Channels:  []notification.Channel{notification.ChannelEmail},
			Frequency: FrequencyImmediate,
		}
	}
	events[notification.EventTestFailed] = EventPreference{
		Enabled:   true,
		Channels:  []notification.Channel{notification.ChannelEmail},
		Frequency: FrequencyImmediate,
	}
	events[notification.EventCriticalAlert] = EventPreference{
		Enabled:   true,
		Channels:  []notification.Channel{notification.ChannelEmail, notification.ChannelSMS},
		Frequency: FrequencyImmediate,
	}
	return &Preferences{UserID: userID, Events: events}
}

// Event returns the stored toggle for et, falling back to the built-in default.
func (p *Preferences) Event(et notification.EventType) EventPreference {
	if p != nil && p.Events != nil {
		if ep, ok := p.Events[et]; ok {
			return ep
		}
	}
	return Defaults("").Events[et]
}
