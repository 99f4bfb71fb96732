package notifier_config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type TemplateSeed struct {
	EventType string   `mapstructure:"event_type"`
	Channel   string   `mapstructure:"channel"`
	Format    string   `mapstructure:"format"`
	Subject   string   `mapstructure:"subject"`
	Body      string   `mapstructure:"body"`
	Variables []string `mapstructure:"variables"`
}

type EventSeed struct {
	Enabled   bool     `mapstructure:"enabled"`
	Channels  []string `mapstructure:"channels"`
	Frequency string   `mapstructure:"frequency"`
}

type QuietHoursSeed struct {
	Enabled  bool   `mapstructure:"enabled"`
	Start    string `mapstructure:"start_time"`
	End      string `mapstructure:"end_time"`
	Timezone string `mapstructure:"timezone"`
}

type FrequencyLimitSeed struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxNotifications int           `mapstructure:"max_notifications"`
	Window           time.Duration `mapstructure:"window"`
}

type PreferenceSeed struct {
	UserID         string               `mapstructure:"user_id"`
	Events         map[string]EventSeed `mapstructure:"events"`
	QuietHours     *QuietHoursSeed      `mapstructure:"quiet_hours"`
	FrequencyLimit *FrequencyLimitSeed  `mapstructure:"frequency_limit"`
}

// Seed is the bootstrap catalog applied at notifier start.
type Seed struct {
	Templates   []TemplateSeed   `mapstructure:"templates"`
	Preferences []PreferenceSeed `mapstructure:"preferences"`
}

func LoadSeed(path string) (*Seed, error) {
	var s Seed
	if path == "" {
		return &s, nil
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	return &s, nil
}
