package notifier_config

import (
	"time"

	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/obs/retry"
	kafkax "github.com/NordCoder/Courier/internal/repository/kafka"
	pginfra "github.com/NordCoder/Courier/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
	Region  string `mapstructure:"region"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type OTEL struct {
	Enable      bool    `mapstructure:"enable"`
	Endpoint    string  `mapstructure:"otlp_endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

type KafkaIn struct {
	Brokers       []string `mapstructure:"brokers" validate:"required,min=1"`
	Topic         string   `mapstructure:"topic" validate:"required"`
	GroupID       string   `mapstructure:"group_id" validate:"required"`
	Partitions    int      `mapstructure:"partitions" validate:"gte=0"`
	FromBeginning bool     `mapstructure:"from_beginning"`
	DLQTopic      string   `mapstructure:"dlq_topic" validate:"required"`
}

// Channels maps each delivery channel to its publish topic.
type Channels struct {
	EmailTopic     string `mapstructure:"email_topic" validate:"required"`
	SMSTopic       string `mapstructure:"sms_topic" validate:"required"`
	ChatTopic      string `mapstructure:"chat_topic" validate:"required"`
	WebhookTopic   string `mapstructure:"webhook_topic" validate:"required"`
	EmailTransport string `mapstructure:"email_transport" validate:"oneof=kafka smtp"`
}

type SMTP struct {
	Addr       string        `mapstructure:"addr"`
	From       string        `mapstructure:"from"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SubjPrefix string        `mapstructure:"subj_prefix"`
}

type Relay struct {
	Enabled     bool          `mapstructure:"enabled"`
	URL         string        `mapstructure:"url"`
	APIKey      string        `mapstructure:"api_key"`
	BearerToken string        `mapstructure:"bearer_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Source      string        `mapstructure:"source"`
	Version     string        `mapstructure:"version"`
}

type Preferences struct {
	FrequencyStrategy string `mapstructure:"frequency_strategy" validate:"oneof=sliding_window token_bucket none"`
}

type Processing struct {
	// Budget is the wall-clock allowance for one inbound message.
	Budget time.Duration `mapstructure:"budget" validate:"gt=0"`
	// MinChannelTime is the least remaining budget needed to start a channel.
	MinChannelTime time.Duration `mapstructure:"min_channel_time"`
}

type History struct {
	Retention      time.Duration `mapstructure:"retention" validate:"gt=0"`
	PruneSchedule  string        `mapstructure:"prune_schedule" validate:"required"`
	PruneBatchSize int           `mapstructure:"prune_batch_size" validate:"gt=0"`
}

type Templates struct {
	SeedFile string `mapstructure:"seed_file"`
}

type Server struct {
	MetricsAddr string `mapstructure:"metrics_addr" validate:"required"`
}

type Config struct {
	App         App            `mapstructure:"app"`
	Log         Log            `mapstructure:"log"`
	OTEL        OTEL           `mapstructure:"otel"`
	DB          pginfra.Config `mapstructure:"db"`
	In          KafkaIn        `mapstructure:"kafka_in"`
	Channels    Channels       `mapstructure:"channels"`
	SMTP        SMTP           `mapstructure:"smtp"`
	Relay       Relay          `mapstructure:"relay"`
	Retry       retry.Config   `mapstructure:"retry"`
	Preferences Preferences    `mapstructure:"preferences"`
	Processing  Processing     `mapstructure:"processing"`
	History     History        `mapstructure:"history"`
	Templates   Templates      `mapstructure:"templates"`
	Server      Server         `mapstructure:"server"`
}

// Topology is the full set of topics the notifier consumes and publishes to.
func (c *Config) Topology() kafkax.Topology {
	return kafkax.Topology{
		Inbound: c.In.Topic,
		DLQ:     c.In.DLQTopic,
		Channels: map[notification.Channel]string{
			notification.ChannelEmail:   c.Channels.EmailTopic,
			notification.ChannelSMS:     c.Channels.SMSTopic,
			notification.ChannelChat:    c.Channels.ChatTopic,
			notification.ChannelWebhook: c.Channels.WebhookTopic,
		},
	}
}
