package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrTopicNotReady = errors.New("topic not ready")

// channelOrder fixes the order in which channel topics are created and listed.
var channelOrder = []notification.Channel{
	notification.ChannelEmail,
	notification.ChannelSMS,
	notification.ChannelChat,
	notification.ChannelWebhook,
}

// Topology names every topic the notifier reads from or writes to.
type Topology struct {
	Inbound  string
	DLQ      string
	Channels map[notification.Channel]string
}

// Topics lists the distinct topic names: inbound, DLQ, then channels in a fixed order.
// Empty names are dropped, and channels sharing a topic appear once.
func (t Topology) Topics() []string {
	seen := map[string]bool{}
	out := make([]string, 0, 2+len(t.Channels))
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	add(t.Inbound)
	add(t.DLQ)
	for _, ch := range channelOrder {
		add(t.Channels[ch])
	}
	return out
}

// Specs gives the inbound topic the consumer's partition count; every other topic gets one partition.
func (t Topology) Specs(inboundPartitions, replication int) []TopicSpec {
	names := t.Topics()
	specs := make([]TopicSpec, 0, len(names))
	for _, name := range names {
		n := 1
		if name == t.Inbound && inboundPartitions > 0 {
			n = inboundPartitions
		}
		specs = append(specs, TopicSpec{Name: name, NumPartitions: n, ReplicationFactor: replication})
	}
	return specs
}

type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

func (s TopicSpec) config() kafka.TopicConfig {
	cfg := kafka.TopicConfig{Topic: s.Name, NumPartitions: s.NumPartitions, ReplicationFactor: s.ReplicationFactor}
	if cfg.NumPartitions <= 0 {
		cfg.NumPartitions = 1
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}
	return cfg
}

// EnsureTopic is EnsureTopics for a single topic.
func EnsureTopic(ctx context.Context, brokers []string, spec TopicSpec, wait time.Duration, log *zap.Logger) error {
	return EnsureTopics(ctx, brokers, []TopicSpec{spec}, wait, log)
}

// EnsureTopics creates the missing topics through the cluster controller and waits up to wait
// for every partition of every topic to have a leader. Existing topics are left as they are.
func EnsureTopics(ctx context.Context, brokers []string, specs []TopicSpec, wait time.Duration, log *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	if len(specs) == 0 {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "kafka.admin"))

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer cc.Close()

	cfgs := make([]kafka.TopicConfig, 0, len(specs))
	for _, s := range specs {
		cfgs = append(cfgs, s.config())
	}
	if err := cc.CreateTopics(cfgs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topics: %w", err)
	}

	if wait <= 0 {
		wait = 5 * time.Second
	}
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for _, s := range specs {
		if err := waitLeaders(wctx, brokers[0], s.Name); err != nil {
			return err
		}
		log.Info("topic ready", zap.String("topic", s.Name))
	}
	return nil
}

func waitLeaders(ctx context.Context, broker, topic string) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 2 * time.Second
	for {
		if conn, err := kafka.DialContext(ctx, "tcp", broker); err == nil {
			parts, err := conn.ReadPartitions(topic)
			_ = conn.Close()
			if err == nil && len(parts) > 0 && allHaveLeader(parts) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrTopicNotReady, topic, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func allHaveLeader(parts []kafka.Partition) bool {
	for _, p := range parts {
		if p.Leader.ID < 0 {
			return false
		}
	}
	return true
}
