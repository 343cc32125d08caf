package kafkaconsumer

import (
	"errors"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/config"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string

	// FromOldest replays the retained topic on a fresh group instead of
	// starting at the tail.
	FromOldest bool

	// scopes remembered for out of order detection
	DedupeSize int
}

func FromConfig(cfg config.InvalidationCfg) Config {
	var brokers []string
	for b := range strings.SplitSeq(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return Config{
		Brokers:    brokers,
		Topic:      cfg.Topic,
		GroupID:    cfg.GroupID,
		FromOldest: cfg.FromOldest,
		DedupeSize: 4096,
	}
}

func (c Config) validate() error {
	switch {
	case len(c.Brokers) == 0:
		return errors.New("kafkaconsumer: no brokers configured")
	case c.Topic == "":
		return errors.New("kafkaconsumer: topic is required")
	case c.GroupID == "":
		return errors.New("kafkaconsumer: group id is required")
	}
	return nil
}

// sarama returns the client settings for the invalidation group. Offsets
// are committed automatically, only for messages the handler marked.
func (c Config) sarama() *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = "featureinfo-invalidation"
	sc.Version = sarama.V2_1_0_0
	sc.Consumer.Group.Session.Timeout = 30 * time.Second
	sc.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	sc.Consumer.Group.Rebalance.Timeout = 30 * time.Second
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if c.FromOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Return.Errors = false
	return sc
}
