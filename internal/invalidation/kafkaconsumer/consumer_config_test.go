package kafkaconsumer

import (
	"testing"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/config"
)

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.InvalidationCfg{Brokers: " k1:9092, ,k2:9092 ", Topic: "t", GroupID: "g", FromOldest: true})
	if len(c.Brokers) != 2 || c.Brokers[0] != "k1:9092" || c.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers got=%v", c.Brokers)
	}
	if err := c.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := c.sarama().Consumer.Offsets.Initial; got != sarama.OffsetOldest {
		t.Fatalf("initial offset got=%d want=%d", got, sarama.OffsetOldest)
	}
}

func TestConfigValidate(t *testing.T) {
	for name, c := range map[string]Config{
		"brokers": {Topic: "t", GroupID: "g"},
		"topic":   {Brokers: []string{"k"}, GroupID: "g"},
		"group":   {Brokers: []string{"k"}, Topic: "t"},
	} {
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
