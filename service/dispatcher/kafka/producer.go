package kafka

import (
	"encoding/json"
	"time"

	relaymodel "RProject/module/relay/model"

	"github.com/Shopify/sarama"
)

type Config struct {
	Brokers       []string
	AcceptedTopic string
	Version       sarama.KafkaVersion
	Retries       int
}

// Dispatcher publishes accepted messages to Kafka for downstream pipelines
// (archival, indexing, multi-node fan-out). Keyed by conversation so one
// conversation stays on one partition and keeps its order.
type Dispatcher struct {
	producer sarama.SyncProducer
	topic    string
}

func buildConfig(c *Config) *sarama.Config {
	cfg := sarama.NewConfig()
	if c.Version == (sarama.KafkaVersion{}) {
		cfg.Version = sarama.V2_8_0_0
	} else {
		cfg.Version = c.Version
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	retries := c.Retries
	if retries <= 0 {
		retries = 1
	}
	cfg.Producer.Retry.Max = retries
	// key controls the partition: conversation-sticky ordering
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Net.DialTimeout = 10 * time.Second
	return cfg
}

func NewDispatcher(c *Config) (*Dispatcher, error) {
	p, err := sarama.NewSyncProducer(c.Brokers, buildConfig(c))
	if err != nil {
		return nil, err
	}
	return &Dispatcher{producer: p, topic: c.AcceptedTopic}, nil
}

func (d *Dispatcher) DispatchAccepted(m *relaymodel.RelayMessage) error {
	value, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, _, err = d.producer.SendMessage(&sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(m.TenantID + ":" + m.ConversationID),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

func (d *Dispatcher) Close() error { return d.producer.Close() }
