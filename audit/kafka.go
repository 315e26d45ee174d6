package audit

import (
	"context"
	"encoding/json"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink produces events to a Kafka topic, keyed by actor so one caller's
// events stay ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	owned  bool
}

// NewKafkaSink creates a sink producing to topic through client. The client
// stays owned by the caller.
func NewKafkaSink(client *kgo.Client, topic string) (*KafkaSink, error) {
	if client == nil {
		return nil, ErrNilSink
	}
	if topic == "" {
		topic = "opguard.audit"
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

// DialKafkaSink connects to brokers and returns a sink that closes its
// client on Close.
func DialKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, err
	}
	s, err := NewKafkaSink(client, topic)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

func (s *KafkaSink) Write(ctx context.Context, ev Event) error {
	rec, err := recordFor(s.topic, ev)
	if err != nil {
		return err
	}
	return s.client.ProduceSync(ctx, rec).FirstErr()
}

func (s *KafkaSink) Close() error {
	if s.owned {
		s.client.Close()
	}
	return nil
}

func recordFor(topic string, ev Event) (*kgo.Record, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic:     topic,
		Key:       []byte(ev.Actor),
		Value:     value,
		Timestamp: ev.Timestamp,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}, nil
}
