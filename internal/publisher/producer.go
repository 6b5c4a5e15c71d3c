package publisher

import (
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"
)

// Producer enqueues messages without waiting for delivery. Delivery reports
// are drained in the background and failures are logged.
type Producer struct {
	producer *kafka.Producer
	done     chan struct{}
}

func NewProducer(bootstrapServers string) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"acks":              "all",
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info("Kafka producer created successfully for approval-service")

	producer := &Producer{producer: p, done: make(chan struct{})}
	go producer.watchDeliveries()
	return producer, nil
}

func (p *Producer) watchDeliveries() {
	defer close(p.done)
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				topic := ""
				if ev.TopicPartition.Topic != nil {
					topic = *ev.TopicPartition.Topic
				}
				log.WithError(ev.TopicPartition.Error).WithFields(log.Fields{
					"topic": topic,
					"key":   string(ev.Key),
				}).Error("Kafka delivery failed")
			}
		case kafka.Error:
			log.WithError(ev).Warn("Kafka producer error")
		}
	}
}

func newMessage(topic, key string, payload []byte) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          payload,
	}
}

func (p *Producer) produce(topic, key string, payload []byte) error {
	if err := p.producer.Produce(newMessage(topic, key, payload), nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

func (p *Producer) Close() {
	log.Info("Closing Kafka producer for approval-service...")
	if remaining := p.producer.Flush(15 * 1000); remaining > 0 {
		log.WithField("remaining", remaining).Warn("Kafka producer closed with undelivered messages")
	}
	p.producer.Close()
	<-p.done
}
