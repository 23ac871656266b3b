package kafkaclient

import (
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Producer publishes to the feature-events and dead-letter topics through
// a Sarama async producer, draining its result channels in the
// background the way the teacher drains its consumer's mark channel.
type Producer struct {
	producer sarama.AsyncProducer
}

// NewProducer connects an async producer with idempotent, all-ISR-ack
// semantics. Publish only queues a message: it returns before the broker
// acknowledges it, and a failed delivery is logged by the background
// drain rather than reported to the caller.
func NewProducer(brokers []string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_3_0_0
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	p, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	producer := &Producer{producer: p}
	go producer.drain()
	return producer, nil
}

func (p *Producer) drain() {
	for {
		select {
		case _, ok := <-p.producer.Successes():
			if !ok {
				return
			}
		case err, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			zap.S().Errorw("kafka publish failed", "error", err.Err, "topic", err.Msg.Topic)
		}
	}
}

// Publish sends key/value to topic asynchronously.
func (p *Producer) Publish(topic string, key, value []byte) {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}
	p.producer.Input() <- msg
}

// Close flushes and closes the underlying async producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}
