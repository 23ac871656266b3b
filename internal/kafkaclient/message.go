package kafkaclient

// Message is the subset of a consumed Kafka record the pipeline needs,
// decoupled from sarama's own message type so callers do not import
// sarama directly.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
}
