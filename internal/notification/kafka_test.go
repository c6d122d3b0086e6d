package notification

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Shutdown closes every sink that owns a buffered transport; the kafka
// writer is the one that loses data if that is skipped.
func TestKafkaSink_Closable(t *testing.T) {
	sink := NewKafkaSink(KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "tib.alerts",
	})

	var c io.Closer = sink
	assert.NoError(t, c.Close())
}
