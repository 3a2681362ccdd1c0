package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringField(t *testing.T) {
	frame := []byte(`{"type": "heartbeat", "ts": 123}`)

	value, ok := StringField(frame, []byte(`"type"`))
	assert.True(t, ok)
	assert.Equal(t, "heartbeat", string(value))

	_, ok = StringField(frame, []byte(`"symbol"`))
	assert.False(t, ok)

	// Numeric value under a string lookup.
	_, ok = StringField(frame, []byte(`"ts"`))
	assert.False(t, ok)
}

func TestUintField(t *testing.T) {
	frame := []byte(`{"seq":42,"ts": 987654321}`)

	seq, ok := UintField(frame, []byte(`"seq"`))
	assert.True(t, ok)
	assert.Equal(t, uint64(42), seq)

	ts, ok := UintField(frame, []byte(`"ts"`))
	assert.True(t, ok)
	assert.Equal(t, uint64(987654321), ts)

	_, ok = UintField(frame, []byte(`"missing"`))
	assert.False(t, ok)
}

func TestTruncatedFrame(t *testing.T) {
	_, ok := StringField([]byte(`{"type": "hea`), []byte(`"type"`))
	assert.False(t, ok)

	_, ok = StringField([]byte(`{"type"`), []byte(`"type"`))
	assert.False(t, ok)

	_, ok2 := UintField([]byte(`{"seq":`), []byte(`"seq"`))
	assert.False(t, ok2)
}
