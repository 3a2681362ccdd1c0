// Package scanner picks single fields out of raw JSON frames without
// decoding them. Used on hot receive paths to classify a frame before
// committing to a full unmarshal.
package scanner

// StringField returns the value of the first string field whose quoted
// key matches key, e.g. key `"type"` against `{"type":"heartbeat"}`.
// The returned slice aliases payload. Escaped quotes inside the value
// are not handled; frame classification only needs plain values.
func StringField(payload, key []byte) ([]byte, bool) {
	i := indexOf(payload, key)
	if i < 0 {
		return nil, false
	}
	i = skipToValue(payload, i+len(key))
	if i < 0 || payload[i] != '"' {
		return nil, false
	}
	i++
	start := i
	for i < len(payload) && payload[i] != '"' {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	return payload[start:i], true
}

// UintField returns the value of the first unsigned integer field whose
// quoted key matches key.
func UintField(payload, key []byte) (uint64, bool) {
	i := indexOf(payload, key)
	if i < 0 {
		return 0, false
	}
	i = skipToValue(payload, i+len(key))
	if i < 0 || payload[i] < '0' || payload[i] > '9' {
		return 0, false
	}
	var v uint64
	for i < len(payload) && payload[i] >= '0' && payload[i] <= '9' {
		v = v*10 + uint64(payload[i]-'0')
		i++
	}
	return v, true
}

// skipToValue advances past the colon and whitespace following a key,
// returning the index of the first value byte or -1.
func skipToValue(payload []byte, i int) int {
	for i < len(payload) && payload[i] != ':' {
		i++
	}
	i++
	for i < len(payload) && isSpace(payload[i]) {
		i++
	}
	if i >= len(payload) {
		return -1
	}
	return i
}

func indexOf(payload, key []byte) int {
	if len(key) == 0 || len(payload) < len(key) {
		return -1
	}
outer:
	for i := 0; i <= len(payload)-len(key); i++ {
		for j := range key {
			if payload[i+j] != key[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
