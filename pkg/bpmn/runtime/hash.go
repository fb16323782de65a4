package runtime

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CanonicalJSON serializes v so that equal values always produce equal bytes:
// map keys are sorted and HTML characters are left unescaped.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ContentHash returns the hex encoded sha256 of the canonical serialization of v
// together with the serialized bytes.
func ContentHash(v any) (string, []byte, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", nil, err
	}
	return HashBytes(data), data, nil
}

func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IdFromHash folds a content hash into a positive int64 so rows keyed by content get the
// same primary key no matter which writer inserts them first.
func IdFromHash(hash string) int64 {
	sum := sha256.Sum256([]byte(hash))
	var id int64
	for _, b := range sum[:8] {
		id = id<<8 | int64(b)
	}
	id &= 0x7fffffffffffffff
	if id == 0 {
		id = 1
	}
	return id
}
