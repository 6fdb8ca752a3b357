package commsutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// EncodePayload serializes a value to JSON bytes. HTML escaping is off so
// directive markers such as "<escape>" travel unchanged.
func EncodePayload(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodePayload deserializes a single JSON value into the given target.
// Trailing data after the value is an error.
func DecodePayload(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON payload")
	}
	return nil
}
