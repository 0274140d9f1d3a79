package waqi

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// flexNumber decodes a JSON number or a numeric string. Placeholders such as
// "-" or null decode as an invalid zero value instead of failing the response.
type flexNumber struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *flexNumber) UnmarshalJSON(data []byte) error {
	*n = flexNumber{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			n.Value, n.Valid = v, true
		}
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value, n.Valid = v, true
	return nil
}
