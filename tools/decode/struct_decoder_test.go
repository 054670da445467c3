package decode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONObject(t *testing.T) {
	m, err := JSONObject([]byte(`{"id": 9007199254740993, "name": "a"}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), m["id"])

	_, err = JSONObject([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = JSONObject([]byte(`null`))
	assert.Error(t, err)
	_, err = JSONObject([]byte(`{broken`))
	assert.Error(t, err)
}

func TestReadInt64(t *testing.T) {
	m := map[string]any{
		"f": float64(7),
		"n": json.Number("9007199254740993"),
		"s": "42",
		"i": 3,
		"b": true,
		"x": "abc",
	}
	cases := []struct {
		key  string
		want int64
		ok   bool
	}{
		{"f", 7, true},
		{"n", 9007199254740993, true},
		{"s", 42, true},
		{"i", 3, true},
		{"b", 0, false},
		{"x", 0, false},
		{"missing", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			got, err := ReadInt64(m, tc.key)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeMap(t *testing.T) {
	type target struct {
		Type   string `json:"type"`
		UserID int64  `json:"user_id"`
	}
	m, err := JSONObject([]byte(`{"type":"new_message","user_id":12,"extra":true}`))
	require.NoError(t, err)
	out, err := DecodeMap[target](m)
	require.NoError(t, err)
	assert.Equal(t, "new_message", out.Type)
	assert.Equal(t, int64(12), out.UserID)

	out, err = DecodeMap[target](map[string]any{"user_id": float64(5), "type": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.UserID)

	_, err = DecodeMap[target](nil)
	assert.Error(t, err)
}
