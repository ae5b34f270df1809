// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package canon

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendScalars(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{NullValue(), "null"},
		{BoolValue(true), "true"},
		{BoolValue(false), "false"},
		{IntValue(42), "42"},
		{IntValue(-7), "-7"},
		{FloatValue(1.5), "1.5"},
		{FloatValue(0), "0"},
		{FloatValue(math.NaN()), "null"},
		{FloatValue(math.Inf(1)), "null"},
		{StringValue("hello"), `"hello"`},
		{StringValue("a\"b\\c\nd"), `"a\"b\\c\nd"`},
		{StringValue("ctrl\x01"), `"ctrl"`},
		{TimeValue(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)), `"2024-01-02T03:04:05Z"`},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, string(Encode(c.v)))
	}
}

// Float bytes must stay bit-identical to encoding/json so that rows hashed
// here and rows round-tripped through stock JSON agree.
func TestAppendFloatMatchesEncodingJSON(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 0.1, 1.5, 1e-6, 9.9e-7, 1e-7, 1e20, 1e21, 3.141592653589793, -2.5e-9, 6.02e23} {
		want, err := json.Marshal(f)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(Encode(FloatValue(f))), "float %g", f)
	}
}

func TestObjectKeyOrder(t *testing.T) {
	v := ObjectValue(map[string]Value{
		"b": IntValue(2),
		"a": IntValue(1),
		"c": ArrayValue([]Value{StringValue("x"), NullValue()}),
	})
	assert.Equal(t, `{"a":1,"b":2,"c":["x",null]}`, string(Encode(v)))
}

func TestEncodeRow(t *testing.T) {
	row, err := FromRow(map[string]any{"name": "ada", "age": int64(36)})
	require.NoError(t, err)
	// declared column order wins, missing columns encode as null
	assert.Equal(t, `{"name":"ada","age":36,"note":null}`, string(EncodeRow([]string{"name", "age", "note"}, row)))
}

func TestDigestRowDeterminism(t *testing.T) {
	columns := []string{"id", "score", "when"}
	mk := func() map[string]Value {
		row, err := FromRow(map[string]any{
			"id":    int64(9),
			"score": 0.25,
			"when":  time.Date(2025, 6, 1, 12, 0, 0, 500000000, time.FixedZone("CST", 8*3600)),
		})
		require.NoError(t, err)
		return row
	}
	h1 := DigestRow(columns, mk())
	h2 := DigestRow(columns, mk())
	assert.Equal(t, h1, h2)
	// timezone normalization: same instant in UTC hashes identically
	row, err := FromRow(map[string]any{
		"id":    int64(9),
		"score": 0.25,
		"when":  time.Date(2025, 6, 1, 4, 0, 0, 500000000, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, h1, DigestRow(columns, row))
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(uint8(7))
	require.NoError(t, err)
	assert.Equal(t, Integer, v.Kind())
	assert.Equal(t, int64(7), v.Int())

	v, err = FromAny([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, String, v.Kind())

	v, err = FromAny(map[string]any{"k": []any{1, "x"}})
	require.NoError(t, err)
	assert.Equal(t, Object, v.Kind())

	_, err = FromAny(struct{}{})
	assert.True(t, IsErrUnsupportedType(err))
}

func TestWiden(t *testing.T) {
	assert.Equal(t, Integer, Widen(Null, Integer))
	assert.Equal(t, Integer, Widen(Integer, Null))
	assert.Equal(t, Float, Widen(Integer, Float))
	assert.Equal(t, Float, Widen(Float, Integer))
	assert.Equal(t, String, Widen(Integer, Bool))
	assert.Equal(t, String, Widen(Timestamp, Float))
	assert.Equal(t, Timestamp, Widen(Timestamp, Timestamp))
	assert.Equal(t, Null, Widen(Null, Null))
}
