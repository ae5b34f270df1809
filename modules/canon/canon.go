// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package canon produces the deterministic byte form of row values. The same
// logical row under the same column order serializes to the same bytes on any
// machine, which is what makes row hashes and commit ids content addresses.
package canon

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/antgroup/tabula/modules/plumbing"
)

const hexDigits = "0123456789abcdef"

// Append encodes v as canonical JSON and appends it to dst. Object keys are
// emitted in lexicographic order; floats use the shortest round-trip decimal;
// timestamps are ISO-8601 in UTC.
func Append(dst []byte, v Value) []byte {
	switch v.kind {
	case Null:
		return append(dst, "null"...)
	case Bool:
		if v.b {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case Integer:
		return strconv.AppendInt(dst, v.i, 10)
	case Float:
		return appendFloat(dst, v.f)
	case String:
		return appendString(dst, v.s)
	case Timestamp:
		return appendString(dst, FormatTime(v.t))
	case Array:
		dst = append(dst, '[')
		for i, e := range v.a {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = Append(dst, e)
		}
		return append(dst, ']')
	case Object:
		keys := make([]string, 0, len(v.o))
		for k := range v.o {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst = append(dst, '{')
		for i, k := range keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, k)
			dst = append(dst, ':')
			dst = Append(dst, v.o[k])
		}
		return append(dst, '}')
	}
	return append(dst, "null"...)
}

// Encode returns the canonical JSON encoding of v.
func Encode(v Value) []byte {
	return Append(make([]byte, 0, 64), v)
}

// EncodeRow serializes one row as a JSON object whose keys are the column
// names, emitted in the declared column order. Columns absent from the row are
// encoded as null.
func EncodeRow(columns []string, row map[string]Value) []byte {
	dst := make([]byte, 0, 32*(len(columns)+1))
	dst = append(dst, '{')
	for i, name := range columns {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendString(dst, name)
		dst = append(dst, ':')
		dst = Append(dst, row[name])
	}
	return append(dst, '}')
}

// DigestRow returns the SHA-256 fingerprint of the canonical row serialization.
func DigestRow(columns []string, row map[string]Value) plumbing.Hash {
	return plumbing.DigestBytes(EncodeRow(columns, row))
}

// FormatTime renders t as ISO-8601 with timezone, normalized to UTC. Trailing
// zeros in the fractional seconds are trimmed so that equal instants always
// render identically.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func appendFloat(dst []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		// JSON has no NaN/Inf literal; the null sentinel is the only honest spelling.
		return append(dst, "null"...)
	}
	// Shortest representation that round-trips, with the same f/e switch
	// encoding/json uses so our bytes stay bit-identical to stock JSON output.
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	dst = strconv.AppendFloat(dst, f, format, -1, 64)
	if format == 'e' {
		if n := len(dst); n >= 4 && dst[n-4] == 'e' && dst[n-3] == '-' && dst[n-2] == '0' {
			dst[n-2] = dst[n-1]
			dst = dst[:n-1]
		}
	}
	return dst
}

func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 0x20 && b != '"' && b != '\\' {
			continue
		}
		dst = append(dst, s[start:i]...)
		switch b {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		default:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[b>>4], hexDigits[b&0xF])
		}
		start = i + 1
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}
