// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// coerceString maps a textual cell to its typed value. Empty cells are the
// null sentinel; everything that is not an integer, float, boolean, or
// ISO-8601 timestamp stays a string, untrimmed and case-preserved. Invalid
// UTF-8 bytes are replaced with U+FFFD here, before the cell can reach the
// canonical encoder or the JSON storage column.
func coerceString(s string) any {
	if len(s) == 0 {
		return nil
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return s
}
