package plumbing

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// PrimaryTable is the table key for single-table sources (CSV, Parquet).
	// Multi-sheet sources use the sheet name.
	PrimaryTable = "primary"
	// RowIDSeparator joins a table key and a row index into a logical row id.
	RowIDSeparator = ":"
)

var (
	tableKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ -]{0,62}$`)
	refNameRegex  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-/]{0,254}$`)
)

// ValidateTableKey reports whether s is an acceptable table key.
func ValidateTableKey(s string) bool {
	return tableKeyRegex.MatchString(s)
}

// ValidateRefName reports whether s is an acceptable reference name.
func ValidateRefName(s string) bool {
	if strings.HasSuffix(s, ".lock") || strings.Contains(s, "..") {
		return false
	}
	return refNameRegex.MatchString(s)
}

// RowID binds a row to its table position inside one commit. The index is an
// unpadded decimal; readers order rows by the integer value of the suffix, not
// by the raw string.
func RowID(tableKey string, index int64) string {
	return tableKey + RowIDSeparator + strconv.FormatInt(index, 10)
}

// SplitRowID breaks a logical row id into its table key and row index.
func SplitRowID(id string) (tableKey string, index int64, err error) {
	i := strings.LastIndex(id, RowIDSeparator)
	if i <= 0 || i == len(id)-1 {
		return "", 0, &ErrBadRowID{ID: id}
	}
	tableKey = id[:i]
	if !ValidateTableKey(tableKey) {
		return "", 0, &ErrBadRowID{ID: id}
	}
	index, err = strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return "", 0, &ErrBadRowID{ID: id}
	}
	return tableKey, index, nil
}
