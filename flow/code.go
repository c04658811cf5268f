package flow

import "strings"

// CodeLength is the number of cells in a verification code.
const CodeLength = 6

// CodeBuffer holds the code as entered, one character per cell. An empty
// cell is "".
type CodeBuffer [CodeLength]string

// String concatenates the cells in index order.
func (b CodeBuffer) String() string {
	return strings.Join(b[:], "")
}

// Filled reports whether every cell has a value.
func (b CodeBuffer) Filled() bool {
	for _, c := range b {
		if c == "" {
			return false
		}
	}
	return true
}

// firstChar returns the first character of v, or "" for an empty value.
// Cells accept a single character like a one-character input control.
func firstChar(v string) string {
	for _, r := range v {
		return string(r)
	}
	return ""
}
