package store

import (
	"math"
	"strconv"
	"strings"

	"github.com/ccoveille/go-safecast"
)

// Record is a single CSV row keyed by column name.
type Record map[string]string

// Clone returns a copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Int returns the column parsed as an integer, 0 when empty or invalid.
// Float text such as "3.0" is truncated.
func (r Record) Int(col string) int {
	v := strings.TrimSpace(r[col])
	if v == "" {
		return 0
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	i, err := safecast.ToInt(f)
	if err != nil {
		return 0
	}
	return i
}

// Float returns the column parsed as a float, 0 when empty or invalid.
func (r Record) Float(col string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(r[col]), 64)
	if err != nil {
		return 0
	}
	return f
}

// Bool returns the column parsed as a boolean, false when empty or invalid.
func (r Record) Bool(col string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(r[col]))
	if err != nil {
		return false
	}
	return b
}

// Table is a snapshot of a CSV file.
type Table struct {
	Name   string
	Header []string
	Rows   []Record
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Where returns the rows matching fn.
func (t *Table) Where(fn func(Record) bool) []Record {
	var out []Record
	for _, r := range t.Rows {
		if fn(r) {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the first row whose column equals value.
func (t *Table) Find(col, value string) (Record, bool) {
	for _, r := range t.Rows {
		if r[col] == value {
			return r, true
		}
	}
	return nil, false
}

// normalizeNumber rewrites numeric text into its canonical form ("07" -> "7", "3.50" -> "3.5").
func normalizeNumber(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

func isNumber(v string) bool {
	_, ok := normalizeNumber(v)
	return ok
}
