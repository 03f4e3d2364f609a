package ddprofile

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// DataType is the type inferred for a column
type DataType string

// Inferred column types, from most to least specific
const (
	Empty   DataType = "empty"
	Boolean DataType = "boolean"
	Integer DataType = "integer"
	Float   DataType = "float"
	Text    DataType = "text"
)

// Numeric reports whether values of the type are numbers.
func (t DataType) Numeric() bool {
	return t == Integer || t == Float
}

// NumericStats summarizes the distribution of a numeric column.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// TextStats summarizes the values of a text column.
type TextStats struct {
	MinLength int      `json:"min_length"`
	MaxLength int      `json:"max_length"`
	AvgLength float64  `json:"avg_length"`
	Samples   []string `json:"samples,omitempty"`
}

// Column is the profile of one column of one source.
type Column struct {
	Dataset     string        `json:"dataset"`
	Source      string        `json:"source"`
	Column      string        `json:"column"`
	Type        DataType      `json:"type"`
	Total       int64         `json:"total_values"`
	Nulls       int64         `json:"null_values"`
	Cardinality int64         `json:"unique_values"`
	Numeric     *NumericStats `json:"numeric,omitempty"`
	Text        *TextStats    `json:"text,omitempty"`
	ProfiledAt  time.Time     `json:"profiled_at"`
}

// ID identifies the column across runs. Re-profiling a source produces
// the same ids, so stores overwrite rather than duplicate.
func (c *Column) ID() string {
	h := sha1.New()
	h.Write([]byte(c.Dataset))
	h.Write([]byte{0})
	h.Write([]byte(c.Source))
	h.Write([]byte{0})
	h.Write([]byte(c.Column))
	return hex.EncodeToString(h.Sum(nil))
}
