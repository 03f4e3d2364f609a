package ddprofile

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/axiomhq/hyperloglog"
)

// maxSamples is the number of distinct example values kept for text columns
const maxSamples = 5

// columnStats accumulates the values of a single column.
type columnStats struct {
	name string

	total int64
	nulls int64

	// counts of non-null values by the narrowest type they parse as
	bools  int64
	ints   int64
	floats int64

	// running moments over the numeric values (Welford)
	numCount int64
	min, max float64
	mean, m2 float64

	minLen, maxLen int
	sumLen         int64
	samples        []string

	distinct *hyperloglog.Sketch
}

func newColumnStats(name string) *columnStats {
	return &columnStats{
		name:     name,
		min:      math.Inf(1),
		max:      math.Inf(-1),
		minLen:   math.MaxInt,
		distinct: hyperloglog.New14(),
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no", "t", "f", "y", "n":
		return true
	}
	return false
}

// Add records one value. Nulls are SQL NULLs and blank CSV cells.
func (c *columnStats) Add(value string, null bool) {
	c.total++
	value = strings.TrimSpace(value)
	if null || value == "" {
		c.nulls++
		return
	}

	c.distinct.Insert([]byte(value))

	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		c.ints++
		c.addNumber(value)
	} else if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		c.floats++
		c.addNumber(value)
	} else if parseBool(value) {
		c.bools++
	}

	n := utf8.RuneCountInString(value)
	if n < c.minLen {
		c.minLen = n
	}
	if n > c.maxLen {
		c.maxLen = n
	}
	c.sumLen += int64(n)

	if len(c.samples) < maxSamples && !containsString(c.samples, value) {
		c.samples = append(c.samples, value)
	}
}

func (c *columnStats) addNumber(value string) {
	f, _ := strconv.ParseFloat(value, 64)
	c.numCount++
	if f < c.min {
		c.min = f
	}
	if f > c.max {
		c.max = f
	}
	delta := f - c.mean
	c.mean += delta / float64(c.numCount)
	c.m2 += delta * (f - c.mean)
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func (c *columnStats) dataType() DataType {
	nonNull := c.total - c.nulls
	switch {
	case nonNull == 0:
		return Empty
	case c.ints == nonNull:
		return Integer
	case c.ints+c.floats == nonNull:
		return Float
	case c.bools == nonNull:
		return Boolean
	}
	return Text
}

// Profile builds the column profile from the accumulated values.
func (c *columnStats) Profile() *Column {
	col := &Column{
		Column:      c.name,
		Type:        c.dataType(),
		Total:       c.total,
		Nulls:       c.nulls,
		Cardinality: int64(c.distinct.Estimate()),
	}

	switch {
	case col.Type.Numeric():
		stddev := 0.0
		if c.numCount > 1 {
			stddev = math.Sqrt(c.m2 / float64(c.numCount-1))
		}
		col.Numeric = &NumericStats{
			Min:    c.min,
			Max:    c.max,
			Mean:   c.mean,
			StdDev: stddev,
		}
	case col.Type != Empty:
		nonNull := c.total - c.nulls
		col.Text = &TextStats{
			MinLength: c.minLen,
			MaxLength: c.maxLen,
			AvgLength: float64(c.sumLen) / float64(nonNull),
			Samples:   c.samples,
		}
	}
	return col
}
