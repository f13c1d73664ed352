// Package score provides the bounded 0..100 value used for every engagement,
// fraud and reliability score in the pipeline.
package score

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const (
	Min = 0.0
	Max = 100.0
)

// Score is always within [Min, Max] and rounded to two decimals. The zero
// value is a valid score of 0.
type Score struct {
	v float64
}

// New clamps v to [0, 100] and rounds it to two decimals. NaN becomes 0.
func New(v float64) Score {
	if math.IsNaN(v) {
		return Score{}
	}
	return Score{v: Round2(Clamp(v, Min, Max))}
}

func (s Score) Float64() float64 {
	return s.v
}

func (s Score) String() string {
	return strconv.FormatFloat(s.v, 'f', 2, 64)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s Score) Value() (driver.Value, error) {
	return s.v, nil
}

func (s *Score) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = Score{}
	case float64:
		*s = New(v)
	case float32:
		*s = New(float64(v))
	case int64:
		*s = New(float64(v))
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("score: cannot scan %T", src)
	}
	return nil
}

func (s *Score) parse(raw string) error {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	*s = New(f)
	return nil
}

func (s Score) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.v)
}

func (s *Score) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*s = New(f)
	return nil
}
