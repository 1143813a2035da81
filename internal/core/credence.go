package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrNotFinite is returned when a credence value is NaN or infinite.
var ErrNotFinite = errors.New("credence must be a finite number")

// OutOfRangeError is returned when a credence value falls outside the unit interval.
type OutOfRangeError struct {
	Value float32
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("credence must be in the unit interval [0.0, 1.0], got %v", e.Value)
}

// Credence is a validated scalar in [0.0, 1.0] used for certainty and salience
// scoring. Construction is the only place the range and finiteness are checked;
// a Credence obtained from NewCredence is trusted everywhere downstream.
type Credence struct {
	value float32
}

// NewCredence validates v and wraps it in a Credence. Values are never
// clamped; out-of-range or non-finite input is an error the caller must handle.
func NewCredence(v float32) (Credence, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Credence{}, ErrNotFinite
	}
	if v < 0.0 || v > 1.0 {
		return Credence{}, &OutOfRangeError{Value: v}
	}
	return Credence{value: v}, nil
}

// Float32 returns the validated value.
func (c Credence) Float32() float32 {
	return c.value
}

// MarshalJSON encodes the credence as a plain number.
func (c Credence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.value)
}

// UnmarshalJSON decodes and re-validates a credence, so persisted payloads go
// through the same construction boundary as fresh values.
func (c *Credence) UnmarshalJSON(data []byte) error {
	var v float32
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewCredence(v)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
