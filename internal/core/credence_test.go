package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestNewCredenceAcceptsUnitInterval(t *testing.T) {
	for _, v := range []float32{0, 0.5, 1} {
		c, err := NewCredence(v)
		if err != nil {
			t.Fatalf("NewCredence(%v) returned error: %v", v, err)
		}
		if c.Float32() != v {
			t.Errorf("Float32() = %v, want %v", c.Float32(), v)
		}
	}
}

func TestNewCredenceRejectsOutOfRange(t *testing.T) {
	for _, v := range []float32{-0.001, 1.001, -5, 42} {
		_, err := NewCredence(v)
		var rangeErr *OutOfRangeError
		if !errors.As(err, &rangeErr) {
			t.Errorf("NewCredence(%v) error = %v, want OutOfRangeError", v, err)
		}
	}
}

func TestNewCredenceRejectsNonFinite(t *testing.T) {
	for _, v := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		_, err := NewCredence(v)
		if !errors.Is(err, ErrNotFinite) {
			t.Errorf("NewCredence(%v) error = %v, want ErrNotFinite", v, err)
		}
	}
}

func TestCredenceJSONRoundTrip(t *testing.T) {
	original, _ := NewCredence(0.75)
	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Credence
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Float32() != original.Float32() {
		t.Errorf("round trip = %v, want %v", decoded.Float32(), original.Float32())
	}
}

func TestCredenceUnmarshalRevalidates(t *testing.T) {
	var c Credence
	err := json.Unmarshal([]byte("1.5"), &c)
	var rangeErr *OutOfRangeError
	if !errors.As(err, &rangeErr) {
		t.Errorf("unmarshal(1.5) error = %v, want OutOfRangeError", err)
	}
}
