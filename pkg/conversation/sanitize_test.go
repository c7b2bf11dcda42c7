package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput_SizeLimit(t *testing.T) {
	tests := []struct {
		name      string
		inputSize int
		wantErr   bool
	}{
		{"Under Limit", DefaultMaxInputSize - 1, false},
		{"Exact Limit", DefaultMaxInputSize, false},
		{"Over Limit", DefaultMaxInputSize + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizeInput(strings.Repeat("a", tt.inputSize), 0)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInputTooLarge)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeInput_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "Hello World", "Hello World"},
		{"Safe Controls", "Line1\nLine2\tTabbed\r", "Line1\nLine2\tTabbed\r"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeInput(tt.input, 64)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	_, err := SanitizeInput("bad\xff", 64)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
