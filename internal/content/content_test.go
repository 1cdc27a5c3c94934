package content

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello <b>World</b>"},
		{"Script tag", "<script>alert('xss')</script>Hello", "Hello"},
		{"Complex HTML", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Emoji", "I am 🤖", "I am 🤖"},
		{"Entities kept as text", `Tom & Jerry: 3 < 5 "ok" it's`, `Tom & Jerry: 3 < 5 "ok" it's`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"Mongo id", "65f1c0ffee0ddba11ad0babe", nil},
		{"Prefixed", "dm:user1:user2", nil},
		{"Unicode", "комната-1", nil},
		{"Empty", "", ErrEmptyID},
		{"Too long", strings.Repeat("x", MaxIDLength+1), ErrLongID},
		{"Newline", "room\n1", ErrControlID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateID(tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateID() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
