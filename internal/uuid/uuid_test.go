package uuid

import (
	"regexp"
	"testing"
)

// TestNew tests that New() generates valid UUID v4 strings.
func TestNew(t *testing.T) {
	id := New()

	if id == "" {
		t.Fatal("Expected non-empty UUID string")
	}
	if !IsValid(id) {
		t.Errorf("Generated UUID does not match v4 format: %s", id)
	}
}

// TestNewToken tests that tokens are well-formed and distinct from ids.
func TestNewToken(t *testing.T) {
	token := NewToken()

	uuidRegex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	if !uuidRegex.MatchString(token) {
		t.Errorf("Generated token does not match v4 format: %s", token)
	}
	if token == NewToken() {
		t.Error("Consecutive tokens must differ")
	}
}

// TestNewUniqueness tests that New() generates unique IDs.
func TestNewUniqueness(t *testing.T) {
	ids := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		id := New()
		if ids[id] {
			t.Errorf("Duplicate UUID generated: %s", id)
		}
		ids[id] = true
	}
}

// TestIsValid tests UUID v4 validation against header-supplied values.
func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		uuid string
		want bool
	}{
		{"valid UUID v4", "f47ac10b-58cc-4372-a567-0e02b2c3d479", true},
		{"valid UUID v4 with zeros", "00000000-0000-4000-8000-000000000000", true},
		{"valid UUID v4 uppercase", "6BA7B810-9DAD-41D1-80B4-00C04FD430C8", true},
		{"empty string", "", false},
		{"too short", "f47ac10b-58cc-4372-a567", false},
		{"trailing garbage", "f47ac10b-58cc-4372-a567-0e02b2c3d479-extra", false},
		{"missing dashes", "f47ac10b58cc4372a5670e02b2c3d479", false},
		{"wrong version", "f47ac10b-58cc-1372-a567-0e02b2c3d479", false},
		{"wrong variant", "f47ac10b-58cc-4372-c567-0e02b2c3d479", false},
		{"invalid characters", "g47ac10b-58cc-4372-a567-0e02b2c3d479", false},
		{"random string", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.uuid); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.uuid, got, tt.want)
			}
		})
	}
}

// TestValidate tests Validate() function.
func TestValidate(t *testing.T) {
	if err := Validate("f47ac10b-58cc-4372-a567-0e02b2c3d479"); err != nil {
		t.Errorf("Validate() failed for valid UUID: %v", err)
	}
	if err := Validate("not-a-uuid"); err == nil {
		t.Error("Validate() should fail for malformed input")
	}
	if err := Validate(""); err == nil {
		t.Error("Validate() should fail for empty input")
	}
}

// BenchmarkIsValid benchmarks the IsValid() function.
func BenchmarkIsValid(b *testing.B) {
	validUUID := "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	for i := 0; i < b.N; i++ {
		IsValid(validUUID)
	}
}
