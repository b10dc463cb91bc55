package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_Key(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want string
	}{
		{"ephemeral", FromTracker("7"), "track:7"},
		{"permanent", FromPlate("AB12345"), "AB12345"},
		{"zero", Identity{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.Key())
		})
	}
}

func TestIdentity_Accessors(t *testing.T) {
	eph := FromTracker("42")
	assert.Equal(t, Ephemeral, eph.Kind())
	assert.Equal(t, "42", eph.TrackerID())
	assert.Empty(t, eph.Plate())
	assert.False(t, eph.IsPermanent())
	assert.False(t, eph.IsZero())

	perm := FromPlate("DL54321")
	assert.Equal(t, Permanent, perm.Kind())
	assert.Equal(t, "DL54321", perm.Plate())
	assert.Empty(t, perm.TrackerID())
	assert.True(t, perm.IsPermanent())

	assert.True(t, Identity{}.IsZero())
}

func TestParseKey_RoundTrip(t *testing.T) {
	for _, id := range []Identity{FromTracker("9"), FromPlate("AB12345")} {
		parsed, err := ParseKey(id.Key())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
}

func TestParseKey_Empty(t *testing.T) {
	_, err := ParseKey("")
	require.Error(t, err)
}

func TestParseKey_BareTrackerPrefix(t *testing.T) {
	// "track:" with no ID must not re-enter the permanent namespace as
	// plate text.
	_, err := ParseKey("track:")
	require.Error(t, err)
}

func TestCleanPlateText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"already clean", "AB12345", "AB12345"},
		{"lowercase", "ab12345", "AB12345"},
		{"punctuation and spaces", "AB 12-345.", "AB12345"},
		{"fullwidth digits", "AB１２345", "AB12345"},
		{"empty", "", ""},
		{"only noise", "--  ..", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanPlateText(tt.raw))
		})
	}
}

func TestGrammar_Validate(t *testing.T) {
	g := MustGrammar(DefaultPlateGrammar)

	tests := []struct {
		name  string
		raw   string
		plate string
		valid bool
	}{
		{"valid", "AB12345", "AB12345", true},
		{"valid after cleanup", "ab 12345", "AB12345", true},
		{"too short", "AB1234", "AB1234", false},
		{"too long", "AB123456", "AB123456", false},
		{"wrong shape", "1234567", "1234567", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plate, ok := g.Validate(tt.raw)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.plate, plate)
		})
	}
}

func TestNewGrammar_Invalid(t *testing.T) {
	_, err := NewGrammar("[")
	require.Error(t, err)
}
