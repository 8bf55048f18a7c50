package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		id   uint64
		body string
	}{
		{0, "X"},
		{1, "5"},
		{42, "close"},
		{7, "5 0"},
		{math.MaxUint64, "9"},
	}

	for _, tt := range tests {
		got := Decode(Encode(tt.id, tt.body))
		require.Equal(t, KindEnvelope, got.Kind, "id=%d body=%q", tt.id, tt.body)
		assert.Equal(t, tt.id, got.Envelope.ID)
		assert.Equal(t, tt.body, got.Envelope.Body)
		assert.False(t, got.Envelope.Implicit)
	}
}

func TestEncodeFormat(t *testing.T) {
	assert.Equal(t, "1 5", string(Encode(1, "5")))
	assert.Equal(t, "0 0 0", string(Encode(0, "0 0")))
	assert.Equal(t, "X", string(EncodeBootstrap("X")))
	assert.Equal(t, "ping", string(EncodeControl(ControlPing)))
}

func TestDecodeControl(t *testing.T) {
	for _, token := range []string{ControlPing, ControlPong} {
		got := Decode([]byte(token))
		assert.Equal(t, KindControl, got.Kind)
		assert.Equal(t, token, got.Control)
	}
}

func TestDecodeBareTokenIsImplicitZero(t *testing.T) {
	got := Decode([]byte("O"))
	require.Equal(t, KindEnvelope, got.Kind)
	assert.Equal(t, Envelope{ID: 0, Body: "O", Implicit: true}, got.Envelope)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "bare integer", input: "17"},
		{name: "negative id", input: "-1 5"},
		{name: "signed id", input: "+1 5"},
		{name: "non-integer id", input: "one 5"},
		{name: "leading delimiter", input: " 1 5"},
		{name: "trailing delimiter", input: "1 5 "},
		{name: "doubled delimiter", input: "1  5"},
		{name: "id overflow", input: "18446744073709551616 5"},
		{name: "ping with id", input: "ping 1"},
		{name: "only spaces", input: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode([]byte(tt.input))
			assert.Equal(t, KindMalformed, got.Kind)
			assert.Equal(t, "malformed", got.Kind.String())
		})
	}
}
