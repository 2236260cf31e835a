package lan

import (
	"bytes"
	"testing"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameType_String(t *testing.T) {
	tests := []struct {
		ft   FrameType
		want string
	}{
		{FrameHello, "hello"},
		{FrameInvite, "invite"},
		{FrameAccept, "accept"},
		{FrameReject, "reject"},
		{FrameData, "data"},
		{FrameBye, "bye"},
		{FrameType(42), "FrameType(42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ft.String())
	}
}

func TestFrame_Validate(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr bool
	}{
		{"hello", Frame{Type: uint32(FrameHello), Token: "tok"}, false},
		{"invite", Frame{Type: uint32(FrameInvite)}, false},
		{"data", Frame{Type: uint32(FrameData), Data: []byte("hi")}, false},
		{"empty data", Frame{Type: uint32(FrameData)}, false},
		{"oversized data", Frame{Type: uint32(FrameData), Data: make([]byte, 9)}, true},
		{"control with data", Frame{Type: uint32(FrameBye), Data: []byte{1}}, true},
		{"zero type", Frame{}, true},
		{"unknown type", Frame{Type: 99}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate(8)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFrame_DelimitedStream(t *testing.T) {
	frames := []*Frame{
		{Type: uint32(FrameHello), Token: "token-a"},
		{Type: uint32(FrameInvite), Token: "token-a"},
		{Type: uint32(FrameData), Data: []byte("ciphertext")},
		{Type: uint32(FrameBye)},
	}

	var buf bytes.Buffer
	w := cramberry.NewStreamWriter(&buf)
	for _, f := range frames {
		require.NoError(t, w.WriteDelimited(f))
	}
	require.NoError(t, w.Flush())

	it := cramberry.NewMessageIterator(&buf)
	for i, want := range frames {
		var got Frame
		require.True(t, it.Next(&got), "frame %d missing: %v", i, it.Err())
		assert.Equal(t, want.Kind(), got.Kind())
		assert.Equal(t, want.Token, got.Token)
		assert.Equal(t, len(want.Data), len(got.Data))
		assert.True(t, bytes.Equal(want.Data, got.Data))
	}
	var extra Frame
	assert.False(t, it.Next(&extra))
}
