package connection

import "testing"

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  string
	}{
		{StateDisconnected, "Disconnected"},
		{StateConnecting, "Connecting"},
		{StateHandshaking, "Handshaking"},
		{StateEstablished, "Established"},
		{ConnectionState(42), "Unknown(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestConnectionState_IsActive(t *testing.T) {
	if StateDisconnected.IsActive() {
		t.Error("Disconnected must not be active")
	}
	for _, s := range []ConnectionState{StateConnecting, StateHandshaking, StateEstablished} {
		if !s.IsActive() {
			t.Errorf("%v should be active", s)
		}
	}
}

func TestConnectionState_Transitions(t *testing.T) {
	tests := []struct {
		from, to ConnectionState
		valid    bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateDisconnected, StateHandshaking, true},
		{StateDisconnected, StateEstablished, false},
		{StateConnecting, StateHandshaking, true},
		{StateConnecting, StateDisconnected, true},
		{StateHandshaking, StateEstablished, true},
		{StateHandshaking, StateDisconnected, true},
		{StateEstablished, StateDisconnected, true},
		{StateEstablished, StateHandshaking, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("%v -> %v: got %v, want %v", tt.from, tt.to, got, tt.valid)
		}
		err := tt.from.ValidateTransition(tt.to)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateTransition(%v -> %v) = %v", tt.from, tt.to, err)
		}
	}
}
