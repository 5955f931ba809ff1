package escrow

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateShipped, "shipped"},
		{StateConfirmed, "confirmed"},
		{StateDeleted, "deleted"},
		{StateRefundAsked, "refund_asked"},
		{StateRefunded, "refunded"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
