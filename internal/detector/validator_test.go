package detector

import "testing"

func intPtr(v int) *int { return &v }

func TestAccept(t *testing.T) {
	const (
		maxAbs  = 100000
		maxJump = 5.0
	)

	tests := []struct {
		name         string
		candidate    int
		lastAccepted *int
		want         bool
	}{
		{
			name:         "first sample always accepted within bounds",
			candidate:    42,
			lastAccepted: nil,
			want:         true,
		},
		{
			name:         "first zero sample accepted",
			candidate:    0,
			lastAccepted: nil,
			want:         true,
		},
		{
			name:         "negative rejected",
			candidate:    -1,
			lastAccepted: nil,
			want:         false,
		},
		{
			name:         "above absolute bound rejected",
			candidate:    100001,
			lastAccepted: nil,
			want:         false,
		},
		{
			name:         "at absolute bound accepted",
			candidate:    100000,
			lastAccepted: nil,
			want:         true,
		},
		{
			name:         "above absolute bound rejected regardless of history",
			candidate:    100001,
			lastAccepted: intPtr(99000),
			want:         false,
		},
		{
			name:         "jump exactly at boundary accepted",
			candidate:    500,
			lastAccepted: intPtr(100),
			want:         true,
		},
		{
			name:         "jump above boundary rejected",
			candidate:    501,
			lastAccepted: intPtr(100),
			want:         false,
		},
		{
			name:         "drop never rejected by jump rule",
			candidate:    1,
			lastAccepted: intPtr(100),
			want:         true,
		},
		{
			name:         "jump rule bypassed after zero reading",
			candidate:    90000,
			lastAccepted: intPtr(0),
			want:         true,
		},
		{
			name:         "equal to last accepted",
			candidate:    100,
			lastAccepted: intPtr(100),
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Accept(tt.candidate, tt.lastAccepted, maxAbs, maxJump)
			if got != tt.want {
				t.Errorf("Accept(%d, %v) = %v, want %v", tt.candidate, tt.lastAccepted, got, tt.want)
			}
		})
	}
}

func TestAcceptBootstrapRange(t *testing.T) {
	// With no prior accepted sample, every candidate in [0, maxAbs] passes.
	const maxAbs = 1000
	for c := 0; c <= maxAbs; c += 50 {
		if !Accept(c, nil, maxAbs, 5.0) {
			t.Errorf("Accept(%d, nil) = false, want true", c)
		}
	}
}
