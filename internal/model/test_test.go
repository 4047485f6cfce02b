package model

import "testing"

func TestEffectiveViolationLimit(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		fallback int
		want     int
	}{
		{"configured limit wins", 5, 3, 5},
		{"zero falls back", 0, 3, 3},
		{"negative falls back", -1, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			test := Test{ViolationLimit: tt.limit}
			if got := test.EffectiveViolationLimit(tt.fallback); got != tt.want {
				t.Errorf("EffectiveViolationLimit(%d) = %d, want %d", tt.fallback, got, tt.want)
			}
		})
	}
}
