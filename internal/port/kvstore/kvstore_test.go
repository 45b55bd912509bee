package kvstore

import "testing"

func TestBounds(t *testing.T) {
	tests := []struct {
		name           string
		n, start, stop int64
		wantLo, wantHi int64
		wantOK         bool
	}{
		{"whole list", 3, 0, -1, 0, 3, true},
		{"head", 3, 0, 0, 0, 1, true},
		{"tail", 3, -1, -1, 2, 3, true},
		{"stop past end", 3, 1, 10, 1, 3, true},
		{"start before head", 3, -10, 1, 0, 2, true},
		{"empty list", 0, 0, -1, 0, 0, false},
		{"inverted", 3, 2, 1, 0, 0, false},
		{"start past end", 3, 5, 7, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, ok := Bounds(tt.n, tt.start, tt.stop)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (lo != tt.wantLo || hi != tt.wantHi) {
				t.Errorf("Bounds(%d, %d, %d) = [%d, %d), want [%d, %d)",
					tt.n, tt.start, tt.stop, lo, hi, tt.wantLo, tt.wantHi)
			}
		})
	}
}
