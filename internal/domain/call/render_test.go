package call

import (
	"math"
	"testing"
)

func TestFormatArgs(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{"empty", nil, "()"},
		{"single string", []any{"a"}, "('a',)"},
		{"single int", []any{42}, "(42,)"},
		{"single float", []any{3.5}, "(3.5,)"},
		{"whole float", []any{2.0}, "(2.0,)"},
		{"bytes", []any{[]byte("raw")}, "(b'raw',)"},
		{"bytes non-ascii", []any{[]byte{0xff, 'a'}}, `(b'\xffa',)`},
		{"pair", []any{"a", 1}, "('a', 1)"},
		{"quote switch", []any{"it's"}, `("it's",)`},
		{"both quotes", []any{`it's "x"`}, `('it\'s "x"',)`},
		{"newline", []any{"a\nb"}, `('a\nb',)`},
		{"unicode kept", []any{"héllo"}, "('héllo',)"},
		{"nil and bool", []any{nil, true}, "(None, True)"},
		{"ascii control", []any{"a\x00\x7f"}, `('a\x00\x7f',)`},
		{"c1 control", []any{"a\u0085b"}, `('a\x85b',)`},
		{"no-break space", []any{"a\u00a0b"}, `('a\xa0b',)`},
		{"zero-width space", []any{"a\u200bb"}, `('a\u200bb',)`},
		{"line separator", []any{"\u2028"}, `('\u2028',)`},
		{"astral non-printable", []any{"\U000e0001"}, `('\U000e0001',)`},
		{"emoji kept", []any{"\U0001f600"}, "('\U0001f600',)"},
		{"invalid utf-8", []any{"a\xffb\xc3"}, `('a\xffb\xc3',)`},
		{"replacement char kept", []any{"\ufffd"}, "('\ufffd',)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatArgs(tt.args...); got != tt.want {
				t.Errorf("FormatArgs(%v) = %s, want %s", tt.args, got, tt.want)
			}
		})
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{1, "1.0"},
		{0.1, "0.1"},
		{-2.25, "-2.25"},
		{1234567, "1234567.0"},
		{1e16, "1e+16"},
		{1e20, "1e+20"},
		{1.5e-5, "1.5e-05"},
		{math.Inf(1), "inf"},
		{math.NaN(), "nan"},
	}
	for _, tt := range tests {
		if got := FormatFloat(tt.in); got != tt.want {
			t.Errorf("FormatFloat(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatOutput(t *testing.T) {
	if got := FormatOutput("key-1"); got != "key-1" {
		t.Errorf("expected key-1, got %s", got)
	}
	if got := FormatOutput([]byte("raw")); got != "raw" {
		t.Errorf("expected raw, got %s", got)
	}
	if got := FormatOutput(7); got != "7" {
		t.Errorf("expected 7, got %s", got)
	}
}
