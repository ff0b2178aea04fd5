package notification

import "testing"

func TestMaskAccountNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"65f1c2d3e4a5b6c7d8e9f0a1", "********f0a1"},
		{"1234", "********1234"},
		{"42", "**********42"},
		{"", "************"},
	}
	for _, tc := range cases {
		if got := MaskAccountNumber(tc.in); got != tc.want {
			t.Fatalf("mask(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if len(MaskAccountNumber("65f1c2d3e4a5b6c7d8e9f0a1")) != 12 {
		t.Fatalf("masked value must be 12 characters wide")
	}
}
