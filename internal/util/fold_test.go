package util

import "testing"

func TestFold(t *testing.T) {
	cases := map[string]string{
		"  Restauración ": "restauracion",
		"MARÍA   josé":    "maria jose",
		"Semillas 2":      "semillas 2",
		"":                "",
		"Ñandú\tPeña":     "nandu pena",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}
