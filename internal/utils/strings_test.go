package utils

import "testing"

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ada@Example.COM "); got != "ada@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}

func TestIsValidEmail(t *testing.T) {
	cases := map[string]bool{
		"ada@x.com":     true,
		"a.b+c@x.co.uk": true,
		"ada":           false,
		"ada@x":         false,
		"":              false,
	}
	for in, want := range cases {
		if got := IsValidEmail(in); got != want {
			t.Errorf("IsValidEmail(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	if got := MaskEmail("ada@x.com"); got != "a***@x.com" {
		t.Fatalf("MaskEmail = %q", got)
	}
	if got := MaskEmail("nope"); got != "***" {
		t.Fatalf("MaskEmail = %q", got)
	}
}
