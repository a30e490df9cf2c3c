package hashing

import "testing"

func TestSHA256Digest(t *testing.T) {
	d := SHA256Digest{}
	// 既知ベクトル: SHA-256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := d.Sum("abc"); got != want {
		t.Errorf("Sum(abc) = %s, want %s", got, want)
	}
	if d.Weak() {
		t.Error("SHA256Digest.Weak() = true, want false")
	}
	if d.Kind() != KindSHA256 {
		t.Errorf("Kind = %s", d.Kind())
	}
}

func TestFNV1aDigest(t *testing.T) {
	d := FNV1aDigest{}
	sum := d.Sum("abc")
	if len(sum) != 64 {
		t.Fatalf("len(sum) = %d, want 64 (zero-padded to SHA-256 width)", len(sum))
	}
	// FNV-1a 32bit("abc") = 0x1a47e90b
	if got, want := sum[56:], "1a47e90b"; got != want {
		t.Errorf("Sum(abc) tail = %s, want %s", got, want)
	}
	if !d.Weak() {
		t.Error("FNV1aDigest.Weak() = false, want true")
	}
}

func TestDigests_DifferentInputsDiffer(t *testing.T) {
	for _, d := range []Digest{SHA256Digest{}, FNV1aDigest{}} {
		if d.Sum("a|b|c") == d.Sum("a|b|d") {
			t.Errorf("%s: collision on trivially different inputs", d.Kind())
		}
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"abc", "ab", false},
		{"", "", true},
	}
	for _, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("Equal(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
