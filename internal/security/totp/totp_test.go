package totp

import (
	"strings"
	"testing"
	"time"
)

// RFC 6238 Appendix B vectors for HMAC-SHA1, truncated to 6 digits.
func TestVerify_RFC6238Vectors(t *testing.T) {
	secret := []byte("12345678901234567890")
	cases := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, c := range cases {
		ok, _ := Verify(secret, c.code, time.Unix(c.unix, 0), 0, nil)
		if !ok {
			t.Fatalf("vector t=%d code=%s did not verify", c.unix, c.code)
		}
	}
}

func TestVerify_DriftWindow(t *testing.T) {
	secret := []byte("12345678901234567890")
	now := time.Unix(1111111109, 0)

	// Code from two steps in the past verifies with window 2.
	past := Code(secret, now.Add(-2*Period*time.Second))
	if ok, _ := Verify(secret, past, now, DefaultWindow, nil); !ok {
		t.Fatalf("code 2 steps old must verify within ±2 window")
	}
	// Three steps out is rejected.
	tooOld := Code(secret, now.Add(-3*Period*time.Second))
	if ok, _ := Verify(secret, tooOld, now, DefaultWindow, nil); ok {
		t.Fatalf("code 3 steps old must not verify within ±2 window")
	}
}

func TestVerify_AntiReplay(t *testing.T) {
	secret := []byte("12345678901234567890")
	now := time.Unix(2000000000, 0)
	code := Code(secret, now)

	ok, counter := Verify(secret, code, now, DefaultWindow, nil)
	if !ok {
		t.Fatalf("first use must verify")
	}
	if ok, _ := Verify(secret, code, now, DefaultWindow, &counter); ok {
		t.Fatalf("replay of the same counter must fail")
	}
}

func TestVerify_RejectsBadShape(t *testing.T) {
	secret := []byte("12345678901234567890")
	now := time.Now()
	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		if ok, _ := Verify(secret, code, now, DefaultWindow, nil); ok {
			t.Fatalf("code %q must not verify", code)
		}
	}
}

func TestGenerateSecret_Base32NoPadding(t *testing.T) {
	raw, b32, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret err: %v", err)
	}
	if len(raw) != 20 {
		t.Fatalf("want 20 raw bytes, got %d", len(raw))
	}
	if strings.Contains(b32, "=") {
		t.Fatalf("secret must be unpadded base32: %q", b32)
	}
	back, err := DecodeSecret(b32)
	if err != nil || string(back) != string(raw) {
		t.Fatalf("DecodeSecret roundtrip failed: %v", err)
	}
}

func TestOTPAuthURL_Shape(t *testing.T) {
	u := OTPAuthURL("Verbatim", "a@x.com", "JBSWY3DPEHPK3PXP")
	for _, want := range []string{"otpauth://totp/", "Verbatim", "secret=JBSWY3DPEHPK3PXP", "digits=6", "period=30"} {
		if !strings.Contains(u, want) {
			t.Fatalf("otpauth url missing %q: %s", want, u)
		}
	}
}
