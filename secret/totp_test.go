package secret

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/dramauth/password"
)

func newTestCodec(t *testing.T, cfg TOTPConfig) *Codec {
	t.Helper()
	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	codec, err := NewCodec(hasher, cfg)
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	return codec
}

func b32(raw string) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(raw))
}

func TestTOTPVerifyRFCVectors(t *testing.T) {
	suites := []struct {
		algorithm string
		secret    string
		codes     map[int64]string
	}{
		{
			algorithm: "SHA1",
			secret:    "12345678901234567890",
			codes: map[int64]string{
				59:          "94287082",
				1111111109:  "07081804",
				1111111111:  "14050471",
				1234567890:  "89005924",
				2000000000:  "69279037",
				20000000000: "65353130",
			},
		},
		{
			algorithm: "SHA256",
			secret:    "12345678901234567890123456789012",
			codes: map[int64]string{
				59:          "46119246",
				1111111109:  "68084774",
				1111111111:  "67062674",
				1234567890:  "91819424",
				2000000000:  "90698825",
				20000000000: "77737706",
			},
		},
		{
			algorithm: "SHA512",
			secret:    "1234567890123456789012345678901234567890123456789012345678901234",
			codes: map[int64]string{
				59:          "90693936",
				1111111109:  "25091201",
				1111111111:  "99943326",
				1234567890:  "93441116",
				2000000000:  "38618901",
				20000000000: "47863826",
			},
		},
	}

	for _, suite := range suites {
		codec := newTestCodec(t, TOTPConfig{Issuer: "test", Digits: 8, Period: 30, Skew: 0, Algorithm: suite.algorithm})
		secret := b32(suite.secret)
		for ts, want := range suite.codes {
			at := time.Unix(ts, 0)
			got, err := codec.GenerateTOTP(secret, at)
			if err != nil {
				t.Fatalf("%s GenerateTOTP(t=%d) error: %v", suite.algorithm, ts, err)
			}
			if got != want {
				t.Fatalf("%s GenerateTOTP(t=%d) = %s, want %s", suite.algorithm, ts, got, want)
			}
			if !codec.VerifyTOTP(secret, want, at) {
				t.Fatalf("%s VerifyTOTP(t=%d) rejected RFC vector", suite.algorithm, ts)
			}
		}
	}
}

func TestTOTPWindowBoundaries(t *testing.T) {
	codec := newTestCodec(t, DefaultTOTPConfig())
	secret := b32("12345678901234567890")
	now := time.Unix(1700000000, 0)

	for k := -4; k <= 4; k++ {
		code, err := codec.GenerateTOTP(secret, now.Add(time.Duration(k)*30*time.Second))
		if err != nil {
			t.Fatalf("GenerateTOTP(k=%d) error: %v", k, err)
		}

		// A different step can collide on the same 6 digits; only assert
		// rejection when the code is unique across the window.
		collides := false
		for j := -2; j <= 2; j++ {
			other, _ := codec.GenerateTOTP(secret, now.Add(time.Duration(j)*30*time.Second))
			if other == code && j != k {
				collides = true
			}
		}

		got := codec.VerifyTOTP(secret, code, now)
		inWindow := k >= -2 && k <= 2
		if inWindow && !got {
			t.Fatalf("k=%d: expected code accepted", k)
		}
		if !inWindow && !collides && got {
			t.Fatalf("k=%d: expected code rejected", k)
		}
	}
}

func TestTOTPCounterReportsMatchedStep(t *testing.T) {
	codec := newTestCodec(t, DefaultTOTPConfig())
	secret := b32("12345678901234567890")
	now := time.Unix(1700000000, 0)
	base := now.Unix() / 30

	for k := -2; k <= 2; k++ {
		code, err := codec.GenerateTOTP(secret, now.Add(time.Duration(k)*30*time.Second))
		if err != nil {
			t.Fatalf("GenerateTOTP(k=%d) error: %v", k, err)
		}
		latest := int64(k)
		for j := k + 1; j <= 2; j++ {
			other, _ := codec.GenerateTOTP(secret, now.Add(time.Duration(j)*30*time.Second))
			if other == code {
				latest = int64(j)
			}
		}

		counter, ok := codec.VerifyTOTPCounter(secret, code, now)
		if !ok {
			t.Fatalf("k=%d: expected code accepted", k)
		}
		if counter != base+latest {
			t.Fatalf("k=%d: counter = %d, want %d", k, counter, base+latest)
		}
	}

	if counter, ok := codec.VerifyTOTPCounter(secret, "abcdef", now); ok || counter != 0 {
		t.Fatalf("malformed candidate = %d, %v", counter, ok)
	}
}

func TestTOTPRejectsMalformedInput(t *testing.T) {
	codec := newTestCodec(t, DefaultTOTPConfig())
	secret := b32("12345678901234567890")
	now := time.Unix(1700000000, 0)

	for _, candidate := range []string{"", "12345", "1234567", "abcdef", "12 456", "１２３４５６"} {
		if codec.VerifyTOTP(secret, candidate, now) {
			t.Fatalf("candidate %q accepted", candidate)
		}
	}

	code, err := codec.GenerateTOTP(secret, now)
	if err != nil {
		t.Fatalf("GenerateTOTP error: %v", err)
	}
	for _, bad := range []string{"", "not base32 !!", "1"} {
		if codec.VerifyTOTP(bad, code, now) {
			t.Fatalf("secret %q accepted", bad)
		}
	}
}

func TestTOTPTrimsWhitespace(t *testing.T) {
	codec := newTestCodec(t, DefaultTOTPConfig())
	secret := b32("12345678901234567890")
	now := time.Unix(1700000000, 0)

	code, err := codec.GenerateTOTP(secret, now)
	if err != nil {
		t.Fatalf("GenerateTOTP error: %v", err)
	}
	if !codec.VerifyTOTP(secret, " "+code+"\n", now) {
		t.Fatal("expected surrounding whitespace to be ignored")
	}
}

func TestNewTOTPKey(t *testing.T) {
	codec := newTestCodec(t, DefaultTOTPConfig())

	key, err := codec.NewTOTPKey("alice@example.com")
	if err != nil {
		t.Fatalf("NewTOTPKey error: %v", err)
	}
	if key.Secret == "" {
		t.Fatal("expected secret")
	}
	if !strings.HasPrefix(key.URL, "otpauth://totp/") || !strings.Contains(key.URL, "secret="+key.Secret) {
		t.Fatalf("unexpected provisioning url: %s", key.URL)
	}

	now := time.Now()
	code, err := codec.GenerateTOTP(key.Secret, now)
	if err != nil {
		t.Fatalf("GenerateTOTP error: %v", err)
	}
	if !codec.VerifyTOTP(key.Secret, code, now) {
		t.Fatal("expected generated key to verify")
	}
}

func TestNewCodecRejectsBadConfig(t *testing.T) {
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	bad := []TOTPConfig{
		{Digits: 7, Period: 30, Skew: 2},
		{Digits: 6, Period: 0, Skew: 2},
		{Digits: 6, Period: 30, Skew: -1},
		{Digits: 6, Period: 30, Skew: 2, Algorithm: "MD4"},
	}
	for i, cfg := range bad {
		if _, err := NewCodec(hasher, cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
	if _, err := NewCodec(nil, DefaultTOTPConfig()); err == nil {
		t.Fatal("expected nil hasher to be rejected")
	}
}
