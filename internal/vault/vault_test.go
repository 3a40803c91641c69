package vault

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/dramauth/memstore"
	"github.com/MrEthical07/dramauth/password"
	"github.com/MrEthical07/dramauth/secret"
	"github.com/MrEthical07/dramauth/store"
)

func newTestVault(t *testing.T) (*Vault, *memstore.Store) {
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
	codec, err := secret.NewCodec(hasher, secret.DefaultTOTPConfig())
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	s := memstore.New()
	for _, id := range []string{"a1", "a2"} {
		if err := s.CreateAccount(context.Background(), &store.Account{ID: id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("CreateAccount error: %v", err)
		}
	}
	v, err := New(s, codec, 0, 0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return v, s
}

func TestEnrollProducesTenFormattedCodes(t *testing.T) {
	v, _ := newTestVault(t)

	codes, err := v.Enroll(context.Background(), "a1", 1)
	if err != nil {
		t.Fatalf("Enroll error: %v", err)
	}
	if len(codes) != DefaultCount {
		t.Fatalf("expected %d codes, got %d", DefaultCount, len(codes))
	}
	seen := map[string]bool{}
	for _, code := range codes {
		if len(code) != DefaultLength+1 || code[DefaultLength/2] != '-' {
			t.Fatalf("unexpected code format %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
	if n, _ := v.Remaining(context.Background(), "a1"); n != DefaultCount {
		t.Fatalf("Remaining = %d", n)
	}
}

func TestRedeemConsumesExactlyOne(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	codes, _ := v.Enroll(ctx, "a1", 1)

	ok, err := v.Redeem(ctx, "a1", strings.ToLower(codes[3]))
	if err != nil || !ok {
		t.Fatalf("Redeem = %v, %v", ok, err)
	}
	if n, _ := v.Remaining(ctx, "a1"); n != DefaultCount-1 {
		t.Fatalf("Remaining after redeem = %d", n)
	}

	ok, err = v.Redeem(ctx, "a1", codes[3])
	if err != nil || ok {
		t.Fatalf("replayed Redeem = %v, %v", ok, err)
	}
	if n, _ := v.Remaining(ctx, "a1"); n != DefaultCount-1 {
		t.Fatalf("Remaining after replay = %d", n)
	}

	ok, _ = v.Redeem(ctx, "a2", codes[4])
	if ok {
		t.Fatal("code must not redeem for another account")
	}
}

func TestRedeemRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	_, _ = v.Enroll(ctx, "a1", 1)

	for _, bad := range []string{"", "short", "00000-00000", "ABCDE-FGHJK-L"} {
		if ok, err := v.Redeem(ctx, "a1", bad); ok || err != nil {
			t.Fatalf("Redeem(%q) = %v, %v", bad, ok, err)
		}
	}
}

func TestEnrollReplacesPreviousSet(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	old, _ := v.Enroll(ctx, "a1", 1)
	if _, err := v.Enroll(ctx, "a1", 2); err != nil {
		t.Fatalf("second Enroll error: %v", err)
	}

	if ok, _ := v.Redeem(ctx, "a1", old[0]); ok {
		t.Fatal("code from replaced set must not redeem")
	}
}

func TestEnrollAtStaleVersionKeepsCodes(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	kept, err := v.Enroll(ctx, "a1", 1)
	if err != nil {
		t.Fatalf("Enroll error: %v", err)
	}

	if _, err := v.Enroll(ctx, "a1", 1); !errors.Is(err, ErrStale) {
		t.Fatalf("stale Enroll = %v, want ErrStale", err)
	}
	if ok, _ := v.Redeem(ctx, "a1", kept[0]); !ok {
		t.Fatal("codes from the winning enrollment must still redeem")
	}
	if n, _ := v.Remaining(ctx, "a1"); n != DefaultCount-1 {
		t.Fatalf("Remaining = %d", n)
	}
}

func TestConcurrentRedeemSameCode(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	codes, _ := v.Enroll(ctx, "a1", 1)

	const workers = 8
	results := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := v.Redeem(ctx, "a1", codes[0])
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one redemption, got %d", wins)
	}
}

func TestConcurrentRedeemDistinctCodes(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	codes, _ := v.Enroll(ctx, "a1", 1)

	var wg sync.WaitGroup
	errs := make(chan string, 2)
	for _, code := range codes[:2] {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			if ok, err := v.Redeem(ctx, "a1", code); !ok || err != nil {
				errs <- code
			}
		}(code)
	}
	wg.Wait()
	close(errs)

	for code := range errs {
		t.Fatalf("distinct code %s failed to redeem", code)
	}
	if n, _ := v.Remaining(ctx, "a1"); n != DefaultCount-2 {
		t.Fatalf("Remaining = %d", n)
	}
}

func TestCanonicalizeAndFormat(t *testing.T) {
	if got := Canonicalize(" abcde-fghjk "); got != "ABCDEFGHJK" {
		t.Fatalf("Canonicalize = %q", got)
	}
	if got := Format("ABCDEFGHJK"); got != "ABCDE-FGHJK" {
		t.Fatalf("Format = %q", got)
	}
}
