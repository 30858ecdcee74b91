package password

import (
	"strings"
	"testing"
)

func testParams() Params {
	p := DefaultParams()
	p.MemoryKiB = 8 * 1024
	p.Iterations = 1
	return p
}

func TestHashAndVerify_OK(t *testing.T) {
	p := testParams()

	h, err := p.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", h)
	}

	ok, err := p.Verify(h, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	p := testParams()

	h, err := p.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := p.Verify(h, "wrong password")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestHash_Rejects(t *testing.T) {
	p := testParams()

	if _, err := p.Hash(""); err != ErrPasswordEmpty {
		t.Fatalf("expected ErrPasswordEmpty, got %v", err)
	}
	if _, err := p.Hash(strings.Repeat("x", MaxLength+1)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	p := testParams()

	for _, enc := range []string{
		"",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$aGFzaGhhc2hoYXNoaGFzaA",
	} {
		if _, err := p.Verify(enc, "pw"); err != ErrInvalidHash {
			t.Fatalf("Verify(%q): expected ErrInvalidHash, got %v", enc, err)
		}
	}
}

func TestVerify_RejectsExcessiveCost(t *testing.T) {
	strong := testParams()
	strong.Iterations = 5

	h, err := strong.Hash("pw-for-cost-check")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if _, err := testParams().Verify(h, "pw-for-cost-check"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash for excessive cost, got %v", err)
	}
}
