package password

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestArgon2(t *testing.T) *Argon2 {
	t.Helper()
	hasher, err := NewArgon2(testArgon2Config(), nil)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return hasher
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher := newTestArgon2(t)

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification to succeed")
	}
}

func TestArgon2VerifyWrongPassword(t *testing.T) {
	hasher := newTestArgon2(t)

	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := hasher.Verify("wrong-password", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestArgon2DeterministicWithFixedRandom(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)

	a, err := NewArgon2(testArgon2Config(), bytes.NewReader(seed))
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	b, err := NewArgon2(testArgon2Config(), bytes.NewReader(seed))
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	h1, err := a.Hash("same-input")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	h2, err := b.Hash("same-input")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical hashes for identical salt source, got %q and %q", h1, h2)
	}
}

func TestArgon2NeedsRehash(t *testing.T) {
	oldHasher := newTestArgon2(t)
	hash, err := oldHasher.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := testArgon2Config()
	stronger.Time = 2
	newHasher, err := NewArgon2(stronger, nil)
	if err != nil {
		t.Fatalf("NewArgon2(new) error: %v", err)
	}

	needs, err := newHasher.NeedsRehash(hash)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if !needs {
		t.Fatal("expected NeedsRehash to return true for weaker hash parameters")
	}

	needs, err = oldHasher.NeedsRehash(hash)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if needs {
		t.Fatal("expected NeedsRehash to return false for current parameters")
	}
}

func TestArgon2VerifyMalformedHash(t *testing.T) {
	hasher := newTestArgon2(t)

	if _, err := hasher.Verify("password", "not-a-phc-hash"); err == nil {
		t.Fatal("expected malformed hash verification to fail")
	}
}

func TestArgon2VerifyWrongVersion(t *testing.T) {
	hasher := newTestArgon2(t)

	hash, err := hasher.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	wrongVersion := strings.Replace(hash, "$v=19$", "$v=18$", 1)
	if _, err := hasher.Verify("version-test", wrongVersion); err == nil {
		t.Fatal("expected unsupported version verification to fail")
	}
}

func TestArgon2AcceptsPaddedEncoding(t *testing.T) {
	hasher := newTestArgon2(t)

	hash, err := hasher.Hash("padding-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	parts := strings.Split(hash, "$")
	// 16-byte salt and 32-byte key both need padding in StdEncoding.
	parts[4] += "=="
	parts[5] += "="
	padded := strings.Join(parts, "$")

	ok, err := hasher.Verify("padding-test", padded)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected padded PHC to verify")
	}
}

func TestArgon2TooLongPassword(t *testing.T) {
	hasher := newTestArgon2(t)

	longPwd := strings.Repeat("d", MaxPasswordBytes+1)
	if _, err := hasher.Hash(longPwd); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	hash, err := hasher.Hash("valid-password-123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	ok, err := hasher.Verify(longPwd, hash)
	if err != nil || ok {
		t.Fatalf("expected long password to fail verification, ok=%v err=%v", ok, err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	cfg := testArgon2Config()
	cfg.Memory = 1024
	if _, err := NewArgon2(cfg, nil); err == nil {
		t.Fatal("expected weak memory setting to be rejected")
	}

	cfg = testArgon2Config()
	cfg.SaltLength = 8
	if _, err := NewArgon2(cfg, nil); err == nil {
		t.Fatal("expected short salt to be rejected")
	}
}
