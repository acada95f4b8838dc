package cryptox

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveMasterKeyDeterministic(t *testing.T) {
	password := []byte("correct horse battery staple")
	salt := []byte("per-user-salt-value")

	first, err := DeriveMasterKey(password, salt, MinIterations)
	if err != nil {
		t.Fatalf("DeriveMasterKey failed: %v", err)
	}
	second, err := DeriveMasterKey(password, salt, MinIterations)
	if err != nil {
		t.Fatalf("DeriveMasterKey failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("same inputs produced different master keys")
	}
	if len(first) != KeySize {
		t.Fatalf("expected %d-byte key, got %d", KeySize, len(first))
	}
}

func TestDeriveMasterKeyInputSensitivity(t *testing.T) {
	base, err := DeriveMasterKey([]byte("password"), []byte("salt"), MinIterations)
	if err != nil {
		t.Fatalf("DeriveMasterKey failed: %v", err)
	}

	otherPassword, _ := DeriveMasterKey([]byte("passworD"), []byte("salt"), MinIterations)
	otherSalt, _ := DeriveMasterKey([]byte("password"), []byte("salT"), MinIterations)
	otherIters, _ := DeriveMasterKey([]byte("password"), []byte("salt"), MinIterations+1)

	for name, key := range map[string][]byte{
		"password":   otherPassword,
		"salt":       otherSalt,
		"iterations": otherIters,
	} {
		if bytes.Equal(base, key) {
			t.Fatalf("changing %s did not change the derived key", name)
		}
	}
}

func TestIterationFloor(t *testing.T) {
	for _, iters := range []int{0, 1, 1000, 9_999, -5} {
		_, err := DeriveMasterKey([]byte("pw"), []byte("salt"), iters)
		if !errors.Is(err, ErrIterationFloor) {
			t.Fatalf("iterations=%d: expected ErrIterationFloor, got %v", iters, err)
		}
	}
}

func TestDeriveMasterKeyRejectsEmptyInputs(t *testing.T) {
	if _, err := DeriveMasterKey(nil, []byte("salt"), MinIterations); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if _, err := DeriveMasterKey([]byte("pw"), nil, MinIterations); !errors.Is(err, ErrEmptySalt) {
		t.Fatalf("expected ErrEmptySalt, got %v", err)
	}
}

func TestRatchetIsOneWayAndContextBound(t *testing.T) {
	master, err := DeriveMasterKey([]byte("pw"), []byte("salt"), MinIterations)
	if err != nil {
		t.Fatalf("DeriveMasterKey failed: %v", err)
	}

	sessionA, err := DeriveSessionKey(master, "sess-a")
	if err != nil {
		t.Fatalf("DeriveSessionKey failed: %v", err)
	}
	sessionB, err := DeriveSessionKey(master, "sess-b")
	if err != nil {
		t.Fatalf("DeriveSessionKey failed: %v", err)
	}
	if bytes.Equal(sessionA, sessionB) {
		t.Fatal("distinct session ids produced identical session keys")
	}
	if bytes.Equal(sessionA, master) {
		t.Fatal("session key equals master key")
	}

	docA, err := DeriveDocumentKey(sessionA, "doc-1")
	if err != nil {
		t.Fatalf("DeriveDocumentKey failed: %v", err)
	}
	docAgain, err := DeriveDocumentKey(sessionA, "doc-1")
	if err != nil {
		t.Fatalf("DeriveDocumentKey failed: %v", err)
	}
	if !bytes.Equal(docA, docAgain) {
		t.Fatal("document derivation is not deterministic")
	}

	// The session and document levels use distinct HKDF context strings,
	// so the same id at different levels yields different keys.
	sessSame, err := DeriveSessionKey(master, "doc-1")
	if err != nil {
		t.Fatalf("DeriveSessionKey failed: %v", err)
	}
	docSame, err := DeriveDocumentKey(master, "doc-1")
	if err != nil {
		t.Fatalf("DeriveDocumentKey failed: %v", err)
	}
	if bytes.Equal(sessSame, docSame) {
		t.Fatal("session and document derivation collide for the same id")
	}
}

func TestRatchetRejectsBadInputs(t *testing.T) {
	if _, err := DeriveSessionKey([]byte("short"), "sess"); !errors.Is(err, ErrBadKeySize) {
		t.Fatalf("expected ErrBadKeySize, got %v", err)
	}
	master, _ := DeriveMasterKey([]byte("pw"), []byte("salt"), MinIterations)
	if _, err := DeriveSessionKey(master, ""); err == nil {
		t.Fatal("expected rejection of empty session id")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	master, _ := DeriveMasterKey([]byte("pw"), []byte("salt"), MinIterations)
	plaintext := []byte("vault document bytes")

	sealed, err := Seal(master, plaintext)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	opened, err := Open(master, sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatal("round trip lost the plaintext")
	}

	// Fresh nonce per call: identical plaintexts seal differently.
	again, err := Seal(master, plaintext)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Equal(sealed, again) {
		t.Fatal("two Seal calls produced identical ciphertext")
	}
}

func TestOpenRejectsTamperingAndWrongKey(t *testing.T) {
	master, _ := DeriveMasterKey([]byte("pw"), []byte("salt"), MinIterations)
	other, _ := DeriveMasterKey([]byte("pw2"), []byte("salt"), MinIterations)

	sealed, err := Seal(master, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if _, err := Open(other, sealed); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("expected ErrCiphertext for wrong key, got %v", err)
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := Open(master, tampered); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("expected ErrCiphertext for tampered payload, got %v", err)
	}

	if _, err := Open(master, []byte("short")); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("expected ErrCiphertext for truncated payload, got %v", err)
	}
}

func TestVerifierProvesKeyPossession(t *testing.T) {
	master, _ := DeriveMasterKey([]byte("pw"), []byte("salt"), MinIterations)
	wrong, _ := DeriveMasterKey([]byte("wrong"), []byte("salt"), MinIterations)

	v, err := SealVerifier(master)
	if err != nil {
		t.Fatalf("SealVerifier failed: %v", err)
	}

	if !OpenVerifier(master, v) {
		t.Fatal("correct key failed verifier check")
	}
	if OpenVerifier(wrong, v) {
		t.Fatal("wrong key passed verifier check")
	}

	// A client that re-derives the key from scratch must pass too.
	rederived, _ := DeriveMasterKey([]byte("pw"), []byte("salt"), MinIterations)
	if !OpenVerifier(rederived, v) {
		t.Fatal("re-derived key failed verifier check")
	}
}
