package auth

import (
	"os"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func TestVerifyPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash == "secret1" {
		t.Fatal("hash must not equal the secret")
	}
	if !VerifyPassword("secret1", hash) {
		t.Error("expected original secret to verify")
	}
	if VerifyPassword("secret2", hash) {
		t.Error("expected different secret to be rejected")
	}
	if VerifyPassword("", hash) {
		t.Error("expected empty secret to be rejected")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	a, _ := HashPassword("same")
	b, _ := HashPassword("same")
	if a == b {
		t.Error("expected distinct hashes for the same secret")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	for _, hash := range []string{"", "plain", "$2a$", "$2a$10$short", "$9z$10$abcdefghijklmnopqrstuuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ012"} {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("VerifyPassword panicked on %q: %v", hash, r)
				}
			}()
			if VerifyPassword("secret", hash) {
				t.Errorf("expected false for malformed hash %q", hash)
			}
		}()
	}
}

func TestBurnPasswordCheck_DoesNotPanic(t *testing.T) {
	BurnPasswordCheck("anything")
	BurnPasswordCheck("")
}
