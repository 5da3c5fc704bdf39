package auth

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// ---------------------------------------------------------------------------
// CreateToken / ParseActor round trip
// ---------------------------------------------------------------------------

func TestTokenRoundTrip(t *testing.T) {
	token, err := CreateToken("astrid.lindqvist", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("CreateToken() error: %v", err)
	}

	actor, err := ParseActor(token, testSecret)
	if err != nil {
		t.Fatalf("ParseActor() error: %v", err)
	}
	if actor != "astrid.lindqvist" {
		t.Errorf("actor = %q, want astrid.lindqvist", actor)
	}
}

func TestParseActor_WrongSecret(t *testing.T) {
	token, err := CreateToken("someone", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("CreateToken() error: %v", err)
	}

	if _, err := ParseActor(token, "ffffffffffffffffffffffffffffffff"); err == nil {
		t.Error("ParseActor() expected error for wrong secret, got nil")
	}
}

func TestParseActor_ExpiredToken(t *testing.T) {
	token, err := CreateToken("someone", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("CreateToken() error: %v", err)
	}

	if _, err := ParseActor(token, testSecret); err == nil {
		t.Error("ParseActor() expected error for expired token, got nil")
	}
}

func TestParseActor_Garbage(t *testing.T) {
	if _, err := ParseActor("not-a-token", testSecret); err == nil {
		t.Error("ParseActor() expected error for malformed token, got nil")
	}
}

func TestParseActor_NoSecret(t *testing.T) {
	if _, err := ParseActor("anything", ""); err != ErrNoSigningSecret {
		t.Errorf("ParseActor() error = %v, want ErrNoSigningSecret", err)
	}
}

func TestCreateToken_NoSecret(t *testing.T) {
	if _, err := CreateToken("someone", "", time.Hour); err != ErrNoSigningSecret {
		t.Errorf("CreateToken() error = %v, want ErrNoSigningSecret", err)
	}
}

// ---------------------------------------------------------------------------
// ValidateSigningSecret
// ---------------------------------------------------------------------------

func TestValidateSigningSecret(t *testing.T) {
	t.Run("empty secret allowed", func(t *testing.T) {
		if err := ValidateSigningSecret(""); err != nil {
			t.Errorf("ValidateSigningSecret(\"\") = %v, want nil", err)
		}
	})

	t.Run("short secret rejected", func(t *testing.T) {
		err := ValidateSigningSecret("tooshort")
		if err == nil {
			t.Fatal("ValidateSigningSecret() expected error for short secret, got nil")
		}
		if !strings.Contains(err.Error(), "32 characters") {
			t.Errorf("error should mention minimum length, got: %v", err)
		}
	})

	t.Run("long secret accepted", func(t *testing.T) {
		if err := ValidateSigningSecret(testSecret); err != nil {
			t.Errorf("ValidateSigningSecret() unexpected error: %v", err)
		}
	})
}

// ---------------------------------------------------------------------------
// Maintenance token hashing
// ---------------------------------------------------------------------------

func TestMaintenanceTokenRoundTrip(t *testing.T) {
	hash, err := HashMaintenanceToken("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashMaintenanceToken() error: %v", err)
	}

	if !VerifyMaintenanceToken(hash, "correct horse battery staple") {
		t.Error("VerifyMaintenanceToken() = false for matching token")
	}
	if VerifyMaintenanceToken(hash, "wrong token") {
		t.Error("VerifyMaintenanceToken() = true for non-matching token")
	}
}

func TestVerifyMaintenanceToken_EmptyInputs(t *testing.T) {
	hash, err := HashMaintenanceToken("some-token")
	if err != nil {
		t.Fatalf("HashMaintenanceToken() error: %v", err)
	}

	if VerifyMaintenanceToken("", "some-token") {
		t.Error("empty hash must disable maintenance access")
	}
	if VerifyMaintenanceToken(hash, "") {
		t.Error("empty token must never verify")
	}
}
