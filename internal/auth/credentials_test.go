package auth

import (
	"regexp"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter22", 10)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "hunter22") {
		t.Error("expected matching password to verify")
	}
	if CheckPassword(hash, "hunter23") {
		t.Error("expected wrong password to fail")
	}
	if CheckPassword("not-a-hash", "hunter22") {
		t.Error("expected malformed hash to fail")
	}
}

func TestGeneratePassword(t *testing.T) {
	a, err := GeneratePassword()
	if err != nil {
		t.Fatalf("GeneratePassword: %v", err)
	}
	b, err := GeneratePassword()
	if err != nil {
		t.Fatalf("GeneratePassword: %v", err)
	}
	if a == b {
		t.Error("expected distinct generated passwords")
	}
	if len(a) < 20 {
		t.Errorf("generated password too short: %d chars", len(a))
	}
}

func TestGenerateOTPFormat(t *testing.T) {
	re := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 20; i++ {
		code, err := GenerateOTP()
		if err != nil {
			t.Fatalf("GenerateOTP: %v", err)
		}
		if !re.MatchString(code) {
			t.Fatalf("expected 6-digit code, got %q", code)
		}
	}
}

func TestGenerateMagicLinkToken(t *testing.T) {
	token, err := GenerateMagicLinkToken()
	if err != nil {
		t.Fatalf("GenerateMagicLinkToken: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(token) {
		t.Errorf("expected 64 hex chars, got %q", token)
	}

	other, err := GenerateMagicLinkToken()
	if err != nil {
		t.Fatalf("GenerateMagicLinkToken: %v", err)
	}
	if token == other {
		t.Error("expected distinct tokens")
	}
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	if h != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("unexpected digest %q", h)
	}
	if HashToken("abc") != h {
		t.Error("expected deterministic digest")
	}
	if HashToken("abd") == h {
		t.Error("expected different input to produce different digest")
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes()
	if err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	re := regexp.MustCompile(`^[0-9A-F]{8}$`)
	seen := make(map[string]bool)
	for _, code := range codes {
		if !re.MatchString(code) {
			t.Errorf("expected 8 uppercase hex chars, got %q", code)
		}
		seen[code] = true
	}
	if len(seen) != len(codes) {
		t.Error("expected codes to be unique")
	}
}

func TestVerifyTOTP(t *testing.T) {
	secret, url, err := GenerateTOTPSecret("beta-portal", "admin@example.com")
	if err != nil {
		t.Fatalf("GenerateTOTPSecret: %v", err)
	}
	if url == "" {
		t.Error("expected provisioning url")
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}

	if !VerifyTOTP(secret, code, 2) {
		t.Error("expected current code to verify")
	}
	if VerifyTOTP(secret, "000000", 2) && code != "000000" {
		t.Error("expected wrong code to fail")
	}
	if VerifyTOTP(secret, "not-a-code", 2) {
		t.Error("expected malformed code to fail")
	}
}

func TestVerifyTOTPAcceptsAdjacentStep(t *testing.T) {
	secret, _, err := GenerateTOTPSecret("beta-portal", "admin@example.com")
	if err != nil {
		t.Fatalf("GenerateTOTPSecret: %v", err)
	}

	// A code from one step ago must still verify with skew 2.
	code, err := totp.GenerateCode(secret, time.Now().Add(-30*time.Second))
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if !VerifyTOTP(secret, code, 2) {
		t.Error("expected previous-step code to verify within skew")
	}
}
