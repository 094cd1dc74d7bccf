package token

import (
	"os"
	"strings"
	"testing"

	"github.com/cubbyhq/cubby/app/models"
)

func testUser() *models.User {
	return &models.User{
		ID:     42,
		Name:   "tester",
		Email:  "tester@example.com",
		Role:   models.ROLE_USER,
		Status: models.STATUS_ACTIVE,
	}
}

func TestGenerateParseRoundTrip(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-signing-secret")
	defer os.Unsetenv("JWT_SECRET")

	signed, err := Generate(testUser())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	claims, err := Parse(signed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != 42 || claims.Name != "tester" || claims.Role != models.ROLE_USER {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("expected a token id claim")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-signing-secret")
	defer os.Unsetenv("JWT_SECRET")

	signed, err := Generate(testUser())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	tampered := signed[:len(signed)-2] + "xx"
	if _, err := Parse(tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	os.Setenv("JWT_SECRET", "secret-one")
	signed, err := Generate(testUser())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	os.Setenv("JWT_SECRET", "secret-two")
	defer os.Unsetenv("JWT_SECRET")
	if _, err := Parse(signed); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-signing-secret")
	defer os.Unsetenv("JWT_SECRET")

	for _, in := range []string{"", "not.a.token", strings.Repeat("a", 64)} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}
