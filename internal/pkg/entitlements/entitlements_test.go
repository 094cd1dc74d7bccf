package entitlements

import "testing"

func TestMaxStorageAccounts(t *testing.T) {
	if got := MaxStorageAccounts("free"); got != 1 {
		t.Fatalf("free tier: got %d, want 1", got)
	}
	if got := MaxStorageAccounts(""); got != 1 {
		t.Fatalf("empty tier: got %d, want 1", got)
	}
	for _, tier := range []string{"personal", "professional", "professional_annual"} {
		if got := MaxStorageAccounts(tier); got != unlimited {
			t.Fatalf("tier %s: got %d, want unlimited", tier, got)
		}
	}
}

func TestCanAddStorageAccount(t *testing.T) {
	if !CanAddStorageAccount("free", 0) {
		t.Fatalf("free user with no profiles must be able to add one")
	}
	if CanAddStorageAccount("free", 1) {
		t.Fatalf("free user with one profile must be capped")
	}
	if !CanAddStorageAccount("professional", 100) {
		t.Fatalf("paid tiers must not be capped")
	}
}

func TestAllowedFeatures(t *testing.T) {
	multi, bulk := AllowedFeatures("free")
	if multi || bulk {
		t.Fatalf("free tier must unlock nothing")
	}
	multi, bulk = AllowedFeatures("personal")
	if !multi || bulk {
		t.Fatalf("personal tier unlocks multi-account only")
	}
	multi, bulk = AllowedFeatures("professional_annual")
	if !multi || !bulk {
		t.Fatalf("professional tiers unlock everything")
	}
}
