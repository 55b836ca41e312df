package vault

import (
	"context"
	"testing"

	"group-decision/internal/testutil"
)

func TestTransitRoundTrip(t *testing.T) {
	tc := testutil.SetupTestContainers(t, true)
	ctx := context.Background()

	client, err := NewClient(ctx, &Config{
		Address:      tc.VaultAddr,
		Token:        tc.VaultToken,
		TransitMount: "transit",
		KeyName:      "dietary-requirements",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := client.Health(); err != nil {
		t.Fatalf("Health() error = %v", err)
	}

	aad := map[string]string{"decision_id": "d1", "user_id": "u1"}
	ciphertext, err := client.Encrypt(ctx, []byte(`["vegan"]`), aad)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if ciphertext == `["vegan"]` {
		t.Fatal("ciphertext equals plaintext")
	}

	plaintext, err := client.Decrypt(ctx, ciphertext, aad)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(plaintext) != `["vegan"]` {
		t.Errorf("Decrypt() = %s", plaintext)
	}

	if _, err := client.Decrypt(ctx, ciphertext, map[string]string{"decision_id": "d1", "user_id": "u2"}); err == nil {
		t.Error("Decrypt with another member's associated data should fail")
	}

	// a second client finds the existing mount and key
	if _, err := NewClient(ctx, &Config{Address: tc.VaultAddr, Token: tc.VaultToken, TransitMount: "transit", KeyName: "dietary-requirements"}); err != nil {
		t.Errorf("NewClient() on initialized Vault error = %v", err)
	}
}
