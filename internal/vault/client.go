package vault

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// Client wraps the HashiCorp Vault transit engine
type Client struct {
	client       *api.Client
	transitMount string
	keyName      string
}

// Config holds Vault configuration
type Config struct {
	Address      string
	Token        string
	TransitMount string
	KeyName      string
}

// NewClient creates a Vault client, mounting the transit engine and creating
// the encryption key when they are missing
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	config := api.DefaultConfig()
	config.Address = cfg.Address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c := &Client{
		client:       client,
		transitMount: cfg.TransitMount,
		keyName:      cfg.KeyName,
	}

	if err := c.initTransitEngine(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize transit engine: %w", err)
	}
	if err := c.ensureKey(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// initTransitEngine enables the transit secrets engine if not already enabled
func (c *Client) initTransitEngine(ctx context.Context) error {
	mounts, err := c.client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mounts: %w", err)
	}

	if _, exists := mounts[c.transitMount+"/"]; exists {
		return nil
	}

	err = c.client.Sys().MountWithContext(ctx, c.transitMount, &api.MountInput{
		Type:        "transit",
		Description: "Transit encryption for group decision constraints",
	})
	if err != nil {
		return fmt.Errorf("failed to mount transit engine: %w", err)
	}

	return nil
}

// ensureKey creates the aes256-gcm96 key used for constraint data.
// Writing an existing key is a no-op in Vault.
func (c *Client) ensureKey(ctx context.Context) error {
	path := fmt.Sprintf("%s/keys/%s", c.transitMount, c.keyName)
	data := map[string]interface{}{
		"type":       "aes256-gcm96",
		"exportable": false,
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, data); err != nil {
		return fmt.Errorf("failed to create key %s: %w", c.keyName, err)
	}
	return nil
}

// Encrypt encrypts data with the transit key. aad is bound to the ciphertext
// and must be supplied again to decrypt.
func (c *Client) Encrypt(ctx context.Context, plaintext []byte, aad map[string]string) (string, error) {
	path := fmt.Sprintf("%s/encrypt/%s", c.transitMount, c.keyName)

	data := map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	}
	if len(aad) > 0 {
		data["associated_data"] = base64.StdEncoding.EncodeToString([]byte(encodeContext(aad)))
	}

	secret, err := c.client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("empty encrypt response")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("invalid ciphertext response")
	}

	return ciphertext, nil
}

// Decrypt reverses Encrypt
func (c *Client) Decrypt(ctx context.Context, ciphertext string, aad map[string]string) ([]byte, error) {
	path := fmt.Sprintf("%s/decrypt/%s", c.transitMount, c.keyName)

	data := map[string]interface{}{
		"ciphertext": ciphertext,
	}
	if len(aad) > 0 {
		data["associated_data"] = base64.StdEncoding.EncodeToString([]byte(encodeContext(aad)))
	}

	secret, err := c.client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("empty decrypt response")
	}

	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid plaintext response")
	}

	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plaintext: %w", err)
	}

	return plaintext, nil
}

// Health checks Vault health status
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if !health.Initialized {
		return fmt.Errorf("vault is not initialized")
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// encodeContext renders associated data in a stable key order
func encodeContext(aad map[string]string) string {
	keys := make([]string, 0, len(aad))
	for k := range aad {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, aad[k])
	}
	return b.String()
}
