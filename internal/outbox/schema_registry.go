package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// SchemaRegistryClient talks to a Confluent-compatible schema registry.
// Only the two calls the dispatcher needs exist: latest-version lookup and
// JSON-schema registration for the time-entry event subjects.
type SchemaRegistryClient struct {
	baseURL string
	client  *http.Client
}

// NewSchemaRegistryClient constructs a client for the registry at baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema resolves the subject's current schema id, registering the
// schema on the subject's first use. A failed lookup falls through to
// registration, which is idempotent for an unchanged schema.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	if id, err := c.latestVersion(ctx, subject); err == nil {
		return id, nil
	}
	return c.registerSchema(ctx, subject, schema)
}

func (c *SchemaRegistryClient) latestVersion(ctx context.Context, subject string) (int, error) {
	url := fmt.Sprintf("%s/subjects/%s/versions/latest", c.baseURL, subject)
	return c.schemaID(ctx, http.MethodGet, url, nil)
}

func (c *SchemaRegistryClient) registerSchema(ctx context.Context, subject, schema string) (int, error) {
	body, err := json.Marshal(struct {
		Schema     string `json:"schema"`
		SchemaType string `json:"schemaType"`
	}{Schema: schema, SchemaType: "JSON"})
	if err != nil {
		return 0, fmt.Errorf("encode schema for %s: %w", subject, err)
	}

	url := fmt.Sprintf("%s/subjects/%s/versions", c.baseURL, subject)
	return c.schemaID(ctx, http.MethodPost, url, bytes.NewReader(body))
}

func (c *SchemaRegistryClient) schemaID(ctx context.Context, method, url string, body io.Reader) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", registryContentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("schema registry: %s %s: status %d: %s", method, url, resp.StatusCode, detail)
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode schema registry response: %w", err)
	}
	return payload.ID, nil
}
