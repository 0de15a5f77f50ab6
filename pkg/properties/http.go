package properties

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// HTTPCatalog reads properties from the platform catalog service.
type HTTPCatalog struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCatalog creates an HTTPCatalog for the given base URL.
func NewHTTPCatalog(baseURL string) (*HTTPCatalog, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("empty url")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid url: %s", err)
	}
	return &HTTPCatalog{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Get fetches a property through GET /v1/properties/{id}.
func (c *HTTPCatalog) Get(ctx context.Context, id uuid.UUID) (*Property, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/properties/"+id.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %s", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling catalog service: %s", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("status code: %d", resp.StatusCode)
	}

	var p Property
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding property: %s", err)
	}
	return &p, nil
}

// Search queries properties through POST /v1/properties/search.
func (c *HTTPCatalog) Search(ctx context.Context, f Filter) ([]*Property, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshaling filter: %s", err)
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/v1/properties/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling catalog service: %s", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code: %d", resp.StatusCode)
	}

	var out []*Property
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding properties: %s", err)
	}
	return out, nil
}
