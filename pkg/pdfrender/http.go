package pdfrender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPRenderer renders documents through the platform PDF service.
type HTTPRenderer struct {
	renderURL string
	client    *http.Client
}

// NewHTTPRenderer creates an HTTPRenderer posting documents to renderURL.
func NewHTTPRenderer(renderURL string) (*HTTPRenderer, error) {
	if renderURL == "" {
		return nil, fmt.Errorf("empty url")
	}
	if _, err := url.ParseRequestURI(renderURL); err != nil {
		return nil, fmt.Errorf("invalid url: %s", err)
	}
	return &HTTPRenderer{
		renderURL: renderURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Render posts the document model and returns the PDF bytes.
func (r *HTTPRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %s", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.renderURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting document: %s", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code: %d", resp.StatusCode)
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %s", err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("renderer returned an empty document")
	}
	return pdf, nil
}
