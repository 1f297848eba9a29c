package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Document identifies an identity document previously uploaded by a user.
type Document struct {
	ID     string `json:"document_id"`
	UserID string `json:"user_id"`
	Kind   string `json:"kind,omitempty"` // passport, drivers_license, national_id
}

// DocumentReport is the analysis provider's opaque verdict.
type DocumentReport struct {
	Authentic  bool    `json:"authentic"`
	Altered    bool    `json:"altered"`
	Confidence float64 `json:"confidence"`
}

// Accepted reports whether the document counts toward verification.
func (r DocumentReport) Accepted() bool {
	return r.Authentic && !r.Altered
}

type DocumentAnalyzer interface {
	Analyze(ctx context.Context, doc Document) (*DocumentReport, error)
}

// DocumentAnalyzerFunc adapts a function to DocumentAnalyzer.
type DocumentAnalyzerFunc func(ctx context.Context, doc Document) (*DocumentReport, error)

func (f DocumentAnalyzerFunc) Analyze(ctx context.Context, doc Document) (*DocumentReport, error) {
	return f(ctx, doc)
}

// HTTPDocumentAnalyzer calls a document analysis service over JSON/HTTP.
type HTTPDocumentAnalyzer struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPDocumentAnalyzer(baseURL, token string) *HTTPDocumentAnalyzer {
	return &HTTPDocumentAnalyzer{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPDocumentAnalyzer) doReq(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("documents %s %s: %d %s", method, path, resp.StatusCode, string(data))
	}
	return data, nil
}

func (c *HTTPDocumentAnalyzer) Analyze(ctx context.Context, doc Document) (*DocumentReport, error) {
	data, err := c.doReq(ctx, http.MethodPost, "/v1/documents/analyze", doc)
	if err != nil {
		return nil, err
	}
	var report DocumentReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
