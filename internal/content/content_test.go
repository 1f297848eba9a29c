package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordMatcher(t *testing.T) {
	m := NewKeywordMatcher([]string{"babysitting", "gift card", "Cash", "cash", ""})
	assert.Equal(t, 3, m.Len())

	tests := []struct {
		text string
		want []string
	}{
		{"Need BABYSITTING this weekend", []string{"babysitting"}},
		{"ｂａｂｙｓｉｔｔｉｎｇ wanted", []string{"babysitting"}},
		{"pay me with a Gift-Card please", []string{"gift card"}},
		{"hiring a cashier", nil},
		{"cash only, no gift cards", []string{"Cash"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Match(tt.text), "text %q", tt.text)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world 42", Normalize("  Hello,   WORLD!! 42 "))
	assert.Equal(t, "strasse", Normalize("STRASSE"))
	assert.Equal(t, "", Normalize("!!!"))
}

func TestContactKind(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"email me at jane.doe@example.com", "email address"},
		{"see www.example.com for details", "link"},
		{"https://example.com/pay", "link"},
		{"call +1 (555) 123-4567", "phone number"},
		{"reach me on 555.123.4567", "phone number"},
		{"1-555-123-4567 after six", "phone number"},
		{"text me at 5551234567", "phone number"},
		{"whatsapp +44 20 7946 0958", "phone number"},
		{"need help moving 3 boxes on 12/05", ""},
		{"pickup for order 1234567890123 at the front desk", ""},
		{"invoice 5551234567 is attached", ""},
		{"reference 2026 0501 1030 4455 on the receipt", ""},
		{"starts 2026-05-01 at 10.30, ends 2026-05-03", ""},
		{"tracking 12-345-678-9012", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContactKind(tt.text), "text %q", tt.text)
	}
}

func TestHTTPDocumentAnalyzer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/documents/analyze", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var doc Document
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		if doc.ID == "forged" {
			json.NewEncoder(w).Encode(DocumentReport{Authentic: true, Altered: true, Confidence: 0.9})
			return
		}
		json.NewEncoder(w).Encode(DocumentReport{Authentic: true, Confidence: 0.97})
	}))
	defer srv.Close()

	c := NewHTTPDocumentAnalyzer(srv.URL, "secret")

	report, err := c.Analyze(context.Background(), Document{ID: "doc-1", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, report.Accepted())

	report, err = c.Analyze(context.Background(), Document{ID: "forged", UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, report.Accepted())
}

func TestHTTPDocumentAnalyzerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "provider down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPDocumentAnalyzer(srv.URL, "").Analyze(context.Background(), Document{ID: "d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
