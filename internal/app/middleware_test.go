package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recargaplus/storefront/internal/shared"
)

func csrfRequest(t *testing.T, manager *shared.CSRFManager, body, contentType string) (*http.Request, string) {
	t.Helper()
	sess := &shared.Session{ID: "s-1"}
	token, err := manager.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), token
}

func TestCSRFHeaderLeavesBodyUnread(t *testing.T) {
	manager := shared.NewCSRFManager("secret")
	var got string
	h := csrfProtect(manager, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		got = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tc := range []struct{ body, contentType string }{
		{`{"sku":"netflix","qty":1}`, "application/json"},
		{"sku=netflix&qty=1", "application/x-www-form-urlencoded"},
	} {
		req, token := csrfRequest(t, manager, tc.body, tc.contentType)
		req.Header.Set(shared.CSRFHeader, token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code, tc.contentType)
		assert.Equal(t, tc.body, got, tc.contentType)
	}
}

func TestCSRFFormFieldFallback(t *testing.T) {
	manager := shared.NewCSRFManager("secret")
	h := csrfProtect(manager, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req, token := csrfRequest(t, manager, "", "application/x-www-form-urlencoded")
	req.Body = io.NopCloser(strings.NewReader(url.Values{shared.CSRFFormField: {token}}.Encode()))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	req, _ = csrfRequest(t, manager, `{"sku":"x"}`, "application/json")
	req.Header.Set(shared.CSRFHeader, "forged")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
