package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recargaplus/storefront/internal/backend"
	"github.com/recargaplus/storefront/internal/shared"
)

type fakeBackend struct {
	calls    atomic.Int32
	lastAuth string
	lastPath string
	lastBody string
	status   int
	reply    string
}

func (f *fakeBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.lastAuth = r.Header.Get("Authorization")
		f.lastPath = r.URL.RequestURI()
		body, _ := io.ReadAll(r.Body)
		f.lastBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		status := f.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(f.reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type recorderStub struct {
	results []int
}

func (r *recorderStub) RecordBackendCall(resource string, status int) {
	r.results = append(r.results, status)
}

func newRouter(client Backend, recorder CallRecorder) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, client, recorder).MountRoutes)
	return r
}

func asRole(req *http.Request, role string) *http.Request {
	sess := &shared.Session{}
	sess.SetUser("5")
	sess.Set(shared.SessionKeyToken, "tok-"+strings.ToLower(role))
	sess.Set(shared.SessionKeyRole, role)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestListProductsForwardsTokenAndStatus(t *testing.T) {
	fake := &fakeBackend{status: http.StatusPartialContent, reply: `{"items":[1]}`}
	srv := fake.server(t)
	rec := &recorderStub{}
	router := newRouter(backend.NewClient(srv.URL, time.Second), rec)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asRole(httptest.NewRequest(http.MethodGet, "/api/products?page=3", nil), "CLIENT"))

	assert.Equal(t, http.StatusPartialContent, rr.Code)
	assert.JSONEq(t, `{"items":[1]}`, rr.Body.String())
	assert.Equal(t, "Bearer tok-client", fake.lastAuth)
	assert.Equal(t, "/products?page=3", fake.lastPath)
	assert.Equal(t, []int{http.StatusPartialContent}, rec.results)
}

func TestAnonymousGets401WithoutUpstreamCall(t *testing.T) {
	fake := &fakeBackend{}
	srv := fake.server(t)
	router := newRouter(backend.NewClient(srv.URL, time.Second), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/wallet", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"message":"authentication required"}`, rr.Body.String())
	assert.Zero(t, fake.calls.Load())
}

func TestClientCannotWriteProducts(t *testing.T) {
	fake := &fakeBackend{}
	srv := fake.server(t)
	router := newRouter(backend.NewClient(srv.URL, time.Second), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(`{"name":"x"}`))
	router.ServeHTTP(rr, asRole(req, "CLIENT"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, fake.calls.Load())
}

func TestSuperuserUpdatesProductByID(t *testing.T) {
	fake := &fakeBackend{reply: `{"ok":true}`}
	srv := fake.server(t)
	router := newRouter(backend.NewClient(srv.URL, time.Second), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/products/a%20b", strings.NewReader(`{"price":5}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rr, asRole(req, "superuser"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/products/a%20b", fake.lastPath)
	assert.JSONEq(t, `{"price":5}`, fake.lastBody)
}

func TestUpstreamErrorStatusPassedThrough(t *testing.T) {
	fake := &fakeBackend{status: http.StatusUnprocessableEntity, reply: `{"message":"sku taken"}`}
	srv := fake.server(t)
	router := newRouter(backend.NewClient(srv.URL, time.Second), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/categories", strings.NewReader(`{"name":"Streaming"}`))
	router.ServeHTTP(rr, asRole(req, "ADMIN"))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.JSONEq(t, `{"message":"sku taken"}`, rr.Body.String())
}

func TestConnectionFailureBecomes500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()
	rec := &recorderStub{}
	router := newRouter(backend.NewClient(addr, time.Second), rec)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asRole(httptest.NewRequest(http.MethodGet, "/api/orders", nil), "CLIENT"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, []int{0}, rec.results)
}

func TestMissingBaseURLIsConfigurationError(t *testing.T) {
	router := newRouter(backend.NewClient("", time.Second), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asRole(httptest.NewRequest(http.MethodGet, "/api/wallet", nil), "CLIENT"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"message":"backend API is not configured"}`, rr.Body.String())
}

func TestCreateUserRespectsHierarchy(t *testing.T) {
	fake := &fakeBackend{status: http.StatusCreated, reply: `{"id":99}`}
	srv := fake.server(t)
	router := newRouter(backend.NewClient(srv.URL, time.Second), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"name":"Luis","email":"luis@example.com","role":"ADMIN"}`))
	router.ServeHTTP(rr, asRole(req, "DISTRIBUTOR"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, fake.calls.Load())

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"name":"Luis","email":"luis@example.com","role":"reseller"}`))
	router.ServeHTTP(rr, asRole(req, "DISTRIBUTOR"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"name":"Luis","email":"luis@example.com","role":"sustaquilla","phone":"555"}`))
	router.ServeHTTP(rr, asRole(req, "DISTRIBUTOR"))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"name":"Luis","email":"luis@example.com","role":"SUBTAQUILLA","phone":"555"}`, fake.lastBody)
}

func TestCreateUserValidation(t *testing.T) {
	fake := &fakeBackend{}
	srv := fake.server(t)
	router := newRouter(backend.NewClient(srv.URL, time.Second), nil)

	for _, body := range []string{``, `not json`, `{"name":"A","email":"nope","role":"CLIENT"}`, `{"email":"a@b.co","role":"CLIENT"}`, `{"name":"A","email":"a@b.co","role":"wizard"}`} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(body))
		router.ServeHTTP(rr, asRole(req, "ADMIN"))
		assert.Contains(t, []int{http.StatusBadRequest, http.StatusForbidden}, rr.Code, "body %q", body)
	}
	assert.Zero(t, fake.calls.Load())
}

func TestSubtaquillaCannotCreateUsers(t *testing.T) {
	fake := &fakeBackend{}
	srv := fake.server(t)
	router := newRouter(backend.NewClient(srv.URL, time.Second), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"name":"A","email":"a@b.co","role":"CLIENT"}`))
	router.ServeHTTP(rr, asRole(req, "SUBTAQUILLA"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCreateUserDropsCaseVariantRoleKeys(t *testing.T) {
	fake := &fakeBackend{status: http.StatusCreated, reply: `{"id":7}`}
	srv := fake.server(t)
	router := newRouter(backend.NewClient(srv.URL, time.Second), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"name":"x","email":"a@b.co","Role":"ADMIN","ROLE":"SUPERUSER","role":"CLIENT"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rr, asRole(req, "DISTRIBUTOR"))

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"name":"x","email":"a@b.co","role":"CLIENT"}`, fake.lastBody)
}

func TestOversizedBodyRejectedWithoutUpstreamCall(t *testing.T) {
	fake := &fakeBackend{}
	srv := fake.server(t)
	router := newRouter(backend.NewClient(srv.URL, time.Second), nil)

	big := `{"name":"` + strings.Repeat("a", maxRequestBody) + `"}`
	for _, path := range []string{"/api/products", "/api/users"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(big))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rr, asRole(req, "SUPERUSER"))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code, path)
		assert.JSONEq(t, `{"message":"request body too large"}`, rr.Body.String(), path)
	}
	assert.Zero(t, fake.calls.Load())
}

func TestFormEncodedBodyIsUnsupported(t *testing.T) {
	fake := &fakeBackend{}
	srv := fake.server(t)
	router := newRouter(backend.NewClient(srv.URL, time.Second), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("sku=netflix&qty=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(rr, asRole(req, "CLIENT"))

	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	assert.Zero(t, fake.calls.Load())
}
