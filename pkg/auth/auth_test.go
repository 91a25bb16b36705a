package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/eventtimings/pkg/comm"
)

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		token  string
		path   string
		header string
		want   int
	}{
		{name: "disabled", token: "", path: "/v1/barrier", want: http.StatusNoContent},
		{name: "valid token", token: "s3cret", path: "/v1/barrier", header: "Bearer s3cret", want: http.StatusNoContent},
		{name: "missing token", token: "s3cret", path: "/v1/barrier", want: http.StatusUnauthorized},
		{name: "wrong token", token: "s3cret", path: "/v1/barrier", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", token: "s3cret", path: "/v1/barrier", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "public path", token: "s3cret", path: "/health", want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Middleware(tt.token, "/health")(ok)
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(HeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestTransportAddsToken(t *testing.T) {
	srv := httptest.NewServer(Middleware("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Token: "s3cret"}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubWithToken(t *testing.T) {
	hub, err := comm.NewHub(1, nil)
	require.NoError(t, err)
	router := mux.NewRouter()
	router.Use(Middleware("s3cret", "/health"))
	hub.RegisterRoutes(router)

	srv := httptest.NewServer(router)
	defer srv.Close()
	defer hub.Close()

	ctx := context.Background()
	authorized, err := comm.Dial(ctx, srv.URL, 0, 1, comm.WithHTTPClient(&http.Client{
		Transport: &Transport{Token: "s3cret"},
	}))
	require.NoError(t, err)
	assert.NoError(t, authorized.Barrier())

	// health is public, so joining works but every operation is refused
	anonymous, err := comm.Dial(ctx, srv.URL, 0, 1)
	require.NoError(t, err)
	err = anonymous.Barrier()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
