package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/viviendahub/go-viviendahub/pkg/userdir"
)

func TestAuthentication(t *testing.T) {
	t.Parallel()

	directory := userdir.NewStaticDirectory()
	landlord := userdir.User{ID: uuid.New(), Email: "luis@example.com", Name: "Luis Prado", Role: userdir.RoleLandlord}
	directory.Put(landlord, "landlord-token")

	var got *userdir.User
	handler := Authentication(directory)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer landlord-token")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, r)

		require.Equal(t, http.StatusOK, res.Code)
		require.NotNil(t, got)
		require.Equal(t, landlord.ID, got.ID)
	})

	t.Run("missing header", func(t *testing.T) {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest("GET", "/", nil))

		require.Equal(t, http.StatusUnauthorized, res.Code)
		require.Equal(t, "Bearer", res.Header().Get("WWW-Authenticate"))
	})

	t.Run("unknown token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer wrong-token")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, r)

		require.Equal(t, http.StatusUnauthorized, res.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "landlord-token")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, r)

		require.Equal(t, http.StatusUnauthorized, res.Code)
	})
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	directory := userdir.NewStaticDirectory()
	admin := userdir.User{ID: uuid.New(), Email: "root@example.com", Role: userdir.RoleAdmin}
	tenant := userdir.User{ID: uuid.New(), Email: "ana@example.com", Role: userdir.RoleTenant}
	directory.Put(admin, "admin-token")
	directory.Put(tenant, "tenant-token")

	handler := Authentication(directory)(RequireRole(userdir.RoleAdmin)(dummyHandler{}))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer admin-token")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, r)
	require.Equal(t, http.StatusOK, res.Code)

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer tenant-token")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, r)
	require.Equal(t, http.StatusForbidden, res.Code)
}
