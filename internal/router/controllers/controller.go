// Package controllers holds the HTTP controllers of the API. Controllers
// decode requests, call the engines and serialize the results; everything
// else (authentication, rate limits, tracing) happens in the middlewares.
package controllers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/router/middlewares"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
)

var bodyJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes caps request bodies; contract payloads are small JSON maps.
const maxBodyBytes = 1 << 20

// requestUser returns the account the Authentication middleware attached.
func requestUser(r *http.Request) (*userdir.User, bool) {
	return middlewares.UserFromContext(r.Context())
}

// pathVar returns the named path variable.
func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// pathUUID parses the named path variable as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.Validation("%s is not a valid id", name)
	}
	return id, nil
}

// decodeBody decodes the JSON request body into v. An empty body leaves v
// zero valued; endpoints validate required fields themselves.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := bodyJSON.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return errors.Validation("the request body is not valid JSON: %s", err)
	}
	return nil
}

// requestMeta extracts the transport context recorded in history entries.
func requestMeta(r *http.Request) contracts.RequestMeta {
	meta := contracts.RequestMeta{
		UserAgent: r.UserAgent(),
		SessionID: r.Header.Get("X-Session-ID"),
	}
	if ip, ok := middlewares.IPFromContext(r.Context()); ok {
		meta.IP = ip
	} else {
		meta.IP = r.RemoteAddr
	}
	return meta
}

// userAndID resolves the authenticated account and the {id} path variable.
func userAndID(r *http.Request) (*userdir.User, uuid.UUID, error) {
	user, ok := requestUser(r)
	if !ok {
		return nil, uuid.UUID{}, errors.PermissionDenied("authentication is required")
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return nil, uuid.UUID{}, err
	}
	return user, id, nil
}

// queryInt parses an integer query parameter, returning def when absent or
// malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
