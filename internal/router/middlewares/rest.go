package middlewares

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/pkg/errors"
)

var restJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteJSON serializes v into the response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := restJSON.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response body")
	}
}

// WriteError serializes err as a ServiceError body with the status that
// matches its code.
func WriteError(w http.ResponseWriter, err error) {
	body := errors.From(err)
	WriteJSON(w, errors.StatusOf(body.Code), body)
}
