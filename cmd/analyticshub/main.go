package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/buildinfo"
	"github.com/viviendahub/go-viviendahub/pkg/logging"
	"github.com/viviendahub/go-viviendahub/pkg/telemetry"
)

func main() {
	log.Info().Msg("starting the server...")
	config, err := initConfig()
	if err != nil {
		log.Fatal().
			Err(err).
			Msg("could not init config")
	}

	logging.SetupLogger(buildinfo.GitCommit, false, false)

	var sink store
	switch config.sink {
	case "bigquery":
		sink = newBigQueryStore(config.project, config.dataset, config.table)
	case "duckdb":
		duckdb, err := newDuckDBStore(config.duckdbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not open duckdb sink")
		}
		defer func() {
			_ = duckdb.close()
		}()
		sink = duckdb
	}
	http.HandleFunc("/", makeHandler(sink, config))

	log.Info().Str("port", config.port).Str("sink", config.sink).Msg("listening...")
	if err := http.ListenAndServe(":"+config.port, nil); err != nil {
		log.Fatal().
			Err(err).
			Msg("starting http server")
	}
}

type request struct {
	NodeID  string             `json:"node_id"`
	Metrics []telemetry.Metric `json:"metrics"`
}

func (r *request) check() error {
	if len(r.Metrics) == 0 {
		return errors.New("empty metrics")
	}

	if r.NodeID == "" {
		return errors.New("empty node id")
	}

	return nil
}

type store interface {
	insert(context.Context, request) error
}

func isAuthorized(headerKey string, allowedKeys []string) bool {
	for _, key := range allowedKeys {
		if headerKey == key {
			return true
		}
	}
	return false
}

// bearerKey extracts the api key from the Authorization header the node
// publisher sends.
func bearerKey(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func makeHandler(store store, c *config) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isAuthorized(bearerKey(r), c.apiKeys) {
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}

		if r.Method != "POST" {
			log.Error().Msg("request is not POST")
			rw.WriteHeader(http.StatusBadRequest)
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Msg("decoding the request")
			rw.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := req.check(); err != nil {
			log.Error().Err(err).Msg("request is invalid")
			rw.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := store.insert(r.Context(), req); err != nil {
			log.Error().Err(err).Msg("inserting")
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}

		rw.WriteHeader(http.StatusOK)
	}
}
