package main

import (
	"errors"
	"os"
	"strings"
)

type config struct {
	port    string
	sink    string
	apiKeys []string

	// bigquery sink
	project string
	dataset string
	table   string

	// duckdb sink
	duckdbPath string
}

func initConfig() (*config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080" // default
	}

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		return nil, errors.New("empty API_KEY env")
	}

	sink := os.Getenv("SINK")
	if sink == "" {
		sink = "duckdb" // default
	}

	conf := &config{
		port:    port,
		sink:    sink,
		apiKeys: strings.Split(apiKey, ","),
	}

	switch sink {
	case "bigquery":
		conf.project = os.Getenv("GCP_PROJECT")
		if conf.project == "" {
			return nil, errors.New("empty GCP_PROJECT env")
		}
		conf.dataset = os.Getenv("BIGQUERY_DATASET")
		if conf.dataset == "" {
			return nil, errors.New("empty BIGQUERY_DATASET env")
		}
		conf.table = os.Getenv("BIGQUERY_TABLE")
		if conf.table == "" {
			return nil, errors.New("empty BIGQUERY_TABLE env")
		}
	case "duckdb":
		conf.duckdbPath = os.Getenv("DUCKDB_PATH")
		if conf.duckdbPath == "" {
			conf.duckdbPath = "analytics.duckdb" // default
		}
	default:
		return nil, errors.New("SINK must be bigquery or duckdb")
	}

	return conf, nil
}
