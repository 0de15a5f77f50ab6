package main

import (
	"encoding/json"
	"os"

	"github.com/omeid/uconfig"
)

// configFilename is the filename of the config file automatically loaded.
var configFilename = "config.json"

type config struct {
	HTTP struct {
		Port string `default:"8080"`
	}
	Metrics struct {
		Port string `default:"9090"`
	}
	Log struct {
		Human bool `default:"false"`
		Debug bool `default:"false"`
	}
	DB struct {
		Path string `default:"viviendahub.db"`
	}
	Users struct {
		// DirectoryURL points at the accounts service. Empty runs an
		// in-process static directory, for development only.
		DirectoryURL string `default:""`
	}
	Properties struct {
		// CatalogURL points at the property listings service. Empty runs
		// an in-process static catalog, for development only.
		CatalogURL string `default:""`
	}
	PDF struct {
		RenderURL string `default:""`
	}
	Invitations struct {
		TTLDays     int `default:"7"`
		MaxAttempts int `default:"3"`
	}
	Channels struct {
		Email struct {
			Host     string `default:""`
			Port     int    `default:"587"`
			Username string `default:""`
			Password string `default:""`
			From     string `default:"no-reply@viviendahub.com"`
		}
		SMS struct {
			BaseURL    string `default:""`
			AccountSID string `default:""`
			AuthToken  string `default:""`
			From       string `default:""`
		}
		Push struct {
			URL       string `default:""`
			ServerKey string `default:""`
		}
		Webhook struct {
			URL         string `default:""`
			BearerToken string `default:""`
		}
	}
	Telemetry struct {
		NodeID           string `default:""`
		DatabasePath     string `default:"telemetry.db"`
		ExternalEndpoint string `default:""`
		APIKey           string `default:""`
		PublishInterval  string `default:"1m"`
		StatsInterval    string `default:"15m"`
	}
	Backup struct {
		Enabled           bool   `default:"false"`
		Dir               string `default:"backups"`
		Frequency         string `default:"24h"`
		EnableVacuum      bool   `default:"true"`
		EnableCompression bool   `default:"true"`
		Pruning           struct {
			Enabled    bool `default:"true"`
			KeepAmount int  `default:"5"`
		}
	}
}

func setupConfig() *config {
	conf := &config{}
	confFiles := uconfig.Files{
		{configFilename, json.Unmarshal},
	}

	c, err := uconfig.Classic(&conf, confFiles)
	if err != nil {
		c.Usage()
		os.Exit(1)
	}

	return conf
}
