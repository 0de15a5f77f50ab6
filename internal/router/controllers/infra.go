package controllers

import (
	"net/http"

	"github.com/viviendahub/go-viviendahub/buildinfo"
	"github.com/viviendahub/go-viviendahub/internal/router/middlewares"
)

// InfraController handles the service info endpoints.
type InfraController struct{}

// NewInfraController creates a new InfraController.
func NewInfraController() *InfraController {
	return &InfraController{}
}

// VersionResponse is the response of the version endpoint.
type VersionResponse struct {
	Version       string `json:"version"`
	GitCommit     string `json:"git_commit"`
	GitBranch     string `json:"git_branch"`
	GitState      string `json:"git_state"`
	GitSummary    string `json:"git_summary"`
	BuildDate     string `json:"build_date"`
	BinaryVersion string `json:"binary_version"`
}

// Version handles GET /api/v1/version.
func (c *InfraController) Version(rw http.ResponseWriter, _ *http.Request) {
	summary := buildinfo.GetSummary()
	middlewares.WriteJSON(rw, http.StatusOK, VersionResponse{
		Version:       summary.Version,
		GitCommit:     summary.GitCommit,
		GitBranch:     summary.GitBranch,
		GitState:      summary.GitState,
		GitSummary:    summary.GitSummary,
		BuildDate:     summary.BuildDate,
		BinaryVersion: summary.Version,
	})
}
