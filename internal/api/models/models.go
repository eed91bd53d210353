// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/smazurov/streamgear/internal/assets"
	"github.com/smazurov/streamgear/internal/streamgear"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.21.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Session models
type SessionListData struct {
	Sessions []streamgear.Status `json:"sessions" doc:"Registered sessions"`
}

type SessionListResponse struct {
	Body SessionListData
}

type SessionResponse struct {
	Body streamgear.Status
}

type SessionInput struct {
	ID string `path:"id" maxLength:"64" example:"4f1c2a9b" doc:"Session identifier"`
}

// Manifest models
type ManifestData struct {
	Path            string                      `json:"path" doc:"Manifest path on disk"`
	URL             string                      `json:"url" example:"/dash/dash_4f1c2a9b.mpd" doc:"Manifest URL for players"`
	Live            bool                        `json:"live" doc:"Whether the manifest is dynamic"`
	AdaptationSets  int                         `json:"adaptation_sets" doc:"Number of adaptation sets"`
	Representations []assets.RepresentationMeta `json:"representations" doc:"Representations in the manifest"`
}

type ManifestResponse struct {
	Body ManifestData
}
