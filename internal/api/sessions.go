package api

import (
	"context"
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/streamgear/internal/api/models"
	"github.com/smazurov/streamgear/internal/assets"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List Sessions",
		Description: "List transcoding sessions and their state",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SessionListResponse, error) {
		return &models.SessionListResponse{
			Body: models.SessionListData{Sessions: s.sessions.List()},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{id}",
		Summary:     "Get Session",
		Description: "Get the state of one session",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.SessionInput) (*models.SessionResponse, error) {
		sess, ok := s.sessions.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("session not found")
		}
		return &models.SessionResponse{Body: sess.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session-manifest",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{id}/manifest",
		Summary:     "Get Manifest",
		Description: "Summarize the DASH manifest a session has written so far",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 422},
	}, func(_ context.Context, input *models.SessionInput) (*models.ManifestResponse, error) {
		sess, ok := s.sessions.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("session not found")
		}

		manifest := sess.ManifestPath()
		mpd, err := assets.ReadManifest(manifest)
		switch {
		case errors.Is(err, assets.ErrNoManifest):
			return nil, huma.Error404NotFound("manifest not written yet")
		case err != nil:
			return nil, huma.Error422UnprocessableEntity("manifest is not valid", err)
		}

		sets, _, _ := mpd.Counts()
		return &models.ManifestResponse{
			Body: models.ManifestData{
				Path:            manifest,
				URL:             s.assetURL(manifest),
				Live:            mpd.Live(),
				AdaptationSets:  sets,
				Representations: mpd.Metadata(),
			},
		}, nil
	})
}

// assetURL maps a file under the served asset directory to its URL, or
// returns "" when the file is not served.
func (s *Server) assetURL(file string) string {
	if s.options.AssetDir == "" {
		return ""
	}
	root, err := filepath.Abs(s.options.AssetDir)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return path.Join(AssetsPrefix, filepath.ToSlash(rel))
}
