// Package extraction talks to the external AI service that proposes plan
// geometry from document text. The service is treated as fallible: every
// call is bounded by a hard timeout and callers fall back to heuristic
// geometry instead of failing.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

// Document is the slice of a project document the extractor needs.
type Document struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DocType     string    `json:"type"`
	TextContent string    `json:"text_content"`
}

// GeometryPayload is the semantic geometry proposed by the extractor.
type GeometryPayload struct {
	SiteBoundary         []models.PointJSON           `json:"site_boundary"`
	ReferencePoints      []models.ReferencePoint      `json:"reference_points"`
	SiteWidth            float64                      `json:"site_width"`
	SiteHeight           float64                      `json:"site_height"`
	Units                string                       `json:"units"`
	ScaleFactor          *float64                     `json:"scale_factor"`
	NoGoZones            []models.NoGoZone            `json:"no_go_zones"`
	KeyFeatures          []string                     `json:"key_features"`
	PanelMapRequirements *models.PanelMapRequirements `json:"panel_map_requirements"`
}

// Extractor proposes plan geometry for a set of documents.
type Extractor interface {
	ExtractGeometry(ctx context.Context, projectID uuid.UUID, docs []Document) (*GeometryPayload, float64, error)
}

type extractRequest struct {
	ProjectID uuid.UUID  `json:"project_id"`
	Documents []Document `json:"documents"`
}

type extractResponse struct {
	Success    bool             `json:"success"`
	Geometry   *GeometryPayload `json:"geometry"`
	Confidence float64          `json:"confidence"`
	Error      string           `json:"error,omitempty"`
}

// HTTPClient calls the extraction service over HTTP/JSON.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient builds a client with the configured hard timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

var _ Extractor = (*HTTPClient)(nil)

// ExtractGeometry posts the documents and decodes the proposed geometry.
// Failures come back as CodeUnavailable so the caller can fall back.
func (c *HTTPClient) ExtractGeometry(ctx context.Context, projectID uuid.UUID, docs []Document) (*GeometryPayload, float64, error) {
	if c.baseURL == "" {
		return nil, 0, appErr.New(appErr.CodeUnavailable, "extraction service not configured")
	}

	payload := extractRequest{ProjectID: projectID, Documents: docs}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "marshal extraction request failed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract-geometry", bytes.NewReader(body))
	if err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "build extraction request failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeUnavailable, "extraction service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, 0, appErr.New(appErr.CodeUnavailable,
			fmt.Sprintf("extraction service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeUnavailable, "decode extraction response failed")
	}
	if !out.Success || out.Geometry == nil {
		msg := out.Error
		if msg == "" {
			msg = "extraction service declined"
		}
		return nil, 0, appErr.New(appErr.CodeUnavailable, msg)
	}
	return out.Geometry, out.Confidence, nil
}
