package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	appErr "github.com/panelproof/engine/pkg/errors"
)

// PanelLayout is the single mutable layout row per project: the
// user-drawn arrangement of installed panels, patches, and destructive
// tests in layout-space coordinates. Version implements optimistic
// concurrency on read-modify-write.
type PanelLayout struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID        uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null" json:"project_id" validate:"required"`
	Panels           datatypes.JSON `gorm:"type:jsonb" json:"panels"`
	Patches          datatypes.JSON `gorm:"type:jsonb" json:"patches"`
	DestructiveTests datatypes.JSON `gorm:"type:jsonb" json:"destructive_tests"`
	Version          int            `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Panel is an installed material panel.
type Panel struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	Shape    string  `json:"shape"`
}

// Patch is a circular repair patch, approximated as a radius-derived
// square for boundary checks.
type Patch struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// DestructiveTest marks a destructive test cut-out.
type DestructiveTest struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label,omitempty"`
}

// LayoutData is the decoded item arrays of a PanelLayout row.
type LayoutData struct {
	Panels           []Panel           `json:"panels"`
	Patches          []Patch           `json:"patches"`
	DestructiveTests []DestructiveTest `json:"destructive_tests"`
}

// TotalItems counts every panel, patch, and destructive test.
func (d *LayoutData) TotalItems() int {
	return len(d.Panels) + len(d.Patches) + len(d.DestructiveTests)
}

// Decode unmarshals the JSONB item columns.
func (l *PanelLayout) Decode() (*LayoutData, error) {
	var d LayoutData
	if len(l.Panels) > 0 {
		if err := json.Unmarshal(l.Panels, &d.Panels); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "decode panels failed")
		}
	}
	if len(l.Patches) > 0 {
		if err := json.Unmarshal(l.Patches, &d.Patches); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "decode patches failed")
		}
	}
	if len(l.DestructiveTests) > 0 {
		if err := json.Unmarshal(l.DestructiveTests, &d.DestructiveTests); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "decode destructive tests failed")
		}
	}
	return &d, nil
}

// Encode writes item arrays back into the JSONB columns.
func (l *PanelLayout) Encode(d *LayoutData) error {
	panels, err := json.Marshal(d.Panels)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "encode panels failed")
	}
	patches, err := json.Marshal(d.Patches)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "encode patches failed")
	}
	tests, err := json.Marshal(d.DestructiveTests)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "encode destructive tests failed")
	}
	l.Panels = datatypes.JSON(panels)
	l.Patches = datatypes.JSON(patches)
	l.DestructiveTests = datatypes.JSON(tests)
	return nil
}

// Snapshot serializes the full layout state for operation audit records.
func (l *PanelLayout) Snapshot() (datatypes.JSON, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "snapshot layout failed")
	}
	return datatypes.JSON(b), nil
}
