package dto

import "github.com/studver/matsel-api/internal/models"

// CreateMSPRequest starts a new material selection process for a course.
// The initial request line is recorded in the same call, mirroring how the
// association opens a process by asking for material.
type CreateMSPRequest struct {
	CourseID   string   `json:"course_id" validate:"required"`
	Mandatory  *bool    `json:"mandatory"`
	TeacherIDs []string `json:"teacher_ids"`
	Comment    string   `json:"comment"`
	Materials  []string `json:"materials"`
}

// AppendLineRequest adds one ledger entry to a process. ExpectedLastLineID,
// when set, fences the append: the entry is rejected when another actor
// appended in the meantime.
type AppendLineRequest struct {
	Type               models.MSPLineType `json:"type" validate:"required"`
	Materials          []string           `json:"materials"`
	Comment            string             `json:"comment"`
	ExpectedLastLineID *string            `json:"expected_last_line_id"`
}

// MSPDetail is the full view of a process: the ledger plus every derived
// state the screens need.
type MSPDetail struct {
	MSP                    models.MSP        `json:"msp"`
	Lines                  []models.MSPLine  `json:"lines"`
	Stage                  models.MSPStage   `json:"stage"`
	Resolved               bool              `json:"resolved"`
	NeedsAttention         bool              `json:"needs_attention"`
	Summary                string            `json:"summary"`
	LastAvailableMaterials []models.Material `json:"last_available_materials"`
}

// MSPListItem is the compact listing row with derived state.
type MSPListItem struct {
	MSP      models.MSP      `json:"msp"`
	Stage    models.MSPStage `json:"stage"`
	Resolved bool            `json:"resolved"`
	Summary  string          `json:"summary"`
}
