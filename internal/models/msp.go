package models

import (
	"sort"
	"strings"
	"time"
)

// MSPLineType enumerates the three kinds of ledger entries a material
// selection process can record.
type MSPLineType string

const (
	MSPLineRequestMaterial       MSPLineType = "REQUEST_MATERIAL"
	MSPLineSetAvailableMaterials MSPLineType = "SET_AVAILABLE_MATERIALS"
	MSPLineApproveMaterial       MSPLineType = "APPROVE_MATERIAL"
)

// Valid reports whether t is one of the known line types.
func (t MSPLineType) Valid() bool {
	switch t {
	case MSPLineRequestMaterial, MSPLineSetAvailableMaterials, MSPLineApproveMaterial:
		return true
	}
	return false
}

// RequiresMaterials reports whether a line of this type must reference at
// least one material. A bare request is allowed; an offer or approval
// without materials is meaningless.
func (t MSPLineType) RequiresMaterials() bool {
	return t == MSPLineSetAvailableMaterials || t == MSPLineApproveMaterial
}

// ActorSide records which party authored a ledger entry.
type ActorSide string

const (
	SideBoecie  ActorSide = "BOECIE"
	SideTeacher ActorSide = "TEACHER"
)

// Valid reports whether s is a known side.
func (s ActorSide) Valid() bool {
	return s == SideBoecie || s == SideTeacher
}

// MSPStage is the derived workflow state of a process. It is never stored;
// every query recomputes it from the ledger.
type MSPStage string

const (
	StageAwaitingUpstream MSPStage = "AWAITING_UPSTREAM"
	StageAwaitingApproval MSPStage = "AWAITING_APPROVAL"
	StageApproved         MSPStage = "APPROVED"
)

// EmptyMSPSummary is the sentinel summary for a process without lines.
const EmptyMSPSummary = "Empty MSP"

// MSP is a material selection process: the open-ended negotiation about
// which materials a course requires. Its state lives entirely in the
// ordered MSPLine ledger.
type MSP struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	Mandatory  bool      `db:"mandatory" json:"mandatory"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	TeacherIDs []string  `db:"-" json:"teacher_ids,omitempty"`
}

// MSPLine is one immutable ledger entry. Lines are only ever appended;
// (Time, Seq) defines the ledger order, with Seq breaking same-instant ties.
type MSPLine struct {
	ID            string      `db:"id" json:"id"`
	MSPID         string      `db:"msp_id" json:"msp_id"`
	Seq           int         `db:"seq" json:"seq"`
	Type          MSPLineType `db:"type" json:"type"`
	Comment       *string     `db:"comment" json:"comment,omitempty"`
	Time          time.Time   `db:"time" json:"time"`
	CreatedBy     *string     `db:"created_by" json:"created_by,omitempty"`
	CreatedBySide ActorSide   `db:"created_by_side" json:"created_by_side"`
	Materials     []Material  `db:"-" json:"materials"`
}

// MSPFilter constrains process listings.
type MSPFilter struct {
	CourseID  string
	Mandatory *bool
	Page      int
	PageSize  int
}

// SortMSPLines orders a ledger ascending by (time, seq). Repositories
// return lines in this order already; the helper keeps in-memory callers
// honest.
func SortMSPLines(lines []MSPLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Time.Equal(lines[j].Time) {
			return lines[i].Seq < lines[j].Seq
		}
		return lines[i].Time.Before(lines[j].Time)
	})
}

// LastMSPLine returns the most recent ledger entry, or nil for an empty
// ledger. Lines must be in ledger order.
func LastMSPLine(lines []MSPLine) *MSPLine {
	if len(lines) == 0 {
		return nil
	}
	return &lines[len(lines)-1]
}

// MSPResolved reports whether the process is complete: the last ledger
// entry is an approval. An empty ledger is not resolved.
func MSPResolved(lines []MSPLine) bool {
	last := LastMSPLine(lines)
	return last != nil && last.Type == MSPLineApproveMaterial
}

// MSPNeedsAttention reports whether options are on the table waiting for a
// sign-off: the last entry lists available materials.
func MSPNeedsAttention(lines []MSPLine) bool {
	last := LastMSPLine(lines)
	return last != nil && last.Type == MSPLineSetAvailableMaterials
}

// MSPStageOf derives the workflow stage from the ledger.
func MSPStageOf(lines []MSPLine) MSPStage {
	last := LastMSPLine(lines)
	if last == nil {
		return StageAwaitingUpstream
	}
	switch last.Type {
	case MSPLineApproveMaterial:
		return StageApproved
	case MSPLineSetAvailableMaterials:
		return StageAwaitingApproval
	default:
		return StageAwaitingUpstream
	}
}

// LastAvailableMaterials returns the materials of the most recent
// SET_AVAILABLE_MATERIALS entry, or an empty slice when none was recorded.
// It pre-populates approval actions.
func LastAvailableMaterials(lines []MSPLine) []Material {
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Type == MSPLineSetAvailableMaterials {
			out := make([]Material, len(lines[i].Materials))
			copy(out, lines[i].Materials)
			return out
		}
	}
	return []Material{}
}

// MSPSummary renders a one-line description of the process for list views:
// the material names referenced by the last ledger entry.
func MSPSummary(lines []MSPLine) string {
	last := LastMSPLine(lines)
	if last == nil {
		return EmptyMSPSummary
	}
	names := make([]string, 0, len(last.Materials))
	for _, material := range last.Materials {
		names = append(names, material.Name)
	}
	return strings.Join(names, ", ")
}

// ApprovedMaterials returns the materials finalized by a resolved process,
// or an empty slice while the process is still open. The export only emits
// rows for these.
func ApprovedMaterials(lines []MSPLine) []Material {
	if !MSPResolved(lines) {
		return []Material{}
	}
	last := LastMSPLine(lines)
	out := make([]Material, len(last.Materials))
	copy(out, last.Materials)
	return out
}
