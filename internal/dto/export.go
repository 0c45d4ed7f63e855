package dto

import "github.com/studver/matsel-api/internal/models"

// ExportTier selects which programme tier an LML export covers. Tiers 1-3
// export the bachelor years, master and premaster export whole programmes.
type ExportTier string

const (
	ExportTierBachelorY1 ExportTier = "BACHELOR_Y1"
	ExportTierBachelorY2 ExportTier = "BACHELOR_Y2"
	ExportTierBachelorY3 ExportTier = "BACHELOR_Y3"
	ExportTierMaster     ExportTier = "MASTER"
	ExportTierPremaster  ExportTier = "PREMASTER"
)

// Valid reports whether t is a known tier.
func (t ExportTier) Valid() bool {
	switch t {
	case ExportTierBachelorY1, ExportTierBachelorY2, ExportTierBachelorY3,
		ExportTierMaster, ExportTierPremaster:
		return true
	}
	return false
}

// BachelorYear returns the study year a bachelor tier covers, or 0 for the
// master/premaster tiers.
func (t ExportTier) BachelorYear() int {
	switch t {
	case ExportTierBachelorY1:
		return 1
	case ExportTierBachelorY2:
		return 2
	case ExportTierBachelorY3:
		return 3
	}
	return 0
}

// LMLExportQuery selects the tier and reporting window for an LML export.
type LMLExportQuery struct {
	Tier   ExportTier             `json:"tier"`
	Window models.ReportingWindow `json:"window"`
}

// BooklistQuery selects the reporting window for the booklist PDF.
type BooklistQuery struct {
	Window models.ReportingWindow `json:"window"`
}

// ExportFile is a rendered export ready for download.
type ExportFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Payload     []byte `json:"-"`
}
