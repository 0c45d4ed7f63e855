package models

import "time"

// MaterialKind discriminates the closed set of study material editions.
// The legacy system modelled these as polymorphic subclasses; a single row
// with a kind tag and kind-specific nullable columns carries the same data.
type MaterialKind string

const (
	MaterialBook    MaterialKind = "BOOK"
	MaterialArticle MaterialKind = "ARTICLE"
	MaterialOther   MaterialKind = "OTHER"
)

// Valid reports whether k is a known material kind.
func (k MaterialKind) Valid() bool {
	switch k {
	case MaterialBook, MaterialArticle, MaterialOther:
		return true
	}
	return false
}

// Material is one edition of a study material. Books carry an ISBN and
// edition, scientific articles a DOI and URL; other materials only a name.
type Material struct {
	ID               string       `db:"id" json:"id"`
	Kind             MaterialKind `db:"kind" json:"kind"`
	Name             string       `db:"name" json:"name"`
	ISBN             *string      `db:"isbn" json:"isbn,omitempty"`
	DOI              *string      `db:"doi" json:"doi,omitempty"`
	Author           *string      `db:"author" json:"author,omitempty"`
	Edition          *string      `db:"edition" json:"edition,omitempty"`
	YearOfPublishing *int         `db:"year_of_publishing" json:"year_of_publishing,omitempty"`
	ImageURL         *string      `db:"image_url" json:"image_url,omitempty"`
	URL              *string      `db:"url" json:"url,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// Label renders the display string used in timelines and exports.
func (m Material) Label() string {
	switch m.Kind {
	case MaterialBook:
		if m.ISBN != nil && *m.ISBN != "" {
			return *m.ISBN + ": " + m.Name
		}
	case MaterialArticle:
		if m.DOI != nil && *m.DOI != "" {
			return m.Name + " (" + *m.DOI + ")"
		}
	}
	return m.Name
}

// MaterialFilter constrains material listings.
type MaterialFilter struct {
	Kind      MaterialKind
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
