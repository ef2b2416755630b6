package model

// Export notes.
const (
	NoteNeedsReview = "needs review"
	NoteOK          = "ok"
)

// ExportHeader is the header row of the results export.
var ExportHeader = []string{"id", "name", "score", "total", "note"}

// ExportRow is the flat projection of a student record used for export.
type ExportRow struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	Total int    `json:"total"`
	Note  string `json:"note"`
}
