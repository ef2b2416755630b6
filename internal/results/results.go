// Package results computes statistics over graded records and orders them.
package results

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/pavelanni/examgrader/internal/model"
)

// SortKey selects the record field to order by.
type SortKey string

const (
	ByStudentID   SortKey = "student_id"
	ByStudentName SortKey = "student_name"
	ByScore       SortKey = "score"
	// ByNewest orders by grading time: Asc is store order, Desc newest first.
	ByNewest      SortKey = "newest"
)

// Direction is the sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseSortKey validates a sort key from user input. Empty means ByStudentID.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return ByStudentID, nil
	case ByStudentID, ByStudentName, ByScore, ByNewest:
		return k, nil
	}
	return "", &model.ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown sort key %q", s)}
}

// ParseDirection validates a direction from user input. Empty means Asc.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return Asc, nil
	case Asc, Desc:
		return d, nil
	}
	return "", &model.ValidationError{Field: "dir", Reason: fmt.Sprintf("unknown direction %q", s)}
}

// Stats summarizes a record list. Average and Max are nil for an empty list.
type Stats struct {
	Count       int      `json:"count"`
	Average     *float64 `json:"average"`
	Max         *int     `json:"max"`
	ReviewCount int      `json:"reviewCount"`
}

// Average returns the mean score, or NaN for an empty list.
func Average(records []model.StudentRecord) float64 {
	if len(records) == 0 {
		return math.NaN()
	}
	sum := 0
	for _, r := range records {
		sum += r.Score
	}
	return float64(sum) / float64(len(records))
}

// Max returns the highest score. ok is false for an empty list.
func Max(records []model.StudentRecord) (best int, ok bool) {
	for i, r := range records {
		if i == 0 || r.Score > best {
			best = r.Score
		}
	}
	return best, len(records) > 0
}

// Summarize computes Stats for records.
func Summarize(records []model.StudentRecord) Stats {
	st := Stats{Count: len(records), ReviewCount: ReviewCount(records)}
	if avg := Average(records); !math.IsNaN(avg) {
		st.Average = &avg
	}
	if m, ok := Max(records); ok {
		st.Max = &m
	}
	return st
}

// NeedsReview returns the records with at least one anomalous answer, in order.
func NeedsReview(records []model.StudentRecord) []model.StudentRecord {
	out := []model.StudentRecord{}
	for _, r := range records {
		if r.HasAnomaly() {
			out = append(out, r)
		}
	}
	return out
}

// ReviewCount is len(NeedsReview(records)).
func ReviewCount(records []model.StudentRecord) int {
	n := 0
	for _, r := range records {
		if r.HasAnomaly() {
			n++
		}
	}
	return n
}

// NewestFirst returns a copy of records with the most recently graded first.
func NewestFirst(records []model.StudentRecord) []model.StudentRecord {
	out := slices.Clone(records)
	slices.Reverse(out)
	return out
}

// SortBy returns a sorted copy of records. The sort is stable, so records that
// compare equal keep their relative order in both directions.
func SortBy(records []model.StudentRecord, key SortKey, dir Direction) []model.StudentRecord {
	if key == ByNewest {
		if dir == Desc {
			return NewestFirst(records)
		}
		return slices.Clone(records)
	}
	out := slices.Clone(records)

	var cmp func(a, b model.StudentRecord) int
	switch key {
	case ByStudentName:
		col := collate.New(language.Thai)
		cmp = func(a, b model.StudentRecord) int { return col.CompareString(a.StudentName, b.StudentName) }
	case ByScore:
		cmp = func(a, b model.StudentRecord) int { return a.Score - b.Score }
	default:
		cmp = func(a, b model.StudentRecord) int { return CompareIDs(a.StudentID, b.StudentID) }
	}
	if dir == Desc {
		asc := cmp
		cmp = func(a, b model.StudentRecord) int { return asc(b, a) }
	}
	slices.SortStableFunc(out, cmp)
	return out
}

// CompareIDs orders student ids naturally: ids with the same non-digit prefix
// followed by a parseable number compare numerically ("S2" < "S10"); anything
// else compares as plain strings.
func CompareIDs(a, b string) int {
	pa, na, okA := splitID(a)
	pb, nb, okB := splitID(b)
	if okA && okB && pa == pb {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
	}
	return strings.Compare(a, b)
}

func splitID(id string) (prefix string, n uint64, ok bool) {
	i := strings.IndexFunc(id, unicode.IsDigit)
	if i < 0 {
		return id, 0, false
	}
	n, err := strconv.ParseUint(id[i:], 10, 64)
	if err != nil {
		return id, 0, false
	}
	return id[:i], n, true
}
