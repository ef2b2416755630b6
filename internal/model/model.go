package model

import (
	"sort"
	"time"
)

// RecordStatus represents the processing state of a student record.
type RecordStatus string

const (
	StatusPending    RecordStatus = "pending"
	StatusProcessing RecordStatus = "processing"
	StatusCompleted  RecordStatus = "completed"
	StatusError      RecordStatus = "error"
)

// GridMeta describes the answer grid detected on the master key.
type GridMeta struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// MasterConfig holds the correct answer for every question on the key.
type MasterConfig struct {
	CorrectAnswers map[int]string `json:"correctAnswers"`
	GridMeta       GridMeta       `json:"gridMeta"`
}

// QuestionNumbers returns the key's question numbers in ascending order.
func (c MasterConfig) QuestionNumbers() []int {
	nums := make([]int, 0, len(c.CorrectAnswers))
	for n := range c.CorrectAnswers {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// QuestionResult is the reconciled outcome of one question on one sheet.
type QuestionResult struct {
	QuestionNumber int    `json:"questionNumber"`
	StudentAnswer  string `json:"studentAnswer"`
	CorrectAnswer  string `json:"correctAnswer"`
	IsCorrect      bool   `json:"isCorrect"`
	IsAnomalous    bool   `json:"isAnomalous"`
	AnomalyReason  string `json:"anomalyReason,omitempty"`
}

// StudentRecord is one graded answer sheet. Records are never mutated after creation.
type StudentRecord struct {
	ID             string           `json:"id"`
	StudentName    string           `json:"studentName"`
	StudentID      string           `json:"studentId"`
	Score          int              `json:"score"`
	TotalQuestions int              `json:"totalQuestions"`
	Results        []QuestionResult `json:"results"`
	ImagePreview   string           `json:"imagePreview,omitempty"`
	Status         RecordStatus     `json:"status"`
}

// HasAnomaly reports whether any result on the record needs manual review.
func (r StudentRecord) HasAnomaly() bool {
	for _, res := range r.Results {
		if res.IsAnomalous {
			return true
		}
	}
	return false
}

// ExamSession is one subject/grade's master key plus all graded student records.
type ExamSession struct {
	ID             string          `json:"id"`
	SubjectName    string          `json:"subjectName"`
	GradeLevel     string          `json:"gradeLevel"`
	MasterConfig   *MasterConfig   `json:"masterConfig"`
	StudentRecords []StudentRecord `json:"studentRecords"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// KeyAnswer is one (question, letter) pair read from a master key image.
type KeyAnswer struct {
	QuestionNumber int
	Answer         string
}

// KeyExtraction is the recognizer's validated output for a master key image.
type KeyExtraction struct {
	Answers []KeyAnswer
}

// ExtractedAnswer is one answer read from a student sheet, before reconciliation.
type ExtractedAnswer struct {
	QuestionNumber int
	StudentAnswer  string
	IsAnomalous    bool
	AnomalyReason  string
}

// SheetExtraction is the recognizer's validated output for a student sheet.
type SheetExtraction struct {
	StudentName string
	StudentID   string
	Results     []ExtractedAnswer
}

// Progress is emitted once per batch item before the item is processed.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// GradeConfig holds runtime grading parameters set via CLI flags.
type GradeConfig struct {
	Alphabet       string // answer alphabet for prompts (thai, latin)
	Lang           string // UI language for sentinel values (en, th)
	FillUnanswered bool   // synthesize results for key questions the recognizer skipped
	PreviewDir     string // empty disables sheet preview storage
}
