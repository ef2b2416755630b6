package grading

import (
	"strings"

	"github.com/pavelanni/examgrader/internal/model"
)

// Anomaly reasons assigned during reconciliation.
const (
	ReasonUnanswered = "no answer returned"
	ReasonDuplicate  = "duplicate question number"
)

// ReconcileOptions tunes reconciliation.
type ReconcileOptions struct {
	// FillUnanswered appends an explicit unanswered result for every key question
	// missing from the extraction.
	FillUnanswered bool
}

// Reconciliation is the scored outcome of one answer sheet.
type Reconciliation struct {
	Results []model.QuestionResult
	Score   int
}

// Reconcile compares extracted answers against the key. It is pure and cannot fail.
//
// A question number unknown to the key gets an empty correct answer and can never
// be correct. A repeated question number keeps its first occurrence; later ones are
// flagged anomalous so the score never exceeds the number of key questions.
func Reconcile(cfg model.MasterConfig, extracted []model.ExtractedAnswer, opts ReconcileOptions) Reconciliation {
	out := Reconciliation{Results: make([]model.QuestionResult, 0, len(extracted))}
	seen := make(map[int]bool, len(extracted))

	for _, ea := range extracted {
		res := model.QuestionResult{
			QuestionNumber: ea.QuestionNumber,
			StudentAnswer:  strings.TrimSpace(ea.StudentAnswer),
			CorrectAnswer:  strings.TrimSpace(cfg.CorrectAnswers[ea.QuestionNumber]),
			IsAnomalous:    ea.IsAnomalous,
			AnomalyReason:  ea.AnomalyReason,
		}
		if seen[ea.QuestionNumber] && !res.IsAnomalous {
			res.IsAnomalous = true
			res.AnomalyReason = ReasonDuplicate
		}
		seen[ea.QuestionNumber] = true

		res.IsCorrect = isCorrect(res)
		if res.IsCorrect {
			out.Score++
		}
		out.Results = append(out.Results, res)
	}

	if opts.FillUnanswered {
		for _, q := range cfg.QuestionNumbers() {
			if seen[q] {
				continue
			}
			out.Results = append(out.Results, model.QuestionResult{
				QuestionNumber: q,
				CorrectAnswer:  strings.TrimSpace(cfg.CorrectAnswers[q]),
				AnomalyReason:  ReasonUnanswered,
			})
		}
	}
	return out
}

func isCorrect(r model.QuestionResult) bool {
	return !r.IsAnomalous && r.StudentAnswer != "" && r.StudentAnswer == r.CorrectAnswer
}
