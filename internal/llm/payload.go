package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examgrader/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("question number %q: %w", s, err)
		}
		*n = flexInt(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if f != float64(int(f)) {
		return fmt.Errorf("question number %v is not an integer", f)
	}
	*n = flexInt(f)
	return nil
}

// flexBool accepts a JSON boolean, "true"/"false" strings, or 0/1. An empty
// value is rejected rather than read as false.
type flexBool bool

func (v *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(bytes.TrimSpace(b)), `"`)) {
	case "true", "1", "yes":
		*v = true
	case "false", "0", "no":
		*v = false
	default:
		return fmt.Errorf("invalid boolean %s", b)
	}
	return nil
}

type keyPayload struct {
	Answers []keyAnswerPayload `json:"answers" validate:"required,dive"`
}

type keyAnswerPayload struct {
	QuestionNumber *flexInt `json:"questionNumber" validate:"required,gt=0"`
	Answer         *string  `json:"answer" validate:"required"`
}

type sheetPayload struct {
	StudentName *string              `json:"studentName" validate:"required"`
	StudentID   *string              `json:"studentId" validate:"required"`
	Results     []sheetResultPayload `json:"results" validate:"required,dive"`
}

type sheetResultPayload struct {
	QuestionNumber *flexInt  `json:"questionNumber" validate:"required,gt=0"`
	StudentAnswer  *string   `json:"studentAnswer" validate:"required"`
	IsAnomalous    *flexBool `json:"isAnomalous" validate:"required"`
	AnomalyReason  *string   `json:"anomalyReason"`
}

// decodeMasterKey parses and validates a raw master key response.
func decodeMasterKey(raw string) (model.KeyExtraction, error) {
	var p keyPayload
	if err := decodeStrict(raw, &p); err != nil {
		return model.KeyExtraction{}, err
	}
	out := model.KeyExtraction{Answers: make([]model.KeyAnswer, 0, len(p.Answers))}
	for _, a := range p.Answers {
		out.Answers = append(out.Answers, model.KeyAnswer{
			QuestionNumber: int(*a.QuestionNumber),
			Answer:         strings.TrimSpace(*a.Answer),
		})
	}
	return out, nil
}

// decodeAnswerSheet parses and validates a raw answer sheet response.
func decodeAnswerSheet(raw string) (model.SheetExtraction, error) {
	var p sheetPayload
	if err := decodeStrict(raw, &p); err != nil {
		return model.SheetExtraction{}, err
	}
	out := model.SheetExtraction{
		StudentName: strings.TrimSpace(*p.StudentName),
		StudentID:   strings.TrimSpace(*p.StudentID),
		Results:     make([]model.ExtractedAnswer, 0, len(p.Results)),
	}
	for _, r := range p.Results {
		ea := model.ExtractedAnswer{
			QuestionNumber: int(*r.QuestionNumber),
			StudentAnswer:  strings.TrimSpace(*r.StudentAnswer),
			IsAnomalous:    bool(*r.IsAnomalous),
		}
		if r.AnomalyReason != nil {
			ea.AnomalyReason = strings.TrimSpace(*r.AnomalyReason)
		}
		out.Results = append(out.Results, ea)
	}
	return out, nil
}

func decodeStrict(raw string, dst any) error {
	raw = stripCodeFences(raw)
	if raw == "" {
		return errors.New("empty response")
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("parse response: %w (raw: %s)", err, truncate(raw, 200))
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return fmt.Errorf("incomplete response: %s", describe(ve))
		}
		return fmt.Errorf("validate response: %w", err)
	}
	return nil
}

func describe(ve validator.ValidationErrors) string {
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
