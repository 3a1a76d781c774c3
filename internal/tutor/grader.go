package tutor

import (
	"strings"

	"github.com/pavelanni/mathyou/internal/model"
)

// Grade compares the stored answer and the submission as trimmed strings.
// A stored 5 matches "5" and " 5 " but not "5.0". Multiple-choice answers
// are choice indexes compared the same way; an out-of-range index is just wrong.
func Grade(q model.Question, submitted string) bool {
	return strings.TrimSpace(q.Data.Answer.String()) == strings.TrimSpace(submitted)
}
