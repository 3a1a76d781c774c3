package content

import (
	"fmt"
	"strings"

	"github.com/pavelanni/mathyou/internal/tutor"
)

// Subject pages live at /{slug}, next to fixed page routes.
var reservedSubjectSlugs = map[string]bool{
	"api":             true,
	"static":          true,
	"login":           true,
	"logout":          true,
	"register":        true,
	"profile":         true,
	"change-password": true,
	"reset-password":  true,
}

// Questions live at /api/question/{id}, next to fixed API routes.
var reservedLegacyIDs = map[string]bool{
	"next":          true,
	"schema":        true,
	"create":        true,
	"submit_answer": true,
}

// CheckSubjectSlug rejects slugs that would be unreachable behind a fixed route.
func CheckSubjectSlug(slug string) error {
	if reservedSubjectSlugs[strings.ToLower(slug)] {
		return fmt.Errorf("subject slug %q is reserved", slug)
	}
	return nil
}

// CheckLegacyID rejects question ids that collide with fixed API routes or
// with mastery tokens.
func CheckLegacyID(id string) error {
	if reservedLegacyIDs[id] {
		return fmt.Errorf("question id %q is reserved", id)
	}
	if strings.HasPrefix(id, tutor.MasteryPrefix) {
		return fmt.Errorf("question id %q uses the reserved prefix %q", id, tutor.MasteryPrefix)
	}
	return nil
}
