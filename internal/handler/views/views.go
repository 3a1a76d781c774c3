// Package views holds the HTML pages. Pages are templ components; edit the
// .templ files and run `templ generate` to refresh the *_templ.go files.
package views

import (
	"context"
	"embed"
	"io/fs"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/mathyou/internal/i18n"
	"github.com/pavelanni/mathyou/internal/model"
)

//go:embed static
var staticFS embed.FS

// Static holds the page scripts served under /static/.
var Static, _ = fs.Sub(staticFS, "static")

// ConceptCard is one concept on a discipline page with its active item.
type ConceptCard struct {
	Concept  model.Concept
	ActiveID string
	Mastered bool
}

// DisciplineView is the data of a subject page.
type DisciplineView struct {
	Subject  model.Subject
	Concepts []ConceptCard
}

// ProfileView is the data of the profile page.
type ProfileView struct {
	Email     string
	Responses []model.ResponseView
	Solved    int
	Message   string
	Error     string
}

func t(ctx context.Context, id string) string {
	return appI18n.T(ctx, id)
}

func pageTitle(ctx context.Context, id string) string {
	return t(ctx, id) + " · " + t(ctx, "AppTitle")
}

func solvedCount(ctx context.Context, n int) string {
	return appI18n.Tp(ctx, "ProblemsSolved", n)
}

func basePath(ctx context.Context) string {
	return model.BasePathFromContext(ctx)
}

// href prefixes an app path with the base path. Paths are built from
// validated slugs and tokens only.
func href(ctx context.Context, p string) templ.SafeURL {
	return templ.SafeURL(basePath(ctx) + p)
}

func staticPath(ctx context.Context, name string) string {
	return basePath(ctx) + "/static/" + name
}

func csrfToken(ctx context.Context) string {
	return model.CSRFTokenFromContext(ctx)
}

func signedIn(ctx context.Context) bool {
	return model.UserFromContext(ctx) != nil
}

func formatDate(ts time.Time) string {
	return ts.Local().Format("2006-01-02 15:04")
}
