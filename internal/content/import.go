package content

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"

	"github.com/pavelanni/mathyou/internal/model"
	"github.com/pavelanni/mathyou/internal/store"
)

//go:embed seed/*.json
var seedFS embed.FS

// ErrInvalidContent marks content files rejected before anything is written.
var ErrInvalidContent = errors.New("invalid content")

// Store is the part of the content store the importer needs.
type Store interface {
	ImportSubject(model.SubjectImport) (store.ImportStats, error)
	DeleteSubject(slug string) error
	GetImportedFileHash(name string) (string, error)
	SetImportedFileHash(name, hash string) error
}

// Status reports what Import did with a file.
type Status string

const (
	StatusImported  Status = "imported"
	StatusUnchanged Status = "unchanged"
	StatusChanged   Status = "changed"
)

// Result describes one import.
type Result struct {
	Name    string            `json:"name"`
	Status  Status            `json:"status"`
	Subject string            `json:"subject,omitempty"`
	Stats   store.ImportStats `json:"stats"`
}

// Parse decodes a subject file and validates every question payload.
func Parse(data []byte) (model.SubjectImport, error) {
	var imp model.SubjectImport
	if err := json.Unmarshal(data, &imp); err != nil {
		return imp, fmt.Errorf("invalid JSON: %w", err)
	}
	if imp.Name == "" || imp.Slug == "" {
		return imp, errors.New("subject name and slug are required")
	}
	if err := CheckSubjectSlug(imp.Slug); err != nil {
		return imp, err
	}
	for _, c := range imp.Concepts {
		if c.Name == "" || c.Slug == "" {
			return imp, fmt.Errorf("subject %s: concept name and slug are required", imp.Slug)
		}
		for _, q := range c.Questions {
			if q.LegacyID == "" || q.ProblemText == "" {
				return imp, fmt.Errorf("concept %s: question legacy_id and problem_text are required", c.Slug)
			}
			if err := CheckLegacyID(q.LegacyID); err != nil {
				return imp, fmt.Errorf("concept %s: %w", c.Slug, err)
			}
			if err := ValidateQuestionData(q.Data); err != nil {
				return imp, fmt.Errorf("question %s: %w", q.LegacyID, err)
			}
		}
	}
	return imp, nil
}

// Import validates and loads one subject file, skipping files already imported with the
// same sha256. A file that changed since its last import is skipped unless
// reset is set; reset deletes the subject first, which cascades to its
// questions and every response to them.
func Import(st Store, name string, data []byte, reset bool) (Result, error) {
	res := Result{Name: name}
	imp, err := Parse(data)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %w", ErrInvalidContent, name, err)
	}
	res.Subject = imp.Slug

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	storedHash, err := st.GetImportedFileHash(name)
	if err != nil {
		return res, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if storedHash == hash && !reset {
		slog.Info("content already imported, skipping", "name", name)
		res.Status = StatusUnchanged
		return res, nil
	}
	if storedHash != "" && !reset {
		slog.Warn("content file changed since last import, skipping to keep learner history; use --reset to replace it",
			"name", name)
		res.Status = StatusChanged
		return res, nil
	}

	if reset {
		if err := st.DeleteSubject(imp.Slug); err != nil && !errors.Is(err, store.ErrNotFound) {
			return res, fmt.Errorf("reset subject %s: %w", imp.Slug, err)
		}
	}

	res.Stats, err = st.ImportSubject(imp)
	if err != nil {
		return res, fmt.Errorf("import %s: %w", name, err)
	}
	if err := st.SetImportedFileHash(name, hash); err != nil {
		return res, fmt.Errorf("record import for %s: %w", name, err)
	}
	res.Status = StatusImported
	slog.Info("imported content", "name", name, "subject", imp.Slug,
		"concepts", res.Stats.Concepts, "questions", res.Stats.Questions, "skipped", res.Stats.Skipped)
	return res, nil
}

// ImportBundled imports every embedded seed file in name order.
func ImportBundled(st Store, reset bool) ([]Result, error) {
	entries, err := fs.ReadDir(seedFS, "seed")
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var results []Result
	for _, e := range entries {
		data, err := seedFS.ReadFile(path.Join("seed", e.Name()))
		if err != nil {
			return results, err
		}
		res, err := Import(st, "bundled/"+e.Name(), data, reset)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
