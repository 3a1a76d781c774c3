package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/mathyou/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSubject() model.SubjectImport {
	q := func(id string, d model.Difficulty, answer string) model.QuestionImport {
		return model.QuestionImport{
			LegacyID:    id,
			ProblemText: "Differentiate " + id,
			Difficulty:  d,
			Explanation: "Use the power rule.",
			Data:        json.RawMessage(`{"type":"numerical","answer":` + answer + `}`),
		}
	}
	return model.SubjectImport{
		Name: "Calculus",
		Slug: "calculus",
		Concepts: []model.ConceptImport{
			{
				Name:    "Power Rule",
				Slug:    "power-rule",
				Formula: "d/dx x^n = n x^(n-1)",
				Questions: []model.QuestionImport{
					q("pr_easy_1", model.DifficultyEasy, `"3x^2"`),
					q("pr_easy_2", model.DifficultyEasy, `"2x"`),
					q("pr_med_1", model.DifficultyMedium, `12`),
					q("pr_hard_1", model.DifficultyHard, `5.0`),
				},
			},
			{Name: "Chain Rule", Slug: "chain-rule"},
		},
	}
}

func seedTestStore(t *testing.T, s *Store) {
	t.Helper()
	if _, err := s.ImportSubject(testSubject()); err != nil {
		t.Fatalf("ImportSubject: %v", err)
	}
}

func createTestUser(t *testing.T, s *Store, email string) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{Email: email, PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func TestImportSubject(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.ImportSubject(testSubject())
	if err != nil {
		t.Fatalf("ImportSubject: %v", err)
	}
	if stats.Concepts != 2 || stats.Questions != 4 || stats.Skipped != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 questions, got %d", count)
	}

	// Importing the same slug again violates the unique constraint and rolls back.
	if _, err := s.ImportSubject(testSubject()); err == nil {
		t.Fatal("expected error on duplicate subject")
	}
	count, _ = s.QuestionCount()
	if count != 4 {
		t.Errorf("expected rollback to keep 4 questions, got %d", count)
	}
}

func TestImportSkipsExistingLegacyIDs(t *testing.T) {
	s := newTestStore(t)
	seedTestStore(t, s)

	other := model.SubjectImport{
		Name: "Algebra",
		Slug: "algebra",
		Concepts: []model.ConceptImport{{
			Name: "Linear", Slug: "linear",
			Questions: []model.QuestionImport{
				{LegacyID: "pr_easy_1", ProblemText: "dup", Data: json.RawMessage(`{"type":"numerical","answer":"1"}`)},
				{LegacyID: "lin_1", ProblemText: "Solve x+1=2", Data: json.RawMessage(`{"type":"numerical","answer":"1"}`)},
			},
		}},
	}
	stats, err := s.ImportSubject(other)
	if err != nil {
		t.Fatalf("ImportSubject: %v", err)
	}
	if stats.Questions != 1 || stats.Skipped != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	q, err := s.GetQuestionByLegacyID("lin_1")
	if err != nil {
		t.Fatalf("GetQuestionByLegacyID: %v", err)
	}
	if q.Difficulty != model.DifficultyMedium {
		t.Errorf("expected default difficulty Medium, got %q", q.Difficulty)
	}
}

func TestSubjectsAndConcepts(t *testing.T) {
	s := newTestStore(t)
	seedTestStore(t, s)

	sub, err := s.GetSubjectBySlug("calculus")
	if err != nil {
		t.Fatalf("GetSubjectBySlug: %v", err)
	}
	if sub.Name != "Calculus" {
		t.Errorf("expected Calculus, got %q", sub.Name)
	}

	if _, err := s.GetSubjectBySlug("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	concepts, err := s.ListConcepts(sub.ID)
	if err != nil {
		t.Fatalf("ListConcepts: %v", err)
	}
	if len(concepts) != 2 || concepts[0].Slug != "power-rule" {
		t.Fatalf("unexpected concepts %+v", concepts)
	}

	c, err := s.GetConcept("calculus", "power-rule")
	if err != nil {
		t.Fatalf("GetConcept: %v", err)
	}
	if c.Formula != "d/dx x^n = n x^(n-1)" {
		t.Errorf("unexpected formula %q", c.Formula)
	}

	if _, err := s.GetConcept("calculus", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	found, err := s.FindConceptBySlug("chain-rule")
	if err != nil {
		t.Fatalf("FindConceptBySlug: %v", err)
	}
	if found.SubjectID != sub.ID {
		t.Errorf("expected subject %d, got %d", sub.ID, found.SubjectID)
	}
}

func TestQuestionData(t *testing.T) {
	s := newTestStore(t)
	seedTestStore(t, s)

	tests := []struct {
		id         string
		wantAnswer string
	}{
		{"pr_easy_1", "3x^2"},
		{"pr_med_1", "12"},
		{"pr_hard_1", "5.0"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			q, err := s.GetQuestionByLegacyID(tt.id)
			if err != nil {
				t.Fatalf("GetQuestionByLegacyID: %v", err)
			}
			if q.Data.Type != model.TypeNumerical {
				t.Errorf("expected numerical, got %q", q.Data.Type)
			}
			if got := q.Data.Answer.String(); got != tt.wantAnswer {
				t.Errorf("expected answer %q, got %q", tt.wantAnswer, got)
			}
		})
	}

	if _, err := s.GetQuestionByLegacyID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSiblingQuestions(t *testing.T) {
	s := newTestStore(t)
	seedTestStore(t, s)

	q, _ := s.GetQuestionByLegacyID("pr_easy_1")
	siblings, err := s.ListSiblingQuestions(q)
	if err != nil {
		t.Fatalf("ListSiblingQuestions: %v", err)
	}
	if len(siblings) != 1 || siblings[0].LegacyID != "pr_easy_2" {
		t.Errorf("unexpected siblings %+v", siblings)
	}

	hard, _ := s.GetQuestionByLegacyID("pr_hard_1")
	siblings, err = s.ListSiblingQuestions(hard)
	if err != nil {
		t.Fatalf("ListSiblingQuestions: %v", err)
	}
	if len(siblings) != 0 {
		t.Errorf("expected no siblings, got %d", len(siblings))
	}
}

func TestUpdateQuestionData(t *testing.T) {
	s := newTestStore(t)
	seedTestStore(t, s)

	err := s.UpdateQuestionData("pr_easy_1", model.QuestionData{Type: model.TypeNumerical, Answer: model.StringAnswer("3*x^2")})
	if err != nil {
		t.Fatalf("UpdateQuestionData: %v", err)
	}
	q, _ := s.GetQuestionByLegacyID("pr_easy_1")
	if q.Data.Answer.String() != "3*x^2" {
		t.Errorf("expected updated answer, got %q", q.Data.Answer.String())
	}

	err = s.UpdateQuestionData("missing", model.QuestionData{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateQuestionDataKeepsResponseHistory(t *testing.T) {
	s := newTestStore(t)
	seedTestStore(t, s)
	uid := createTestUser(t, s, "ana@example.com")

	q, _ := s.GetQuestionByLegacyID("pr_easy_1")
	rid, err := s.InsertResponse(model.Response{
		UserID: uid, QuestionID: q.ID, IsCorrect: true,
		Data: model.ResponseData{Answer: q.Data.Answer.String()},
	})
	if err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	err = s.UpdateQuestionData("pr_easy_1", model.QuestionData{Type: model.TypeNumerical, Answer: model.StringAnswer("6x")})
	if err != nil {
		t.Fatalf("UpdateQuestionData: %v", err)
	}

	resp, err := s.GetResponse(rid)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if !resp.IsCorrect {
		t.Error("response was re-graded after the answer changed")
	}
	if resp.Data.Answer == "6x" {
		t.Errorf("response answer rewritten to %q", resp.Data.Answer)
	}

	ids, err := s.CorrectQuestionIDs(uid, []int64{q.ID})
	if err != nil {
		t.Fatalf("CorrectQuestionIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != q.ID {
		t.Errorf("expected question %d still solved, got %v", q.ID, ids)
	}
}

func TestResponses(t *testing.T) {
	s := newTestStore(t)
	seedTestStore(t, s)
	uid := createTestUser(t, s, "ana@example.com")

	e1, _ := s.GetQuestionByLegacyID("pr_easy_1")
	e2, _ := s.GetQuestionByLegacyID("pr_easy_2")
	base := time.Now().Add(-time.Hour)

	rid, err := s.InsertResponse(model.Response{
		UserID: uid, QuestionID: e1.ID, IsCorrect: true,
		Data: model.ResponseData{Answer: "3x^2"}, CreatedAt: base,
	})
	if err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}
	if _, err := s.InsertResponse(model.Response{
		UserID: uid, QuestionID: e2.ID, IsCorrect: false,
		Data: model.ResponseData{Answer: "x"}, CreatedAt: base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	ids, err := s.CorrectQuestionIDs(uid, []int64{e1.ID, e2.ID})
	if err != nil {
		t.Fatalf("CorrectQuestionIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != e1.ID {
		t.Errorf("expected only %d correct, got %v", e1.ID, ids)
	}

	if err := s.AttachExplanation(rid, "Nice work"); err != nil {
		t.Fatalf("AttachExplanation: %v", err)
	}
	r, err := s.GetResponse(rid)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if r.Data.AIExplanation != "Nice work" || r.Data.Answer != "3x^2" {
		t.Errorf("unexpected response data %+v", r.Data)
	}
	if !r.IsCorrect {
		t.Error("attaching feedback must not change correctness")
	}

	history, err := s.ListResponsesByUser(uid)
	if err != nil {
		t.Fatalf("ListResponsesByUser: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(history))
	}
	if history[0].LegacyID != "pr_easy_2" {
		t.Errorf("expected newest first, got %s", history[0].LegacyID)
	}
	if history[1].ConceptName != "Power Rule" || history[1].SubjectName != "Calculus" {
		t.Errorf("unexpected join %+v", history[1])
	}

	sub, _ := s.GetSubjectBySlug("calculus")
	solved, err := s.ListSolvedInSubject(uid, sub.ID)
	if err != nil {
		t.Fatalf("ListSolvedInSubject: %v", err)
	}
	if len(solved) != 1 || solved[0].ConceptName != "Power Rule" {
		t.Errorf("unexpected solved %+v", solved)
	}
}

func TestDeleteSubjectCascades(t *testing.T) {
	s := newTestStore(t)
	seedTestStore(t, s)
	uid := createTestUser(t, s, "ana@example.com")
	q, _ := s.GetQuestionByLegacyID("pr_easy_1")
	if _, err := s.InsertResponse(model.Response{UserID: uid, QuestionID: q.ID, IsCorrect: true}); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	if err := s.DeleteSubject("calculus"); err != nil {
		t.Fatalf("DeleteSubject: %v", err)
	}
	count, _ := s.QuestionCount()
	if count != 0 {
		t.Errorf("expected questions to cascade, got %d", count)
	}
	history, _ := s.ListResponsesByUser(uid)
	if len(history) != 0 {
		t.Errorf("expected responses to cascade, got %d", len(history))
	}

	if err := s.DeleteSubject("calculus"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)

	id := createTestUser(t, s, "  Ana@Example.com ")
	u, err := s.GetUserByEmail("ana@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u == nil || u.ID != id {
		t.Fatalf("expected user %d, got %+v", id, u)
	}

	if _, err := s.CreateUser(model.User{Email: "ANA@example.com", PasswordHash: "x"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	if err := s.UpdatePassword(id, "newhash"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	u, _ = s.GetUserByID(id)
	if u.PasswordHash != "newhash" {
		t.Errorf("expected newhash, got %q", u.PasswordHash)
	}

	missing, err := s.GetUserByID(9999)
	if err != nil || missing != nil {
		t.Errorf("expected nil user, got %+v, %v", missing, err)
	}

	count, _ := s.UserCount()
	if count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	uid := createTestUser(t, s, "ana@example.com")

	token, err := s.CreateAuthSession(uid)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	sess, err := s.GetAuthSession(token)
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession: %v, %v", sess, err)
	}
	if sess.UserID != uid {
		t.Errorf("expected user %d, got %d", uid, sess.UserID)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, _ = s.GetAuthSession(token)
	if sess != nil {
		t.Error("expected session to be gone")
	}
}

func TestPasswordReset(t *testing.T) {
	s := newTestStore(t)
	uid := createTestUser(t, s, "ana@example.com")

	token, err := s.CreatePasswordReset(uid)
	if err != nil {
		t.Fatalf("CreatePasswordReset: %v", err)
	}
	got, err := s.ConsumePasswordReset(token)
	if err != nil {
		t.Fatalf("ConsumePasswordReset: %v", err)
	}
	if got != uid {
		t.Errorf("expected user %d, got %d", uid, got)
	}

	// Tokens are single use.
	got, _ = s.ConsumePasswordReset(token)
	if got != 0 {
		t.Errorf("expected reused token to be rejected, got %d", got)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("seed.json")
	if err != nil || hash != "" {
		t.Fatalf("expected empty hash, got %q, %v", hash, err)
	}
	if err := s.SetImportedFileHash("seed.json", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash("seed.json", "def"); err != nil {
		t.Fatalf("SetImportedFileHash overwrite: %v", err)
	}
	hash, _ = s.GetImportedFileHash("seed.json")
	if hash != "def" {
		t.Errorf("expected def, got %q", hash)
	}
}

func TestExportProgress(t *testing.T) {
	s := newTestStore(t)
	seedTestStore(t, s)
	uid := createTestUser(t, s, "ana@example.com")
	createTestUser(t, s, "ben@example.com")
	q, _ := s.GetQuestionByLegacyID("pr_med_1")
	s.InsertResponse(model.Response{UserID: uid, QuestionID: q.ID, IsCorrect: true, Data: model.ResponseData{Answer: "12"}})

	exp, err := s.ExportProgress()
	if err != nil {
		t.Fatalf("ExportProgress: %v", err)
	}
	if len(exp.Learners) != 2 {
		t.Fatalf("expected 2 learners, got %d", len(exp.Learners))
	}
	ana := exp.Learners[0]
	if ana.Answered != 1 || ana.Correct != 1 {
		t.Errorf("unexpected counts %+v", ana)
	}
	if ana.Responses[0].Difficulty != model.DifficultyMedium || ana.Responses[0].Concept != "Power Rule" {
		t.Errorf("unexpected answer %+v", ana.Responses[0])
	}
	if exp.Learners[1].Answered != 0 {
		t.Errorf("expected ben to have no answers")
	}
}

func TestCopyTo(t *testing.T) {
	src := newTestStore(t)
	seedTestStore(t, src)
	uid := createTestUser(t, src, "ana@example.com")
	q, _ := src.GetQuestionByLegacyID("pr_easy_1")
	src.InsertResponse(model.Response{UserID: uid, QuestionID: q.ID, IsCorrect: true, Data: model.ResponseData{Answer: "3x^2"}})
	src.SetImportedFileHash("seed.json", "abc")

	dst := newTestStore(t)
	if err := src.CopyTo(dst); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}

	got, err := dst.GetQuestionByLegacyID("pr_easy_1")
	if err != nil {
		t.Fatalf("GetQuestionByLegacyID: %v", err)
	}
	if got.ID != q.ID || got.Data.Answer.String() != "3x^2" {
		t.Errorf("unexpected copied question %+v", got)
	}
	history, _ := dst.ListResponsesByUser(uid)
	if len(history) != 1 || !history[0].Response.IsCorrect {
		t.Errorf("unexpected copied history %+v", history)
	}
	hash, _ := dst.GetImportedFileHash("seed.json")
	if hash != "abc" {
		t.Errorf("expected metadata to be copied, got %q", hash)
	}
}

func TestRebind(t *testing.T) {
	s := &Store{dialect: dialectPostgres}
	got := s.rebind(`SELECT * FROM t WHERE a = ? AND b IN (?, ?)`)
	want := `SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)`
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	s.dialect = dialectSQLite
	if got := s.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}
