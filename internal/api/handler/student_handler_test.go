package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eduadmin/student-lifecycle/internal/api/middleware"
	"github.com/eduadmin/student-lifecycle/internal/core/domain"
	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stub services
// ---------------------------------------------------------------------------

type stubProvisioning struct {
	fn func(ctx context.Context, in ports.BulkProvisionInput) (*ports.BulkReport, error)
}

func (s *stubProvisioning) Provision(ctx context.Context, in ports.BulkProvisionInput) (*ports.BulkReport, error) {
	return s.fn(ctx, in)
}

type stubEmails struct {
	fn func(ctx context.Context, uid, newEmail string) (*ports.EmailChangeResult, error)
}

func (s *stubEmails) ChangeEmail(ctx context.Context, uid, newEmail string) (*ports.EmailChangeResult, error) {
	return s.fn(ctx, uid, newEmail)
}

type stubDeletions struct {
	fn func(ctx context.Context, uid string) (*ports.DeletionResult, error)
}

func (s *stubDeletions) DeleteStudent(ctx context.Context, uid string) (*ports.DeletionResult, error) {
	return s.fn(ctx, uid)
}

func mustNotCall(t *testing.T) (*stubProvisioning, *stubEmails, *stubDeletions) {
	return &stubProvisioning{fn: func(context.Context, ports.BulkProvisionInput) (*ports.BulkReport, error) {
			t.Fatalf("provisioning must not be called")
			return nil, nil
		}}, &stubEmails{fn: func(context.Context, string, string) (*ports.EmailChangeResult, error) {
			t.Fatalf("email change must not be called")
			return nil, nil
		}}, &stubDeletions{fn: func(context.Context, string) (*ports.DeletionResult, error) {
			t.Fatalf("deletion must not be called")
			return nil, nil
		}}
}

// ---------------------------------------------------------------------------
// POST /bulkCreateUsers
// ---------------------------------------------------------------------------

func TestBulkCreateUsers_Success(t *testing.T) {
	e := newTestEcho()
	_, emails, deletions := mustNotCall(t)
	prov := &stubProvisioning{fn: func(_ context.Context, in ports.BulkProvisionInput) (*ports.BulkReport, error) {
		if len(in.Students) != 2 || in.Students[0].Phone != "555" || in.IdempotencyKey != "key-1" {
			t.Fatalf("unexpected input: %+v", in)
		}
		return &ports.BulkReport{
			SuccessCount:   1,
			FailureCount:   1,
			SuccessRecords: []ports.ProvisionedAccount{{Email: "a@x.com", AccountID: "uid-1", Name: "A"}},
			FailedRecords:  []ports.ProvisionFailure{{Email: "bad-email", Error: "email: invalid email format"}},
		}, nil
	}}
	h := NewStudentHandler(prov, emails, deletions, zerolog.Nop())

	c, rec := newJSONContext(e, "/bulkCreateUsers",
		`{"students":[{"email":"a@x.com","name":"A","phone":"555"},{"email":"bad-email","name":"B"}]}`)
	c.Request().Header.Set("Idempotency-Key", "key-1")
	c.Set(middleware.CtxUID, "admin-1")

	if err := h.BulkCreateUsers(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("fresh report must not be marked as replayed")
	}

	var resp struct {
		SuccessCount   int              `json:"successCount"`
		FailureCount   int              `json:"failureCount"`
		SuccessRecords []map[string]any `json:"successRecords"`
		FailedRecords  []map[string]any `json:"failedRecords"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.SuccessCount != 1 || resp.FailureCount != 1 {
		t.Fatalf("unexpected counts: %+v", resp)
	}
	if resp.SuccessRecords[0]["uid"] != "uid-1" {
		t.Fatalf("unexpected success record: %+v", resp.SuccessRecords[0])
	}
	if resp.FailedRecords[0]["error"] != "email: invalid email format" {
		t.Fatalf("unexpected failed record: %+v", resp.FailedRecords[0])
	}
}

func TestBulkCreateUsers_ReplayHeader(t *testing.T) {
	e := newTestEcho()
	_, emails, deletions := mustNotCall(t)
	prov := &stubProvisioning{fn: func(context.Context, ports.BulkProvisionInput) (*ports.BulkReport, error) {
		return &ports.BulkReport{SuccessRecords: []ports.ProvisionedAccount{}, FailedRecords: []ports.ProvisionFailure{}, Replayed: true}, nil
	}}
	c, rec := newJSONContext(e, "/bulkCreateUsers", `{"students":[{"email":"a@x.com","name":"A"}]}`)

	if err := NewStudentHandler(prov, emails, deletions, zerolog.Nop()).BulkCreateUsers(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
}

func TestBulkCreateUsers_MissingStudents(t *testing.T) {
	e := newTestEcho()
	prov, emails, deletions := mustNotCall(t)
	c, _ := newJSONContext(e, "/bulkCreateUsers", `{}`)

	err := NewStudentHandler(prov, emails, deletions, zerolog.Nop()).BulkCreateUsers(c)
	if !errors.Is(err, domain.ErrValidation) || !strings.Contains(err.Error(), "students is required") {
		t.Fatalf("expected students is required, got %v", err)
	}
}

func TestBulkCreateUsers_PreflightErrorsPropagate(t *testing.T) {
	for _, want := range []error{domain.ErrEmptyBatch, domain.ErrBatchTooLarge} {
		e := newTestEcho()
		_, emails, deletions := mustNotCall(t)
		prov := &stubProvisioning{fn: func(context.Context, ports.BulkProvisionInput) (*ports.BulkReport, error) {
			return nil, want
		}}
		c, _ := newJSONContext(e, "/bulkCreateUsers", `{"students":[]}`)

		if err := NewStudentHandler(prov, emails, deletions, zerolog.Nop()).BulkCreateUsers(c); !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
	}
}

// ---------------------------------------------------------------------------
// POST /updateStudentEmail
// ---------------------------------------------------------------------------

func TestUpdateStudentEmail_Success(t *testing.T) {
	e := newTestEcho()
	prov, _, deletions := mustNotCall(t)
	emails := &stubEmails{fn: func(_ context.Context, uid, newEmail string) (*ports.EmailChangeResult, error) {
		if uid != "uid-1" || newEmail != "new@school.edu" {
			t.Fatalf("unexpected args: %s %s", uid, newEmail)
		}
		return &ports.EmailChangeResult{AccountID: uid, OldEmail: "old@school.edu", NewEmail: newEmail, EnrollmentsUpdated: 4}, nil
	}}
	c, rec := newJSONContext(e, "/updateStudentEmail", `{"uid":"uid-1","newEmail":"new@school.edu"}`)

	if err := NewStudentHandler(prov, emails, deletions, zerolog.Nop()).UpdateStudentEmail(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["success"] != true || resp["uid"] != "uid-1" || resp["oldEmail"] != "old@school.edu" ||
		resp["newEmail"] != "new@school.edu" || resp["enrollmentsUpdated"] != float64(4) {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUpdateStudentEmail_MissingFields(t *testing.T) {
	for body, want := range map[string]string{
		`{"newEmail":"n@school.edu"}`: "uid is required",
		`{"uid":"uid-1"}`:             "newEmail is required",
	} {
		e := newTestEcho()
		prov, emails, deletions := mustNotCall(t)
		c, _ := newJSONContext(e, "/updateStudentEmail", body)

		err := NewStudentHandler(prov, emails, deletions, zerolog.Nop()).UpdateStudentEmail(c)
		if !errors.Is(err, domain.ErrValidation) || !strings.Contains(err.Error(), want) {
			t.Fatalf("body %s: expected %q, got %v", body, want, err)
		}
	}
}

func TestUpdateStudentEmail_ServiceErrorsPropagate(t *testing.T) {
	for _, want := range []error{domain.ErrAccountNotFound, domain.ErrEmailConflict, domain.ErrValidation} {
		e := newTestEcho()
		prov, _, deletions := mustNotCall(t)
		emails := &stubEmails{fn: func(context.Context, string, string) (*ports.EmailChangeResult, error) {
			return nil, want
		}}
		c, _ := newJSONContext(e, "/updateStudentEmail", `{"uid":"uid-1","newEmail":"n@school.edu"}`)

		if err := NewStudentHandler(prov, emails, deletions, zerolog.Nop()).UpdateStudentEmail(c); !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
	}
}

// ---------------------------------------------------------------------------
// POST /deleteStudentCompletely
// ---------------------------------------------------------------------------

func TestDeleteStudentCompletely_PartialFailureIs200(t *testing.T) {
	e := newTestEcho()
	prov, emails, _ := mustNotCall(t)
	deletions := &stubDeletions{fn: func(_ context.Context, uid string) (*ports.DeletionResult, error) {
		return &ports.DeletionResult{
			AccountID:          uid,
			AccountDeleted:     true,
			ProfileDeleted:     false,
			EnrollmentsDeleted: 2,
			Errors:             map[string]string{"profile": "delete profile: backing store unavailable"},
		}, nil
	}}
	c, rec := newJSONContext(e, "/deleteStudentCompletely", `{"uid":"uid-9"}`)

	if err := NewStudentHandler(prov, emails, deletions, zerolog.Nop()).DeleteStudentCompletely(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Success         bool   `json:"success"`
		UID             string `json:"uid"`
		DeletionResults struct {
			AuthDeleted        bool              `json:"authDeleted"`
			FirestoreDeleted   bool              `json:"firestoreDeleted"`
			EnrollmentsDeleted int               `json:"enrollmentsDeleted"`
			Errors             map[string]string `json:"errors"`
		} `json:"deletionResults"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Success || resp.UID != "uid-9" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	r := resp.DeletionResults
	if !r.AuthDeleted || r.FirestoreDeleted || r.EnrollmentsDeleted != 2 || r.Errors["profile"] == "" {
		t.Fatalf("unexpected deletion results: %+v", r)
	}
}

func TestDeleteStudentCompletely_MissingUID(t *testing.T) {
	e := newTestEcho()
	prov, emails, deletions := mustNotCall(t)
	c, _ := newJSONContext(e, "/deleteStudentCompletely", `{}`)

	err := NewStudentHandler(prov, emails, deletions, zerolog.Nop()).DeleteStudentCompletely(c)
	if !errors.Is(err, domain.ErrValidation) || !strings.Contains(err.Error(), "uid is required") {
		t.Fatalf("expected uid is required, got %v", err)
	}
}
