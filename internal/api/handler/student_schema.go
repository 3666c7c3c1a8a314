package handler

import "github.com/eduadmin/student-lifecycle/internal/core/ports"

// --- Request / Response types ---

type studentRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// bulkCreateUsersRequest leaves per-student checks to the reconciler so that
// a bad row becomes a failed record instead of rejecting the batch.
type bulkCreateUsersRequest struct {
	Students []studentRequest `json:"students" validate:"required"`
}

type updateStudentEmailRequest struct {
	UID      string `json:"uid" validate:"required"`
	NewEmail string `json:"newEmail" validate:"required"`
}

type updateStudentEmailResponse struct {
	Success            bool   `json:"success"`
	UID                string `json:"uid"`
	OldEmail           string `json:"oldEmail"`
	NewEmail           string `json:"newEmail"`
	EnrollmentsUpdated int    `json:"enrollmentsUpdated"`
}

type deleteStudentRequest struct {
	UID string `json:"uid" validate:"required"`
}

type deletionResults struct {
	AuthDeleted        bool              `json:"authDeleted"`
	FirestoreDeleted   bool              `json:"firestoreDeleted"`
	EnrollmentsDeleted int               `json:"enrollmentsDeleted"`
	Errors             map[string]string `json:"errors,omitempty"`
}

type deleteStudentResponse struct {
	Success         bool            `json:"success"`
	UID             string          `json:"uid"`
	DeletionResults deletionResults `json:"deletionResults"`
}

func toProvisionInput(req bulkCreateUsersRequest, idempotencyKey string) ports.BulkProvisionInput {
	students := make([]ports.ProvisionRequest, 0, len(req.Students))
	for _, s := range req.Students {
		students = append(students, ports.ProvisionRequest{Email: s.Email, Name: s.Name, Phone: s.Phone})
	}
	return ports.BulkProvisionInput{Students: students, IdempotencyKey: idempotencyKey}
}

func toDeleteResponse(res *ports.DeletionResult) deleteStudentResponse {
	return deleteStudentResponse{
		Success: true,
		UID:     res.AccountID,
		DeletionResults: deletionResults{
			AuthDeleted:        res.AccountDeleted,
			FirestoreDeleted:   res.ProfileDeleted,
			EnrollmentsDeleted: res.EnrollmentsDeleted,
			Errors:             res.Errors,
		},
	}
}
