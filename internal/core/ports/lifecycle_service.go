package ports

import "context"

// ProvisionRequest is one student to reconcile in a bulk provisioning batch.
type ProvisionRequest struct {
	Email string
	Name  string
	Phone string // optional
}

// ProvisionOutcome is the result of reconciling a single request.
type ProvisionOutcome struct {
	Success   bool
	Email     string
	AccountID string
	Name      string // authoritative name: the stored profile name when one exists
	Err       error
}

// ProvisionedAccount is a successful item of a BulkReport.
type ProvisionedAccount struct {
	Email     string `json:"email"`
	AccountID string `json:"uid"`
	Name      string `json:"name"`
}

// ProvisionFailure is a failed item of a BulkReport.
type ProvisionFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// BulkProvisionInput is a provisioning batch. A non-empty IdempotencyKey makes
// a repeated submission return the report of the first one.
type BulkProvisionInput struct {
	Students       []ProvisionRequest
	IdempotencyKey string
}

// BulkReport aggregates a provisioning batch. SuccessCount+FailureCount always
// equals the number of submitted requests. Record order is not input order.
type BulkReport struct {
	SuccessCount   int                  `json:"successCount"`
	FailureCount   int                  `json:"failureCount"`
	SuccessRecords []ProvisionedAccount `json:"successRecords"`
	FailedRecords  []ProvisionFailure   `json:"failedRecords"`
	// Replayed is true when the report was served for a repeated idempotency key.
	Replayed bool `json:"-"`
}

// EmailChangeResult is returned by a successful email change.
type EmailChangeResult struct {
	AccountID          string
	OldEmail           string
	NewEmail           string
	EnrollmentsUpdated int
}

// DeletionResult reports every branch of a cascading deletion independently.
type DeletionResult struct {
	AccountID          string
	AccountDeleted     bool
	ProfileDeleted     bool
	EnrollmentsDeleted int
	// Errors holds the failure message of each branch that did not complete,
	// keyed by "account", "profile" or "enrollments".
	Errors map[string]string
}

// ProvisioningService fans a batch of requests out to the account reconciler.
type ProvisioningService interface {
	Provision(ctx context.Context, in BulkProvisionInput) (*BulkReport, error)
}

// EmailChangeService moves an account to a new email and propagates it.
type EmailChangeService interface {
	ChangeEmail(ctx context.Context, accountID, newEmail string) (*EmailChangeResult, error)
}

// DeletionService removes an account and everything that references it.
type DeletionService interface {
	DeleteStudent(ctx context.Context, accountID string) (*DeletionResult, error)
}
