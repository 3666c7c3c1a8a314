package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eduadmin/student-lifecycle/internal/api/metrics"
	"github.com/eduadmin/student-lifecycle/internal/core/domain"
	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// StudentHandler exposes the student lifecycle operations.
type StudentHandler struct {
	provisioning ports.ProvisioningService
	emails       ports.EmailChangeService
	deletions    ports.DeletionService
	log          zerolog.Logger
}

func NewStudentHandler(
	provisioning ports.ProvisioningService,
	emails ports.EmailChangeService,
	deletions ports.DeletionService,
	log zerolog.Logger,
) *StudentHandler {
	return &StudentHandler{provisioning: provisioning, emails: emails, deletions: deletions, log: log}
}

// BulkCreateUsers handles POST /bulkCreateUsers.
//
// The response is 200 whenever the batch passed the size checks, even if
// every student failed; per-student failures are listed in failedRecords.
//
// @Summary      Provision a batch of student accounts
// @Tags         students
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string                  false  "Replays the first report for a repeated key"
// @Param        body             body      bulkCreateUsersRequest  true   "Students to provision (at most 500)"
// @Success      200              {object}  ports.BulkReport
// @Failure      400              {object}  map[string]string
// @Failure      401              {object}  map[string]string
// @Failure      403              {object}  map[string]string
// @Router       /bulkCreateUsers [post]
func (h *StudentHandler) BulkCreateUsers(c echo.Context) error {
	started := time.Now()
	var req bulkCreateUsersRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	in := toProvisionInput(req, c.Request().Header.Get(headerIdempotencyKey))
	report, err := h.provisioning.Provision(c.Request().Context(), in)
	if err != nil {
		return err
	}

	if report.Replayed {
		metrics.BulkReplaysTotal.Inc()
		c.Response().Header().Set(headerReplayed, "true")
	} else {
		metrics.BulkBatchSize.Observe(float64(len(in.Students)))
		metrics.ProvisionedStudentsTotal.WithLabelValues("success").Add(float64(report.SuccessCount))
		metrics.ProvisionedStudentsTotal.WithLabelValues("failure").Add(float64(report.FailureCount))
	}
	metrics.OperationDuration.WithLabelValues("bulk_create").Observe(time.Since(started).Seconds())

	uid, _ := ctxCaller(c)
	h.log.Info().
		Str("requested_by", uid).
		Int("succeeded", report.SuccessCount).
		Int("failed", report.FailureCount).
		Bool("replayed", report.Replayed).
		Msg("bulk create users")

	return c.JSON(http.StatusOK, report)
}

// UpdateStudentEmail handles POST /updateStudentEmail.
//
// @Summary      Change a student's email everywhere it is stored
// @Tags         students
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updateStudentEmailRequest  true  "Account id and new email"
// @Success      200   {object}  updateStudentEmailResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /updateStudentEmail [post]
func (h *StudentHandler) UpdateStudentEmail(c echo.Context) error {
	started := time.Now()
	var req updateStudentEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.emails.ChangeEmail(c.Request().Context(), req.UID, req.NewEmail)
	metrics.OperationsTotal.WithLabelValues("update_email", domain.KindOf(err)).Inc()
	metrics.OperationDuration.WithLabelValues("update_email").Observe(time.Since(started).Seconds())
	if err != nil {
		return err
	}
	metrics.EnrollmentsTouchedTotal.WithLabelValues("update_email").Add(float64(res.EnrollmentsUpdated))

	uid, _ := ctxCaller(c)
	h.log.Info().Str("requested_by", uid).Str("uid", res.AccountID).Msg("update student email")

	return c.JSON(http.StatusOK, updateStudentEmailResponse{
		Success:            true,
		UID:                res.AccountID,
		OldEmail:           res.OldEmail,
		NewEmail:           res.NewEmail,
		EnrollmentsUpdated: res.EnrollmentsUpdated,
	})
}

// DeleteStudentCompletely handles POST /deleteStudentCompletely.
//
// Partial failures are reported in deletionResults; the call itself succeeds.
//
// @Summary      Delete a student's account, profile and enrollments
// @Tags         students
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      deleteStudentRequest  true  "Account id"
// @Success      200   {object}  deleteStudentResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /deleteStudentCompletely [post]
func (h *StudentHandler) DeleteStudentCompletely(c echo.Context) error {
	started := time.Now()
	var req deleteStudentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.deletions.DeleteStudent(c.Request().Context(), req.UID)
	metrics.OperationsTotal.WithLabelValues("delete_student", domain.KindOf(err)).Inc()
	metrics.OperationDuration.WithLabelValues("delete_student").Observe(time.Since(started).Seconds())
	if err != nil {
		return err
	}
	metrics.EnrollmentsTouchedTotal.WithLabelValues("delete_student").Add(float64(res.EnrollmentsDeleted))
	for branch := range res.Errors {
		metrics.DeletionBranchFailuresTotal.WithLabelValues(branch).Inc()
	}

	uid, _ := ctxCaller(c)
	h.log.Info().Str("requested_by", uid).Str("uid", res.AccountID).Msg("delete student completely")

	return c.JSON(http.StatusOK, toDeleteResponse(res))
}
