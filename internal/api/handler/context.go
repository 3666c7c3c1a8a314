package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/eduadmin/student-lifecycle/internal/api/middleware"
)

// ctxCaller returns the uid and role injected by the Auth middleware, for
// audit logging. Both are empty on unauthenticated routes.
func ctxCaller(c echo.Context) (uid, role string) {
	uid, _ = c.Get(middleware.CtxUID).(string)
	role, _ = c.Get(middleware.CtxRole).(string)
	return uid, role
}
