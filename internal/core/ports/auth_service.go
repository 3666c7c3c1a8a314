package ports

import (
	"context"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (string, *domain.Account, error)
}
