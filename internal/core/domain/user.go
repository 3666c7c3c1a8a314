package domain

import "time"

const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Account is the identity-store record: the login identity of a user.
// ID is immutable and is the foreign key used by every dependent document.
type Account struct {
	ID          string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Disabled    bool      `json:"disabled"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewAccount carries the attributes needed to create an Account.
type NewAccount struct {
	Email       string
	DisplayName string
	Password    string
	Disabled    bool
	Role        string
}

// AccountUpdate lists mutable Account attributes; nil fields are left unchanged.
type AccountUpdate struct {
	Email       *string
	DisplayName *string
	Disabled    *bool
}

// Claims is the decoded content of a verified bearer token.
type Claims struct {
	UID   string
	Email string
	Role  string
}
