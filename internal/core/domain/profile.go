package domain

import "time"

// Document store collections and field names. Field names are the wire names
// stored in the documents and used by equality queries.
const (
	CollectionProfiles    = "users"
	CollectionEnrollments = "enrollments"

	FieldEmail        = "email"
	FieldName         = "name"
	FieldPhone        = "phone"
	FieldRole         = "role"
	FieldCreatedAt    = "createdAt"
	FieldUpdatedAt    = "updatedAt"
	FieldStudentID    = "studentId"
	FieldStudentEmail = "studentEmail"
)

// Document is a schemaless document-store record addressed by collection and ID.
type Document struct {
	ID     string
	Fields map[string]any
}

// String returns the string value of field, or "" when absent or not a string.
func (d Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Time returns the time value of field, or the zero time.
func (d Document) Time(field string) time.Time {
	t, _ := d.Fields[field].(time.Time)
	return t
}

// Profile mirrors an Account for application use. Its document ID always
// equals the owning Account ID.
type Profile struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewStudentProfile builds the profile written when a student account is first provisioned.
func NewStudentProfile(uid, email, name, phone string, now time.Time) Profile {
	return Profile{
		UID:       uid,
		Email:     email,
		Name:      name,
		Phone:     phone,
		Role:      RoleStudent,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Fields returns the document representation of p.
func (p Profile) Fields() map[string]any {
	return map[string]any{
		FieldEmail:     p.Email,
		FieldName:      p.Name,
		FieldPhone:     p.Phone,
		FieldRole:      p.Role,
		FieldCreatedAt: p.CreatedAt,
		FieldUpdatedAt: p.UpdatedAt,
	}
}

// ProfileFromDocument decodes a profile document.
func ProfileFromDocument(d Document) Profile {
	return Profile{
		UID:       d.ID,
		Email:     d.String(FieldEmail),
		Name:      d.String(FieldName),
		Phone:     d.String(FieldPhone),
		Role:      d.String(FieldRole),
		CreatedAt: d.Time(FieldCreatedAt),
		UpdatedAt: d.Time(FieldUpdatedAt),
	}
}
