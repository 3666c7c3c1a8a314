package domain

import "time"

const (
	fieldStudentName = "studentName"
	fieldCourseID    = "courseId"
	fieldCourseName  = "courseName"
	fieldStatus      = "status"
	fieldEnrolledAt  = "enrolledAt"
)

// Enrollment links a student account to a course. StudentEmail is a
// denormalised copy of the account email and may lag behind it until the
// email change propagation rewrites it.
type Enrollment struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"studentId"`
	StudentEmail string    `json:"studentEmail"`
	StudentName  string    `json:"studentName"`
	CourseID     string    `json:"courseId"`
	CourseName   string    `json:"courseName"`
	Status       string    `json:"status"`
	EnrolledAt   time.Time `json:"enrolledAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Fields returns the document representation of e.
func (e Enrollment) Fields() map[string]any {
	return map[string]any{
		FieldStudentID:    e.StudentID,
		FieldStudentEmail: e.StudentEmail,
		fieldStudentName:  e.StudentName,
		fieldCourseID:     e.CourseID,
		fieldCourseName:   e.CourseName,
		fieldStatus:       e.Status,
		fieldEnrolledAt:   e.EnrolledAt,
		FieldUpdatedAt:    e.UpdatedAt,
	}
}

// EnrollmentFromDocument decodes an enrollment document.
func EnrollmentFromDocument(d Document) Enrollment {
	return Enrollment{
		ID:           d.ID,
		StudentID:    d.String(FieldStudentID),
		StudentEmail: d.String(FieldStudentEmail),
		StudentName:  d.String(fieldStudentName),
		CourseID:     d.String(fieldCourseID),
		CourseName:   d.String(fieldCourseName),
		Status:       d.String(fieldStatus),
		EnrolledAt:   d.Time(fieldEnrolledAt),
		UpdatedAt:    d.Time(FieldUpdatedAt),
	}
}
