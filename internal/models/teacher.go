package models

import "time"

// Teacher represents a member of the teaching staff.
type Teacher struct {
	ID        string    `db:"id" json:"id"`
	NIP       *string   `db:"nip" json:"nip,omitempty"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Expertise *string   `db:"expertise" json:"expertise,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AssignmentStatus tracks the lifecycle of a teacher-subject assignment.
type AssignmentStatus string

// Possible assignment statuses.
const (
	AssignmentStatusActive  AssignmentStatus = "ACTIVE"
	AssignmentStatusRevoked AssignmentStatus = "REVOKED"
)

// TeacherAssignment maps a teacher to a subject they deliver. Revoked
// assignments are kept for history, mirroring dropped enrollments.
type TeacherAssignment struct {
	ID         string           `db:"id" json:"id"`
	TeacherID  string           `db:"teacher_id" json:"teacher_id"`
	SubjectID  string           `db:"subject_id" json:"subject_id"`
	AssignedAt time.Time        `db:"assigned_at" json:"assigned_at"`
	Status     AssignmentStatus `db:"status" json:"status"`
	RevokedAt  *time.Time       `db:"revoked_at" json:"revoked_at,omitempty"`
}

// TeacherAssignmentDetail enriches an assignment with display names.
type TeacherAssignmentDetail struct {
	TeacherAssignment
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	SubjectName string `db:"subject_name" json:"subject_name"`
}
