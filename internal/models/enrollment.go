package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Dropped enrollments keep their row for
// history; only the status flips.
const (
	EnrollmentStatusActive  EnrollmentStatus = "ACTIVE"
	EnrollmentStatusDropped EnrollmentStatus = "DROPPED"
)

// Semester identifies the academic half-year of an enrollment.
type Semester string

// Supported semesters.
const (
	SemesterFirst  Semester = "FIRST"
	SemesterSecond Semester = "SECOND"
)

// Valid reports whether the semester is one of the supported values.
func (s Semester) Valid() bool {
	return s == SemesterFirst || s == SemesterSecond
}

// Enrollment captures a student's claim on one of a subject's seats.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SubjectID  string           `db:"subject_id" json:"subject_id"`
	Semester   Semester         `db:"semester" json:"semester"`
	Year       int              `db:"year" json:"year"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	Fees       float64          `db:"fees" json:"fees"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	DroppedAt  *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
}

// ActiveEnrollment reports whether the enrollment still holds its seat.
func (e *Enrollment) ActiveEnrollment() bool {
	return e.Status == EnrollmentStatusActive
}

// EnrollmentDetail enriches Enrollment with student and subject info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	SubjectName string `db:"subject_name" json:"subject_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SubjectID string
	Status    EnrollmentStatus
	Semester  Semester
	Year      int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
