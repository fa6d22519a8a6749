package repository

import (
	"context"

	"github.com/sakif/student-data-vault/internal/model"
)

// UserRepository persists accounts of every role together with their
// course lists and enrollments.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByUserID(ctx context.Context, userID string) (*model.User, error)
	GetByQRToken(ctx context.Context, token string) (*model.User, error)
	// List returns all users, newest first.
	List(ctx context.Context) ([]model.User, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.User, error)
	// Update rewrites the profile fields and the teacher course list.
	// Enrollments are left alone.
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, userID string) error

	TouchLastLogin(ctx context.Context, userID string) error
	SetQRToken(ctx context.Context, userID, token string) error
	SetDeletionRequested(ctx context.Context, userID string) error
	FindParentOf(ctx context.Context, studentID string) (*model.User, error)

	// UpsertEnrollments adds or replaces courses on a student record, keyed
	// by course code, and returns the student's full course list.
	UpsertEnrollments(ctx context.Context, studentID string, courses []model.Enrollment) ([]model.Enrollment, error)
	// SetGrade updates one enrollment in place. It returns ErrNotFound when
	// the student is not enrolled in courseCode.
	SetGrade(ctx context.Context, studentID, courseCode, grade string) error
	StudentsInCourse(ctx context.Context, courseCode string) ([]model.CourseStudent, error)
}

// SealFunc stamps e.Hash once e.PrevHash has been filled from the chain head.
type SealFunc func(e *model.LogEntry) error

// LogRepository is the append-only activity log. There is no update or
// delete.
type LogRepository interface {
	// Append reads the current chain head, calls seal, and inserts e, all
	// in one transaction. It assigns e.ID and e.Seq.
	Append(ctx context.Context, e *model.LogEntry, seal SealFunc) error
	// ListLogs returns matching entries, newest first.
	ListLogs(ctx context.Context, filter model.LogFilter) ([]model.LogEntry, error)
	// AllLogs returns every entry in insertion order.
	AllLogs(ctx context.Context) ([]model.LogEntry, error)
}
