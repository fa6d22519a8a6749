package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/student-data-vault/internal/apperror"
	"github.com/sakif/student-data-vault/internal/auth"
	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/notify"
	"github.com/sakif/student-data-vault/internal/repository"
)

// CourseService implements the student, teacher and parent views of
// courses and grades.
type CourseService struct {
	users  repository.UserRepository
	audit  Recorder
	mail   mailer
	logger *slog.Logger
}

// NewCourseService creates a CourseService.
func NewCourseService(d Deps) *CourseService {
	return &CourseService{
		users:  d.Users,
		audit:  d.Audit,
		mail:   newMailer(d),
		logger: d.Logger,
	}
}

// loadRole fetches userID and checks it holds role. Absence or a role
// mismatch yields notFound.
func (s *CourseService) loadRole(ctx context.Context, userID string, role model.Role, notFound string) (*model.User, error) {
	u, err := s.users.GetByUserID(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) || (err == nil && u.Role != role) {
		return nil, apperror.Missing(notFound)
	}
	if err != nil {
		return nil, fmt.Errorf("service/courses: fetching %s: %w", userID, err)
	}
	return u, nil
}

// ---- students ----

// CourseRequest names one course a student signs up for.
type CourseRequest struct {
	CourseCode string `json:"courseCode" validate:"required"`
	CourseName string `json:"courseName"`
	Teacher    string `json:"teacher"`
}

// RegisterCoursesInput is the body of a course registration.
type RegisterCoursesInput struct {
	Courses []CourseRequest `json:"courses" validate:"required,min=1,dive"`
}

var registerCoursesMessages = messages{
	"courses":    "Valid courses array is required",
	"courseCode": "Valid courses array is required",
}

// RegisterCourses adds courses to the caller's record. A course already on
// the record is replaced and its grade reset.
func (s *CourseService) RegisterCourses(ctx context.Context, actor auth.Identity, in RegisterCoursesInput) ([]model.Enrollment, error) {
	if err := check(in, registerCoursesMessages); err != nil {
		return nil, err
	}

	enrollments := make([]model.Enrollment, 0, len(in.Courses))
	for _, c := range in.Courses {
		name := c.CourseName
		if name == "" {
			name = model.CourseName(c.CourseCode)
		}
		enrollments = append(enrollments, model.Enrollment{
			CourseCode: c.CourseCode,
			CourseName: name,
			Teacher:    c.Teacher,
			Grade:      model.GradeNotGraded,
		})
	}

	courses, err := s.users.UpsertEnrollments(ctx, actor.UserID, enrollments)
	if err != nil {
		return nil, fmt.Errorf("service/courses: registering courses for %s: %w", actor.UserID, err)
	}

	if err := record(ctx, s.audit, actor, "register_courses"); err != nil {
		return nil, err
	}
	return courses, nil
}

// AvailableCourses lists every (teacher, course) pair.
func (s *CourseService) AvailableCourses(ctx context.Context, actor auth.Identity) ([]model.AvailableCourse, error) {
	teachers, err := s.users.ListByRole(ctx, model.RoleTeacher)
	if err != nil {
		return nil, fmt.Errorf("service/courses: listing teachers: %w", err)
	}

	courses := []model.AvailableCourse{}
	for _, t := range teachers {
		for _, code := range t.CoursesTeaching {
			courses = append(courses, model.AvailableCourse{
				CourseCode:  code,
				CourseName:  model.CourseName(code),
				Teacher:     t.UserID,
				TeacherName: t.FullName,
			})
		}
	}

	if err := record(ctx, s.audit, actor, "view_available_courses"); err != nil {
		return nil, err
	}
	return courses, nil
}

// RequestDeletion flags the caller's record and tells every admin.
func (s *CourseService) RequestDeletion(ctx context.Context, actor auth.Identity) error {
	student, err := s.loadRole(ctx, actor.UserID, model.RoleStudent, "User not found")
	if err != nil {
		return err
	}
	if err := s.users.SetDeletionRequested(ctx, student.UserID); err != nil {
		return fmt.Errorf("service/courses: flagging %s for deletion: %w", student.UserID, err)
	}

	if err := record(ctx, s.audit, actor, "request_deletion"); err != nil {
		return err
	}

	admins, err := s.users.ListByRole(ctx, model.RoleAdmin)
	if err != nil {
		s.logger.WarnContext(ctx, "cannot list admins for deletion request", slog.String("error", err.Error()))
		return nil
	}
	for i := range admins {
		s.mail.sendTo(ctx, &admins[i], func(to string) notify.Message {
			return notify.DataRequest(to, student.FullName, student.UserID)
		})
	}
	return nil
}

// StudentResult is a student's own grade report.
type StudentResult struct {
	StudentID   string             `json:"studentId"`
	StudentName string             `json:"studentName"`
	Class       string             `json:"class"`
	Courses     []model.Enrollment `json:"courses"`
}

// Results returns the caller's courses and grades. Missing names fall back
// to the catalog, missing grades to "Not graded yet".
func (s *CourseService) Results(ctx context.Context, actor auth.Identity) (*StudentResult, error) {
	student, err := s.loadRole(ctx, actor.UserID, model.RoleStudent, "Student not found")
	if err != nil {
		return nil, err
	}

	courses := make([]model.Enrollment, 0, len(student.Courses))
	for _, c := range student.Courses {
		if c.CourseName == "" {
			c.CourseName = model.CourseName(c.CourseCode)
		}
		if c.Grade == "" {
			c.Grade = model.GradeNotGradedYet
		}
		courses = append(courses, c)
	}

	if err := record(ctx, s.audit, actor, "view_own_grades"); err != nil {
		return nil, err
	}

	return &StudentResult{
		StudentID:   student.UserID,
		StudentName: student.FullName,
		Class:       student.Class,
		Courses:     courses,
	}, nil
}

// ---- teachers ----

// TeachingCourses returns the caller's course codes.
func (s *CourseService) TeachingCourses(ctx context.Context, actor auth.Identity) ([]string, error) {
	teacher, err := s.loadRole(ctx, actor.UserID, model.RoleTeacher, "Teacher not found")
	if err != nil {
		return nil, err
	}
	if err := record(ctx, s.audit, actor, "view_teaching_courses"); err != nil {
		return nil, err
	}
	if teacher.CoursesTeaching == nil {
		return []string{}, nil
	}
	return teacher.CoursesTeaching, nil
}

// teacherFor loads the caller and checks they teach courseCode.
func (s *CourseService) teacherFor(ctx context.Context, actor auth.Identity, courseCode, denied string) (*model.User, error) {
	teacher, err := s.loadRole(ctx, actor.UserID, model.RoleTeacher, "Teacher not found")
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Forbidden(denied)
	}
	if err != nil {
		return nil, err
	}
	if !teacher.Teaches(courseCode) {
		return nil, apperror.Forbidden(denied)
	}
	return teacher, nil
}

// CourseStudents lists the students enrolled in one of the caller's courses.
func (s *CourseService) CourseStudents(ctx context.Context, actor auth.Identity, courseCode string) ([]model.CourseStudent, error) {
	if _, err := s.teacherFor(ctx, actor, courseCode, "You are not authorized to view students for this course"); err != nil {
		return nil, err
	}

	students, err := s.users.StudentsInCourse(ctx, courseCode)
	if err != nil {
		return nil, fmt.Errorf("service/courses: listing students in %s: %w", courseCode, err)
	}
	if students == nil {
		students = []model.CourseStudent{}
	}

	if err := record(ctx, s.audit, actor, "view_course_students:"+courseCode); err != nil {
		return nil, err
	}
	return students, nil
}

// GradeInput is the body of a grade update.
type GradeInput struct {
	CourseCode string `json:"courseCode" validate:"required"`
	Grade      string `json:"grade" validate:"required"`
}

var gradeMessages = messages{
	"courseCode": "Course code and grade are required",
	"grade":      "Course code and grade are required",
}

// SetGrade records a grade for one student in one of the caller's
// courses, then notifies the student and their parent.
//
// The teaching check happens before anything is read or written, so a
// teacher outside the course learns nothing and changes nothing.
func (s *CourseService) SetGrade(ctx context.Context, actor auth.Identity, studentID string, in GradeInput) error {
	if err := check(in, gradeMessages); err != nil {
		return err
	}

	if _, err := s.teacherFor(ctx, actor, in.CourseCode, "You are not authorized to update grades for this course"); err != nil {
		return err
	}

	const notEnrolled = "Student not found or not enrolled in this course"
	student, err := s.loadRole(ctx, studentID, model.RoleStudent, notEnrolled)
	if err != nil {
		return err
	}

	if err := s.users.SetGrade(ctx, studentID, in.CourseCode, in.Grade); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.Missing(notEnrolled)
		}
		return fmt.Errorf("service/courses: setting grade for %s: %w", studentID, err)
	}

	if err := record(ctx, s.audit, actor, fmt.Sprintf("update_grade:%s:%s", studentID, in.CourseCode)); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "grade updated",
		slog.String("studentID", studentID),
		slog.String("course", in.CourseCode),
		slog.String("teacherID", actor.UserID),
	)

	s.mail.sendTo(ctx, student, func(to string) notify.Message {
		return notify.GradeUpdated(to, student.FullName, in.CourseCode, in.Grade)
	})

	parent, err := s.users.FindParentOf(ctx, studentID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
	case err != nil:
		s.logger.WarnContext(ctx, "cannot look up parent for grade notice",
			slog.String("studentID", studentID),
			slog.String("error", err.Error()),
		)
	default:
		s.mail.sendTo(ctx, parent, func(to string) notify.Message {
			return notify.ChildGradeUpdated(to, parent.FullName, student.FullName, in.CourseCode, in.Grade)
		})
	}
	return nil
}

// ---- parents ----

// ChildRecord is the view of a student a parent gets.
type ChildRecord struct {
	UserID   string             `json:"userId"`
	FullName string             `json:"fullName"`
	Class    string             `json:"class"`
	Courses  []model.Enrollment `json:"courses"`
}

// ChildRecord returns the caller's linked student with live grades.
func (s *CourseService) ChildRecord(ctx context.Context, actor auth.Identity) (*ChildRecord, error) {
	parent, err := s.loadRole(ctx, actor.UserID, model.RoleParent, "Parent not found")
	if err != nil {
		return nil, err
	}
	if parent.LinkedStudentID == "" {
		return nil, apperror.Missing("No linked student found")
	}

	student, err := s.loadRole(ctx, parent.LinkedStudentID, model.RoleStudent, "Linked student not found")
	if err != nil {
		return nil, err
	}

	if err := record(ctx, s.audit, actor, "view_child_data"); err != nil {
		return nil, err
	}

	courses := student.Courses
	if courses == nil {
		courses = []model.Enrollment{}
	}
	return &ChildRecord{
		UserID:   student.UserID,
		FullName: student.FullName,
		Class:    student.Class,
		Courses:  courses,
	}, nil
}
