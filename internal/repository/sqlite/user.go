package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/student-data-vault/internal/apperror"
	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `user_id, full_name, encrypted_email, email_iv, password_hash, role,
	qr_token, class, linked_student_id, linked_student_name, linked_student_class,
	deletion_requested, last_login, created_at`

// Create inserts a user with its teacher courses and enrollments.
// A duplicate user id or QR token is reported as a conflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.CreatedAt = user.CreatedAt.UTC()

	var linkedName, linkedClass string
	if user.LinkedStudent != nil {
		linkedName = user.LinkedStudent.FullName
		linkedClass = user.LinkedStudent.Class
	}

	return db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			user.UserID,
			user.FullName,
			user.EncryptedEmail,
			user.EmailIV,
			user.PasswordHash,
			string(user.Role),
			user.QRToken,
			user.Class,
			user.LinkedStudentID,
			linkedName,
			linkedClass,
			user.DeletionRequested,
			nullTime(user.LastLogin),
			user.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("user", user.UserID)
			}
			return fmt.Errorf("sqlite: inserting user %s: %w", user.UserID, err)
		}

		if err := replaceTeacherCourses(ctx, tx, user.UserID, user.CoursesTeaching); err != nil {
			return err
		}
		for _, c := range user.Courses {
			if err := upsertEnrollment(ctx, tx, user.UserID, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByUserID returns the user with all relations loaded.
func (db *DB) GetByUserID(ctx context.Context, userID string) (*model.User, error) {
	return db.getOne(ctx, `WHERE user_id = ?`, userID, apperror.NotFound("user", userID))
}

// GetByQRToken returns the user holding token.
func (db *DB) GetByQRToken(ctx context.Context, token string) (*model.User, error) {
	return db.getOne(ctx, `WHERE qr_token = ?`, token, apperror.Missing("no user holds this QR token"))
}

// FindParentOf returns the first parent linked to studentID.
func (db *DB) FindParentOf(ctx context.Context, studentID string) (*model.User, error) {
	return db.getOne(ctx,
		`WHERE role = 'Parent' AND linked_student_id = ? ORDER BY created_at LIMIT 1`,
		studentID, apperror.Missing("no parent linked to this student"))
}

func (db *DB) getOne(ctx context.Context, where string, arg any, notFound error) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}

	users := []*model.User{u}
	if err := loadRelations(ctx, db.conn, users); err != nil {
		return nil, err
	}
	return u, nil
}

// List returns every user, newest first.
func (db *DB) List(ctx context.Context) ([]model.User, error) {
	return db.list(ctx, `ORDER BY created_at DESC, rowid DESC`)
}

// ListByRole returns users of one role, oldest first.
func (db *DB) ListByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	return db.list(ctx, `WHERE role = ? ORDER BY created_at, rowid`, string(role))
}

func (db *DB) list(ctx context.Context, tail string, args ...any) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}

	var ptrs []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		ptrs = append(ptrs, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	// The pool has a single connection; release it before the next query.
	rows.Close()

	if err := loadRelations(ctx, db.conn, ptrs); err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(ptrs))
	for _, u := range ptrs {
		users = append(users, *u)
	}
	return users, nil
}

// Update rewrites the mutable profile fields and the teacher course list.
func (db *DB) Update(ctx context.Context, user *model.User) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET full_name = ?, encrypted_email = ?, email_iv = ?,
			        password_hash = ?, role = ?, class = ?
			 WHERE user_id = ?`,
			user.FullName,
			user.EncryptedEmail,
			user.EmailIV,
			user.PasswordHash,
			string(user.Role),
			user.Class,
			user.UserID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.UserID, err)
		}
		if err := expectOneRow(res, apperror.NotFound("user", user.UserID)); err != nil {
			return err
		}
		return replaceTeacherCourses(ctx, tx, user.UserID, user.CoursesTeaching)
	})
}

// Delete removes a user and everything that hangs off it.
func (db *DB) Delete(ctx context.Context, userID string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM enrollments WHERE student_id = ?`,
			`DELETE FROM teacher_courses WHERE teacher_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, userID); err != nil {
				return fmt.Errorf("sqlite: deleting relations of %s: %w", userID, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("sqlite: deleting user %s: %w", userID, err)
		}
		return expectOneRow(res, apperror.NotFound("user", userID))
	})
}

func (db *DB) TouchLastLogin(ctx context.Context, userID string) error {
	return db.execOne(ctx, apperror.NotFound("user", userID),
		`UPDATE users SET last_login = ? WHERE user_id = ?`, time.Now().UTC(), userID)
}

func (db *DB) SetQRToken(ctx context.Context, userID, token string) error {
	err := db.execOne(ctx, apperror.NotFound("user", userID),
		`UPDATE users SET qr_token = ? WHERE user_id = ?`, token, userID)
	if err != nil && isUniqueViolation(err) {
		return apperror.Conflict("qr token for user", userID)
	}
	return err
}

func (db *DB) SetDeletionRequested(ctx context.Context, userID string) error {
	return db.execOne(ctx, apperror.NotFound("user", userID),
		`UPDATE users SET deletion_requested = 1 WHERE user_id = ?`, userID)
}

// UpsertEnrollments adds or replaces each course by code, then returns the
// student's full course list in enrollment order.
func (db *DB) UpsertEnrollments(ctx context.Context, studentID string, courses []model.Enrollment) ([]model.Enrollment, error) {
	var out []model.Enrollment
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var role string
		err := tx.QueryRowContext(ctx, `SELECT role FROM users WHERE user_id = ?`, studentID).Scan(&role)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && role != string(model.RoleStudent)) {
			return apperror.Missing("Student not found")
		}
		if err != nil {
			return fmt.Errorf("sqlite: looking up student %s: %w", studentID, err)
		}

		for _, c := range courses {
			if err := upsertEnrollment(ctx, tx, studentID, c); err != nil {
				return err
			}
		}

		byID, err := enrollmentsFor(ctx, tx, []string{studentID})
		if err != nil {
			return err
		}
		out = byID[studentID]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetGrade changes one grade in a single statement.
func (db *DB) SetGrade(ctx context.Context, studentID, courseCode, grade string) error {
	return db.execOne(ctx, apperror.Missing("Student not found or not enrolled in this course"),
		`UPDATE enrollments SET grade = ?
		 WHERE student_id = ? AND course_code = ?
		   AND student_id IN (SELECT user_id FROM users WHERE role = 'Student')`,
		grade, studentID, courseCode)
}

// StudentsInCourse lists every student enrolled in courseCode.
func (db *DB) StudentsInCourse(ctx context.Context, courseCode string) ([]model.CourseStudent, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.user_id, u.full_name, u.class, e.grade
		 FROM enrollments e JOIN users u ON u.user_id = e.student_id
		 WHERE e.course_code = ? AND u.role = 'Student'
		 ORDER BY u.created_at, u.rowid`,
		courseCode,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing students in %s: %w", courseCode, err)
	}
	defer rows.Close()

	students := make([]model.CourseStudent, 0)
	for rows.Next() {
		var s model.CourseStudent
		if err := rows.Scan(&s.UserID, &s.FullName, &s.Class, &s.Grade); err != nil {
			return nil, fmt.Errorf("sqlite: scanning course student: %w", err)
		}
		if s.Grade == "" {
			s.Grade = model.GradeNotGraded
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// =========================================================================
// helpers
// =========================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                       model.User
		role                    string
		linkedName, linkedClass string
		lastLogin               sql.NullTime
	)
	err := row.Scan(
		&u.UserID,
		&u.FullName,
		&u.EncryptedEmail,
		&u.EmailIV,
		&u.PasswordHash,
		&role,
		&u.QRToken,
		&u.Class,
		&u.LinkedStudentID,
		&linkedName,
		&linkedClass,
		&u.DeletionRequested,
		&lastLogin,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	if u.LinkedStudentID != "" {
		u.LinkedStudent = &model.StudentSnapshot{
			UserID:   u.LinkedStudentID,
			FullName: linkedName,
			Class:    linkedClass,
		}
	}
	return &u, nil
}

// loadRelations fills CoursesTeaching and Courses on every user.
func loadRelations(ctx context.Context, q querier, users []*model.User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}

	teaching, err := teacherCoursesFor(ctx, q, ids)
	if err != nil {
		return err
	}
	enrolled, err := enrollmentsFor(ctx, q, ids)
	if err != nil {
		return err
	}

	for _, u := range users {
		u.CoursesTeaching = teaching[u.UserID]
		u.Courses = enrolled[u.UserID]
	}
	return nil
}

func teacherCoursesFor(ctx context.Context, q querier, ids []string) (map[string][]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT teacher_id, course_code FROM teacher_courses
		 WHERE teacher_id IN (`+placeholders(len(ids))+`) ORDER BY rowid`,
		toArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading teacher courses: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var id, code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, fmt.Errorf("sqlite: scanning teacher course: %w", err)
		}
		out[id] = append(out[id], code)
	}
	return out, rows.Err()
}

func enrollmentsFor(ctx context.Context, q querier, ids []string) (map[string][]model.Enrollment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT student_id, course_code, course_name, teacher, grade FROM enrollments
		 WHERE student_id IN (`+placeholders(len(ids))+`) ORDER BY rowid`,
		toArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading enrollments: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Enrollment)
	for rows.Next() {
		var id string
		var e model.Enrollment
		if err := rows.Scan(&id, &e.CourseCode, &e.CourseName, &e.Teacher, &e.Grade); err != nil {
			return nil, fmt.Errorf("sqlite: scanning enrollment: %w", err)
		}
		out[id] = append(out[id], e)
	}
	return out, rows.Err()
}

func replaceTeacherCourses(ctx context.Context, q querier, teacherID string, codes []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM teacher_courses WHERE teacher_id = ?`, teacherID); err != nil {
		return fmt.Errorf("sqlite: clearing courses of %s: %w", teacherID, err)
	}
	for _, code := range codes {
		_, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO teacher_courses (teacher_id, course_code) VALUES (?, ?)`,
			teacherID, code)
		if err != nil {
			return fmt.Errorf("sqlite: adding course %s to %s: %w", code, teacherID, err)
		}
	}
	return nil
}

func upsertEnrollment(ctx context.Context, q querier, studentID string, c model.Enrollment) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO enrollments (student_id, course_code, course_name, teacher, grade)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (student_id, course_code) DO UPDATE SET
		   course_name = excluded.course_name,
		   teacher     = excluded.teacher,
		   grade       = excluded.grade`,
		studentID, c.CourseCode, c.CourseName, c.Teacher, c.Grade)
	if err != nil {
		return fmt.Errorf("sqlite: enrolling %s in %s: %w", studentID, c.CourseCode, err)
	}
	return nil
}

func (db *DB) execOne(ctx context.Context, notFound error, query string, args ...any) error {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return expectOneRow(res, notFound)
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
