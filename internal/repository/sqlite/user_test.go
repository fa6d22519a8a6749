package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/student-data-vault/internal/apperror"
	"github.com/sakif/student-data-vault/internal/model"
)

// newTestDB opens a fresh in-memory database that is closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var testSeq int

// createTestUser inserts a user of role with a unique id and QR token.
func createTestUser(t *testing.T, db *DB, role model.Role, mutate ...func(*model.User)) *model.User {
	t.Helper()
	testSeq++
	u := &model.User{
		UserID:         fmt.Sprintf("%s-%08x", role.Prefix(), testSeq),
		FullName:       fmt.Sprintf("%s %d", role, testSeq),
		EncryptedEmail: "deadbeef",
		EmailIV:        "00000000000000000000000000000000",
		Role:           role,
		QRToken:        fmt.Sprintf("qr-%d", testSeq),
	}
	for _, m := range mutate {
		m(u)
	}
	if err := db.Create(context.Background(), u); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// =========================================================================
// CREATE / GET TESTS
// =========================================================================

func TestUserCreate_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	teacher := createTestUser(t, db, model.RoleTeacher, func(u *model.User) {
		u.CoursesTeaching = []string{"CS101", "AI301"}
		u.PasswordHash = "$2a$04$hash"
	})

	got, err := db.GetByUserID(ctx, teacher.UserID)
	require.NoError(t, err)

	assert.Equal(t, teacher.FullName, got.FullName)
	assert.Equal(t, model.RoleTeacher, got.Role)
	assert.Equal(t, []string{"CS101", "AI301"}, got.CoursesTeaching)
	assert.Equal(t, "$2a$04$hash", got.PasswordHash)
	assert.Nil(t, got.LastLogin)
	assert.False(t, got.DeletionRequested)
	assert.WithinDuration(t, teacher.CreatedAt, got.CreatedAt, time.Second)
}

func TestUserCreate_ParentSnapshot(t *testing.T) {
	db := newTestDB(t)
	student := createTestUser(t, db, model.RoleStudent, func(u *model.User) { u.Class = "10A" })
	parent := createTestUser(t, db, model.RoleParent, func(u *model.User) {
		u.LinkedStudentID = student.UserID
		u.LinkedStudent = &model.StudentSnapshot{UserID: student.UserID, FullName: student.FullName, Class: "10A"}
	})

	got, err := db.GetByUserID(context.Background(), parent.UserID)
	require.NoError(t, err)
	require.NotNil(t, got.LinkedStudent)
	assert.Equal(t, student.FullName, got.LinkedStudent.FullName)
	assert.Equal(t, "10A", got.LinkedStudent.Class)
}

func TestUserCreate_DuplicateQRToken(t *testing.T) {
	db := newTestDB(t)
	first := createTestUser(t, db, model.RoleAdmin)

	dup := &model.User{
		UserID:   "admin-ffffffff",
		FullName: "Dup",
		Role:     model.RoleAdmin,
		QRToken:  first.QRToken,
	}
	err := db.Create(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() error = %v, want ErrConflict", err)
	}
}

func TestGetByUserID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByUserID(context.Background(), "student-00000000")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByUserID() error = %v, want ErrNotFound", err)
	}
}

func TestGetByQRToken(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, model.RoleStudent)

	got, err := db.GetByQRToken(context.Background(), u.QRToken)
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)

	_, err = db.GetByQRToken(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestList_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		u := createTestUser(t, db, model.RoleStudent, func(u *model.User) {
			u.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		})
		ids = append(ids, u.UserID)
	}

	users, err := db.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, ids[2], users[0].UserID)
	assert.Equal(t, ids[0], users[2].UserID)
}

func TestListByRole(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, model.RoleAdmin)
	createTestUser(t, db, model.RoleTeacher, func(u *model.User) { u.CoursesTeaching = []string{"DB202"} })
	createTestUser(t, db, model.RoleTeacher, func(u *model.User) { u.CoursesTeaching = []string{"ML401"} })

	teachers, err := db.ListByRole(context.Background(), model.RoleTeacher)
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.Equal(t, []string{"DB202"}, teachers[0].CoursesTeaching)
	assert.Equal(t, []string{"ML401"}, teachers[1].CoursesTeaching)
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdate_ReplacesTeacherCourses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	teacher := createTestUser(t, db, model.RoleTeacher, func(u *model.User) { u.CoursesTeaching = []string{"CS101"} })

	teacher.FullName = "Renamed"
	teacher.CoursesTeaching = []string{"PF502", "CS101"}
	require.NoError(t, db.Update(ctx, teacher))

	got, err := db.GetByUserID(ctx, teacher.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.FullName)
	assert.ElementsMatch(t, []string{"PF502", "CS101"}, got.CoursesTeaching)
}

func TestUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.Update(context.Background(), &model.User{UserID: "admin-missing", Role: model.RoleAdmin})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDelete_RemovesRelations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	student := createTestUser(t, db, model.RoleStudent, func(u *model.User) {
		u.Courses = []model.Enrollment{{CourseCode: "CS101", Grade: model.GradeNotGraded}}
	})

	require.NoError(t, db.Delete(ctx, student.UserID))

	_, err := db.GetByUserID(ctx, student.UserID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	students, err := db.StudentsInCourse(ctx, "CS101")
	require.NoError(t, err)
	assert.Empty(t, students)

	assert.ErrorIs(t, db.Delete(ctx, student.UserID), apperror.ErrNotFound)
}

func TestFlagsAndTokens(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, model.RoleStudent)

	require.NoError(t, db.TouchLastLogin(ctx, u.UserID))
	require.NoError(t, db.SetDeletionRequested(ctx, u.UserID))
	require.NoError(t, db.SetQRToken(ctx, u.UserID, "fresh-token"))

	got, err := db.GetByUserID(ctx, u.UserID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastLogin)
	assert.True(t, got.DeletionRequested)
	assert.Equal(t, "fresh-token", got.QRToken)

	assert.ErrorIs(t, db.TouchLastLogin(ctx, "nobody"), apperror.ErrNotFound)
}

func TestFindParentOf(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	student := createTestUser(t, db, model.RoleStudent)
	parent := createTestUser(t, db, model.RoleParent, func(u *model.User) { u.LinkedStudentID = student.UserID })

	got, err := db.FindParentOf(ctx, student.UserID)
	require.NoError(t, err)
	assert.Equal(t, parent.UserID, got.UserID)

	_, err = db.FindParentOf(ctx, "student-without-parent")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// ENROLLMENT / GRADE TESTS
// =========================================================================

func TestUpsertEnrollments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	student := createTestUser(t, db, model.RoleStudent)

	courses, err := db.UpsertEnrollments(ctx, student.UserID, []model.Enrollment{
		{CourseCode: "CS101", CourseName: "Intro", Teacher: "teacher-1", Grade: model.GradeNotGraded},
		{CourseCode: "AI301", CourseName: "AI", Teacher: "teacher-2", Grade: model.GradeNotGraded},
	})
	require.NoError(t, err)
	require.Len(t, courses, 2)

	require.NoError(t, db.SetGrade(ctx, student.UserID, "CS101", "A"))

	// Re-registering an existing course replaces it, grade included.
	courses, err = db.UpsertEnrollments(ctx, student.UserID, []model.Enrollment{
		{CourseCode: "CS101", CourseName: "Intro", Teacher: "teacher-3", Grade: model.GradeNotGraded},
	})
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "CS101", courses[0].CourseCode)
	assert.Equal(t, "teacher-3", courses[0].Teacher)
	assert.Equal(t, model.GradeNotGraded, courses[0].Grade)
}

func TestUpsertEnrollments_NotAStudent(t *testing.T) {
	db := newTestDB(t)
	teacher := createTestUser(t, db, model.RoleTeacher)

	_, err := db.UpsertEnrollments(context.Background(), teacher.UserID, []model.Enrollment{{CourseCode: "CS101"}})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSetGrade_NotEnrolled(t *testing.T) {
	db := newTestDB(t)
	student := createTestUser(t, db, model.RoleStudent)

	err := db.SetGrade(context.Background(), student.UserID, "CS101", "B")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSetGrade_ConcurrentCoursesDoNotClobber(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	codes := []string{"CS101", "AI301", "DB202", "ML401", "PF502"}
	var courses []model.Enrollment
	for _, c := range codes {
		courses = append(courses, model.Enrollment{CourseCode: c, Grade: model.GradeNotGraded})
	}
	student := createTestUser(t, db, model.RoleStudent, func(u *model.User) { u.Courses = courses })

	var wg sync.WaitGroup
	for _, c := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			assert.NoError(t, db.SetGrade(ctx, student.UserID, code, "grade-"+code))
		}(c)
	}
	wg.Wait()

	got, err := db.GetByUserID(ctx, student.UserID)
	require.NoError(t, err)
	for _, e := range got.Courses {
		assert.Equal(t, "grade-"+e.CourseCode, e.Grade)
	}
}

func TestStudentsInCourse(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	enrolled := createTestUser(t, db, model.RoleStudent, func(u *model.User) {
		u.Class = "9B"
		u.Courses = []model.Enrollment{{CourseCode: "ML401", Grade: ""}}
	})
	createTestUser(t, db, model.RoleStudent, func(u *model.User) {
		u.Courses = []model.Enrollment{{CourseCode: "CS101", Grade: "A"}}
	})

	students, err := db.StudentsInCourse(ctx, "ML401")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, enrolled.UserID, students[0].UserID)
	assert.Equal(t, "9B", students[0].Class)
	assert.Equal(t, model.GradeNotGraded, students[0].Grade)
}
