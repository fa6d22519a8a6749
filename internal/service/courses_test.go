package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/student-data-vault/internal/apperror"
	"github.com/sakif/student-data-vault/internal/model"
)

// enroll signs student up for codes through RegisterCourses.
func (e *testEnv) enroll(t *testing.T, student *model.User, codes ...string) {
	t.Helper()
	in := RegisterCoursesInput{}
	for _, c := range codes {
		in.Courses = append(in.Courses, CourseRequest{CourseCode: c})
	}
	_, err := e.courses.RegisterCourses(context.Background(), identity(student), in)
	require.NoError(t, err)
}

// =========================================================================
// STUDENT TESTS
// =========================================================================

func TestRegisterCourses_UpsertsByCode(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.student(t, "sam@school.edu")

	courses, err := e.courses.RegisterCourses(ctx, identity(s), RegisterCoursesInput{Courses: []CourseRequest{
		{CourseCode: "CS101", Teacher: "teacher-1"},
		{CourseCode: "XYZ999", CourseName: "Underwater Basketry"},
	}})
	require.NoError(t, err)
	require.Len(t, courses, 2)

	require.NoError(t, e.db.SetGrade(ctx, s.UserID, "CS101", "A"))

	courses, err = e.courses.RegisterCourses(ctx, identity(s), RegisterCoursesInput{Courses: []CourseRequest{
		{CourseCode: "CS101", Teacher: "teacher-2"},
	}})
	require.NoError(t, err)
	require.Len(t, courses, 2)

	byCode := map[string]model.Enrollment{}
	for _, c := range courses {
		byCode[c.CourseCode] = c
	}
	assert.Equal(t, "Introduction to Computer Science", byCode["CS101"].CourseName)
	assert.Equal(t, "teacher-2", byCode["CS101"].Teacher)
	assert.Equal(t, model.GradeNotGraded, byCode["CS101"].Grade)
	assert.Equal(t, "Underwater Basketry", byCode["XYZ999"].CourseName)

	assert.Equal(t, "register_courses", e.actions(t)[len(e.actions(t))-1])
}

func TestRegisterCourses_Invalid(t *testing.T) {
	e := newTestEnv(t)
	s := e.student(t, "sam@school.edu")

	for _, in := range []RegisterCoursesInput{
		{},
		{Courses: []CourseRequest{}},
		{Courses: []CourseRequest{{CourseName: "No code"}}},
	} {
		_, err := e.courses.RegisterCourses(context.Background(), identity(s), in)
		assertKind(t, err, apperror.ErrValidation, "Valid courses array is required")
	}
}

func TestAvailableCourses(t *testing.T) {
	e := newTestEnv(t)
	s := e.student(t, "sam@school.edu")
	t1 := e.teacher(t, "t1@school.edu", "CS101", "AI301")
	t2 := e.teacher(t, "t2@school.edu", "CS101")

	courses, err := e.courses.AvailableCourses(context.Background(), identity(s))
	require.NoError(t, err)
	require.Len(t, courses, 3)

	assert.Contains(t, courses, model.AvailableCourse{
		CourseCode: "AI301", CourseName: "Artificial Intelligence", Teacher: t1.UserID, TeacherName: "Tia Teacher",
	})
	assert.Contains(t, courses, model.AvailableCourse{
		CourseCode: "CS101", CourseName: "Introduction to Computer Science", Teacher: t2.UserID, TeacherName: "Tia Teacher",
	})
}

func TestRequestDeletion_NotifiesAdmins(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, RegisterInput{FullName: "Ada Admin", Email: "ada@school.edu", Role: "Admin"})
	e.register(t, RegisterInput{FullName: "Bo Admin", Email: "bo@school.edu", Role: "Admin"})
	s := e.student(t, "sam@school.edu")

	require.NoError(t, e.courses.RequestDeletion(ctx, identity(s)))

	stored, err := e.db.GetByUserID(ctx, s.UserID)
	require.NoError(t, err)
	assert.True(t, stored.DeletionRequested)

	for _, addr := range []string{"ada@school.edu", "bo@school.edu"} {
		msgs := e.mail.to(addr)
		require.Len(t, msgs, 2, addr)
		assert.Contains(t, msgs[1].Text, s.UserID)
	}

	actions := e.actions(t)
	assert.Equal(t, "request_deletion", actions[len(actions)-1])
}

func TestRequestDeletion_NotAStudent(t *testing.T) {
	e := newTestEnv(t)
	tch := e.teacher(t, "tia@school.edu", "CS101")

	err := e.courses.RequestDeletion(context.Background(), identity(tch))
	assertKind(t, err, apperror.ErrNotFound, "User not found")
}

func TestResults(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.student(t, "sam@school.edu")
	e.enroll(t, s, "Math101", "DB202")
	require.NoError(t, e.db.SetGrade(ctx, s.UserID, "DB202", "B+"))
	require.NoError(t, e.db.SetGrade(ctx, s.UserID, "Math101", ""))

	res, err := e.courses.Results(ctx, identity(s))
	require.NoError(t, err)
	assert.Equal(t, s.UserID, res.StudentID)
	assert.Equal(t, "Sam Student", res.StudentName)
	assert.Equal(t, "10A", res.Class)

	grades := map[string]string{}
	for _, c := range res.Courses {
		grades[c.CourseCode] = c.Grade
	}
	assert.Equal(t, map[string]string{"Math101": model.GradeNotGradedYet, "DB202": "B+"}, grades)

	actions := e.actions(t)
	assert.Equal(t, "view_own_grades", actions[len(actions)-1])
}

// =========================================================================
// TEACHER TESTS
// =========================================================================

func TestTeachingCourses(t *testing.T) {
	e := newTestEnv(t)
	tch := e.teacher(t, "tia@school.edu", "CS101", "ML401")

	codes, err := e.courses.TeachingCourses(context.Background(), identity(tch))
	require.NoError(t, err)
	assert.Equal(t, []string{"CS101", "ML401"}, codes)

	s := e.student(t, "sam@school.edu")
	_, err = e.courses.TeachingCourses(context.Background(), identity(s))
	assertKind(t, err, apperror.ErrNotFound, "Teacher not found")
}

func TestCourseStudents(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tch := e.teacher(t, "tia@school.edu", "CS101")
	s1 := e.student(t, "s1@school.edu")
	s2 := e.student(t, "s2@school.edu")
	e.enroll(t, s1, "CS101")
	e.enroll(t, s2, "AI301")

	students, err := e.courses.CourseStudents(ctx, identity(tch), "CS101")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, s1.UserID, students[0].UserID)
	assert.Equal(t, model.GradeNotGraded, students[0].Grade)

	_, err = e.courses.CourseStudents(ctx, identity(tch), "AI301")
	assertKind(t, err, apperror.ErrForbidden, "You are not authorized to view students for this course")

	actions := e.actions(t)
	assert.Equal(t, "view_course_students:CS101", actions[len(actions)-1])
}

func TestSetGrade_NotifiesStudentAndParent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tch := e.teacher(t, "tia@school.edu", "CS101")
	s := e.student(t, "sam@school.edu")
	e.register(t, RegisterInput{FullName: "Pat Parent", Email: "pat@home.net", Role: "Parent", LinkedStudentID: s.UserID})
	e.enroll(t, s, "CS101")

	require.NoError(t, e.courses.SetGrade(ctx, identity(tch), s.UserID, GradeInput{CourseCode: "CS101", Grade: "A-"}))

	stored, err := e.db.GetByUserID(ctx, s.UserID)
	require.NoError(t, err)
	require.Len(t, stored.Courses, 1)
	assert.Equal(t, "A-", stored.Courses[0].Grade)

	actions := e.actions(t)
	assert.Equal(t, "update_grade:"+s.UserID+":CS101", actions[len(actions)-1])

	student := e.mail.to("sam@school.edu")
	assert.Equal(t, "Grade Update Notification", student[len(student)-1].Subject)
	parent := e.mail.to("pat@home.net")
	assert.Contains(t, parent[len(parent)-1].Text, "Your child's (Sam Student) grade for CS101 has been updated to: A-")
}

func TestSetGrade_NotTaughtLeavesRecordUntouched(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tch := e.teacher(t, "tia@school.edu", "CS101")
	s := e.student(t, "sam@school.edu")
	e.enroll(t, s, "AI301")
	before := e.actions(t)

	err := e.courses.SetGrade(ctx, identity(tch), s.UserID, GradeInput{CourseCode: "AI301", Grade: "A"})
	assertKind(t, err, apperror.ErrForbidden, "You are not authorized to update grades for this course")

	stored, err := e.db.GetByUserID(ctx, s.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.GradeNotGraded, stored.Courses[0].Grade)
	assert.Equal(t, before, e.actions(t))
}

func TestSetGrade_Errors(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tch := e.teacher(t, "tia@school.edu", "CS101")
	s := e.student(t, "sam@school.edu")

	err := e.courses.SetGrade(ctx, identity(tch), s.UserID, GradeInput{CourseCode: "CS101"})
	assertKind(t, err, apperror.ErrValidation, "Course code and grade are required")

	err = e.courses.SetGrade(ctx, identity(tch), s.UserID, GradeInput{CourseCode: "CS101", Grade: "A"})
	assertKind(t, err, apperror.ErrNotFound, "Student not found or not enrolled in this course")

	err = e.courses.SetGrade(ctx, identity(tch), "student-ffffffff", GradeInput{CourseCode: "CS101", Grade: "A"})
	assertKind(t, err, apperror.ErrNotFound, "Student not found or not enrolled in this course")
}

// =========================================================================
// PARENT TESTS
// =========================================================================

func TestChildRecord(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.student(t, "sam@school.edu")
	p := e.register(t, RegisterInput{FullName: "Pat Parent", Email: "pat@home.net", Role: "Parent", LinkedStudentID: s.UserID})
	e.enroll(t, s, "CS101")

	child, err := e.courses.ChildRecord(ctx, identity(p))
	require.NoError(t, err)
	assert.Equal(t, s.UserID, child.UserID)
	require.Len(t, child.Courses, 1)
	assert.Equal(t, "CS101", child.Courses[0].CourseCode)

	actions := e.actions(t)
	assert.Equal(t, "view_child_data", actions[len(actions)-1])
}

func TestChildRecord_LinkedStudentGone(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.student(t, "sam@school.edu")
	p := e.register(t, RegisterInput{FullName: "Pat Parent", Email: "pat@home.net", Role: "Parent", LinkedStudentID: s.UserID})

	require.NoError(t, e.users.Delete(ctx, admin, s.UserID))

	_, err := e.courses.ChildRecord(ctx, identity(p))
	assertKind(t, err, apperror.ErrNotFound, "Linked student not found")
}

func TestChildRecord_NotAParent(t *testing.T) {
	e := newTestEnv(t)
	s := e.student(t, "sam@school.edu")

	_, err := e.courses.ChildRecord(context.Background(), identity(s))
	assertKind(t, err, apperror.ErrNotFound, "Parent not found")
}
