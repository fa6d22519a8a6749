package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/service"
)

// CourseHandler serves the student, teacher and parent endpoints. Each
// route is mounted behind auth.RequireRole for its one role.
type CourseHandler struct {
	courses *service.CourseService
	logger  *slog.Logger
}

// NewCourseHandler creates a CourseHandler.
func NewCourseHandler(courses *service.CourseService, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{courses: courses, logger: logger}
}

type registerCoursesResponse struct {
	Message string             `json:"message"`
	Courses []model.Enrollment `json:"courses"`
}

// HandleRegisterCourses signs the caller up for courses.
//
// HTTP: PATCH /api/users/register-courses
func (h *CourseHandler) HandleRegisterCourses(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var req service.RegisterCoursesInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	courses, err := h.courses.RegisterCourses(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, registerCoursesResponse{Message: "Courses registered successfully", Courses: courses})
}

// HandleAvailable lists every course some teacher offers.
//
// HTTP: GET /api/users/courses/available
func (h *CourseHandler) HandleAvailable(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	courses, err := h.courses.AvailableCourses(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

// HandleRequestDeletion flags the caller's record for deletion.
//
// HTTP: POST /api/users/delete
func (h *CourseHandler) HandleRequestDeletion(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.courses.RequestDeletion(r.Context(), actor); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Deletion request submitted successfully"})
}

// HandleResults returns the caller's grade report.
//
// HTTP: GET /api/users/result/result
func (h *CourseHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	res, err := h.courses.Results(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleTeaching lists the caller's course codes.
//
// HTTP: GET /api/users/courses/teaching
func (h *CourseHandler) HandleTeaching(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	codes, err := h.courses.TeachingCourses(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

// HandleCourseStudents lists the class for one of the caller's courses.
//
// HTTP: GET /api/users/courses/{courseCode}/students
func (h *CourseHandler) HandleCourseStudents(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	students, err := h.courses.CourseStudents(r.Context(), actor, chi.URLParam(r, "courseCode"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

// HandleSetGrade records a grade.
//
// HTTP: PATCH /api/users/{id}/grades
// REQUEST BODY: {"courseCode": "CS101", "grade": "A"}
func (h *CourseHandler) HandleSetGrade(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var req service.GradeInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.courses.SetGrade(r.Context(), actor, chi.URLParam(r, "id"), req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Grade updated successfully"})
}

// HandleChild returns the caller's linked student.
//
// HTTP: GET /api/users/parent/student
func (h *CourseHandler) HandleChild(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	child, err := h.courses.ChildRecord(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}
