package model

// Grade placeholders. An enrollment starts as GradeNotGraded; reports show
// GradeNotGradedYet when the stored grade is empty.
const (
	GradeNotGraded    = "Not graded"
	GradeNotGradedYet = "Not graded yet"
)

// Enrollment is one course on a student's record.
type Enrollment struct {
	CourseCode string `json:"courseCode"`
	CourseName string `json:"courseName"`
	Teacher    string `json:"teacher"`
	Grade      string `json:"grade"`
}

// catalog maps the known course codes to their display names.
var catalog = map[string]string{
	"Math101": "Calculus I",
	"Math102": "Linear Algebra",
	"CS101":   "Introduction to Computer Science",
	"PF502":   "Programming Fundamentals",
	"AI301":   "Artificial Intelligence",
	"DB202":   "Database Systems",
	"ML401":   "Machine Learning",
}

// CourseName returns the catalog name for code, or code itself when unknown.
func CourseName(code string) string {
	if name, ok := catalog[code]; ok {
		return name
	}
	return code
}

// AvailableCourse is a course offered by a specific teacher.
type AvailableCourse struct {
	CourseCode  string `json:"courseCode"`
	CourseName  string `json:"courseName"`
	Teacher     string `json:"teacher"`
	TeacherName string `json:"teacherName"`
}

// CourseStudent is one row of a teacher's class list.
type CourseStudent struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
	Class    string `json:"class"`
	Grade    string `json:"grade"`
}
