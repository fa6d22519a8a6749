package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// LoginMethod says how a user signed in, for the login notice.
type LoginMethod int

const (
	LoginByQR LoginMethod = iota
	LoginByPassword
)

var htmlTemplates = template.Must(template.New("mail").Parse(`
{{define "login"}}<h2>Login Notification</h2>
<p>Hi {{.Name}},</p>
<p>Your account was successfully accessed on {{.When}} {{if .ByQR}}by QR smart card{{else}}using email/password login{{end}}.</p>
<p>{{if .ByQR}}If this wasn't you, please contact support immediately.{{else}}If this wasn't you, please change your password immediately.{{end}}</p>{{end}}

{{define "welcome"}}<h2>Welcome to the Student Data Vault!</h2>
<p>Hello {{.Name}},</p>
<p>Your account has been created successfully with the role of <strong>{{.Role}}</strong>.</p>
<p>Your User ID is: <strong>{{.UserID}}</strong></p>
<p>Please collect your QR login card from the admin office.</p>
<p>If you have any questions, please contact the administrator.</p>{{end}}

{{define "updated"}}<h2>Account Update Notification</h2>
<p>Hello {{.Name}},</p>
<p>Your account information has been updated by an administrator.</p>
{{if .PasswordReset}}<p><strong>Your password has been reset.</strong> If you did not request this change, please contact support immediately.</p>{{else}}<p>If you did not expect this change, please contact Admin.</p>{{end}}{{end}}

{{define "deleted"}}<h2>Account Deletion Notification</h2>
<p>Hello {{.Name}},</p>
<p>Your account has been deleted from the Student Data Vault system.</p>
<p>If you did not expect this action, please contact support.</p>{{end}}

{{define "newqr"}}<h2>Your New QR Code</h2>
<p>Hello {{.Name}},</p>
<p>A new QR code has been generated for your account. Collect your card from the admin office.</p>
<p>If you did not request this change, please contact support immediately.</p>{{end}}

{{define "request"}}<h2>GDPR Request Notification</h2>
<p>Hello Administrator,</p>
<p>Student {{.Name}} ({{.UserID}}) has submitted a data request.</p>
<p>Please review this request.</p>{{end}}

{{define "grade"}}<h2>Grade Update Notification</h2>
<p>Hello {{.Name}},</p>
<p>{{if .Child}}Your child's ({{.Child}}) grade{{else}}Your grade{{end}} for {{.Course}} has been updated to: <strong>{{.Grade}}</strong></p>
<p>If you have any questions, please contact {{if .Child}}the{{else}}your{{end}} teacher.</p>{{end}}
`))

type mailData struct {
	Name          string
	When          string
	ByQR          bool
	Role          string
	UserID        string
	PasswordReset bool
	Child         string
	Course        string
	Grade         string
}

func render(name string, d mailData) string {
	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, name, d); err != nil {
		// Templates are fixed at compile time; a failure here is a programming error.
		panic(fmt.Sprintf("notify: rendering %s: %v", name, err))
	}
	return buf.String()
}

// LoginNotice tells a user their account was just accessed.
func LoginNotice(to, name string, method LoginMethod, at time.Time) Message {
	when := at.Format("2006-01-02 15:04:05 MST")
	how := "using email/password login"
	if method == LoginByQR {
		how = "by QR smart card"
	}
	return Message{
		To:      to,
		Subject: "Account Login Notification",
		Text:    fmt.Sprintf("Hi %s,\n\nYour account was successfully accessed at %s %s.", name, when, how),
		HTML:    render("login", mailData{Name: name, When: when, ByQR: method == LoginByQR}),
	}
}

// Welcome greets a newly registered user.
func Welcome(to, name, role, userID string) Message {
	return Message{
		To:      to,
		Subject: "Welcome to Student Data Vault",
		Text: fmt.Sprintf("Hello %s,\nYour account has been created successfully with the role of %s.\nYour User ID is: %s",
			name, role, userID),
		HTML: render("welcome", mailData{Name: name, Role: role, UserID: userID}),
	}
}

// AccountUpdated tells a user an administrator changed their record.
func AccountUpdated(to, name string, passwordReset bool) Message {
	return Message{
		To:      to,
		Subject: "Account Update Notification",
		Text:    fmt.Sprintf("Hello %s,\nYour account information has been updated by an administrator.", name),
		HTML:    render("updated", mailData{Name: name, PasswordReset: passwordReset}),
	}
}

// AccountDeleted is sent just before a record is removed.
func AccountDeleted(to, name string) Message {
	return Message{
		To:      to,
		Subject: "Account Deletion Notification",
		Text:    fmt.Sprintf("Hello %s,\nYour account has been deleted from the Student Data Vault system.", name),
		HTML:    render("deleted", mailData{Name: name}),
	}
}

// NewQRCode tells a user their QR token was replaced.
func NewQRCode(to, name string) Message {
	return Message{
		To:      to,
		Subject: "Your New QR Code",
		Text:    fmt.Sprintf("Hello %s,\nA new QR code has been generated for your account.", name),
		HTML:    render("newqr", mailData{Name: name}),
	}
}

// DataRequest alerts an administrator that a student asked for their data
// to be reviewed or removed.
func DataRequest(to, studentName, studentID string) Message {
	return Message{
		To:      to,
		Subject: "Account GDPR Request",
		Text:    fmt.Sprintf("Student %s (%s) has submitted a data request.", studentName, studentID),
		HTML:    render("request", mailData{Name: studentName, UserID: studentID}),
	}
}

// GradeUpdated tells a student about a new grade.
func GradeUpdated(to, name, courseCode, grade string) Message {
	return Message{
		To:      to,
		Subject: "Grade Update Notification",
		Text:    fmt.Sprintf("Hello %s,\nYour grade for %s has been updated to: %s", name, courseCode, grade),
		HTML:    render("grade", mailData{Name: name, Course: courseCode, Grade: grade}),
	}
}

// ChildGradeUpdated tells a parent about their child's new grade.
func ChildGradeUpdated(to, parentName, childName, courseCode, grade string) Message {
	return Message{
		To:      to,
		Subject: "Child's Grade Update Notification",
		Text: fmt.Sprintf("Hello %s,\nYour child's (%s) grade for %s has been updated to: %s",
			parentName, childName, courseCode, grade),
		HTML: render("grade", mailData{Name: parentName, Child: childName, Course: courseCode, Grade: grade}),
	}
}
