// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Role is one of the four account kinds. Role values are stored and
// serialized exactly as written here.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleTeacher Role = "Teacher"
	RoleStudent Role = "Student"
	RoleParent  Role = "Parent"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

// ParseRole accepts an exact role name and reports whether it is valid.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Prefix is the lower-case role name used in generated user ids ("student-1a2b3c4d").
func (r Role) Prefix() string {
	return strings.ToLower(string(r))
}

// User is one account of any role. Role-specific fields are empty for the
// other roles: Class and Courses belong to students, CoursesTeaching to
// teachers, LinkedStudentID and LinkedStudent to parents.
//
// The email address is never held in clear text here. EncryptedEmail and
// EmailIV are the hex-encoded ciphertext and initialization vector.
type User struct {
	UserID            string           `json:"userId"`
	FullName          string           `json:"fullName"`
	EncryptedEmail    string           `json:"encryptedEmail"`
	EmailIV           string           `json:"iv"`
	PasswordHash      string           `json:"-"`
	Role              Role             `json:"role"`
	QRToken           string           `json:"qrToken"`
	Class             string           `json:"class,omitempty"`
	CoursesTeaching   []string         `json:"coursesTeaching,omitempty"`
	Courses           []Enrollment     `json:"courses,omitempty"`
	LinkedStudentID   string           `json:"linkedStudentId,omitempty"`
	LinkedStudent     *StudentSnapshot `json:"linkedStudentData,omitempty"`
	DeletionRequested bool             `json:"deletionRequested"`
	LastLogin         *time.Time       `json:"lastLogin,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// HasPassword reports whether the account can log in by email and password.
// Accounts created without one can only use their QR token.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Teaches reports whether a teacher lists courseCode in CoursesTeaching.
func (u *User) Teaches(courseCode string) bool {
	for _, c := range u.CoursesTeaching {
		if c == courseCode {
			return true
		}
	}
	return false
}

// StudentSnapshot is the copy of a student's identity stored on a parent
// record when the parent is registered. It is not refreshed afterwards.
type StudentSnapshot struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
	Class    string `json:"class"`
}
