package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/student-data-vault/internal/apperror"
	"github.com/sakif/student-data-vault/internal/auth"
	"github.com/sakif/student-data-vault/internal/fieldcrypt"
	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/notify"
	"github.com/sakif/student-data-vault/internal/repository"
)

// Activity log actions written by AuthService.
const (
	ActionQRLogin          = "qr_login"
	ActionQRLoginFailed    = "qr_login_failed"
	ActionEmailLogin       = "email_login"
	ActionEmailLoginFailed = "email_login_failed"
	ActionPasswordMismatch = "password_verification_failed"
)

// AuthService handles logins and account registration.
type AuthService struct {
	users     repository.UserRepository
	audit     Recorder
	cipher    *fieldcrypt.Cipher
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mail      mailer
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(d Deps, tokens *auth.TokenService, passwords *auth.PasswordService) *AuthService {
	return &AuthService{
		users:     d.Users,
		audit:     d.Audit,
		cipher:    d.Cipher,
		tokens:    tokens,
		passwords: passwords,
		mail:      newMailer(d),
		logger:    d.Logger,
		now:       time.Now,
	}
}

// LoginResult is returned by both login flows.
type LoginResult struct {
	Token  string     `json:"token"`
	Role   model.Role `json:"role"`
	UserID string     `json:"userId"`
}

// LoginQR authenticates the holder of an ID card token.
func (s *AuthService) LoginQR(ctx context.Context, token string) (*LoginResult, error) {
	if token == "" {
		return nil, apperror.ValidationFailed("qr", "QR token is required")
	}

	user, err := s.users.GetByQRToken(ctx, token)
	if errors.Is(err, apperror.ErrNotFound) {
		if err := recordUnknown(ctx, s.audit, ActionQRLoginFailed); err != nil {
			return nil, err
		}
		s.logger.WarnContext(ctx, "invalid QR token presented")
		return nil, apperror.Unauthorized("Invalid QR token")
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up QR token: %w", err)
	}

	return s.completeLogin(ctx, user, ActionQRLogin, notify.LoginByQR)
}

// LoginPassword authenticates by email and password.
//
// Addresses are stored under a random IV, so the same address never
// encrypts to the same ciphertext twice. Finding the account means
// decrypting every stored address.
func (s *AuthService) LoginPassword(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "Email and password are required")
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user == nil || !user.HasPassword() {
		if err := recordUnknown(ctx, s.audit, ActionEmailLoginFailed); err != nil {
			return nil, err
		}
		return nil, apperror.Unauthorized("Invalid credentials")
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if _, err := s.audit.Record(ctx, user.UserID, string(user.Role), ActionPasswordMismatch); err != nil {
			return nil, fmt.Errorf("service/auth: recording %q: %w", ActionPasswordMismatch, err)
		}
		return nil, apperror.Unauthorized("Invalid credentials")
	}

	return s.completeLogin(ctx, user, ActionEmailLogin, notify.LoginByPassword)
}

func (s *AuthService) completeLogin(ctx context.Context, user *model.User, action string, method notify.LoginMethod) (*LoginResult, error) {
	if err := s.users.TouchLastLogin(ctx, user.UserID); err != nil {
		return nil, fmt.Errorf("service/auth: updating last login for %s: %w", user.UserID, err)
	}

	token, err := s.tokens.Generate(user.UserID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", user.UserID, err)
	}

	if _, err := s.audit.Record(ctx, user.UserID, string(user.Role), action); err != nil {
		return nil, fmt.Errorf("service/auth: recording %q: %w", action, err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("userID", user.UserID),
		slog.String("role", string(user.Role)),
		slog.String("method", action),
	)

	to := s.cipher.DecryptOr(sealedEmail(user), fallbackAddress)
	s.mail.send(ctx, notify.LoginNotice(to, user.FullName, method, s.now()))

	return &LoginResult{Token: token, Role: user.Role, UserID: user.UserID}, nil
}

// findByEmail returns the account whose decrypted address equals email,
// ignoring case, or nil. Rows that fail to decrypt are skipped.
func (s *AuthService) findByEmail(ctx context.Context, email string) (*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing users: %w", err)
	}

	for i := range users {
		plain, err := s.cipher.Decrypt(sealedEmail(&users[i]))
		if err != nil {
			s.logger.WarnContext(ctx, "skipping user with undecryptable email",
				slog.String("userID", users[i].UserID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if strings.EqualFold(plain, email) {
			return &users[i], nil
		}
	}
	return nil, nil
}

// RegisterInput is the body of an account registration.
type RegisterInput struct {
	FullName        string   `json:"fullName" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"omitempty,maxbytes=72"`
	Role            string   `json:"role" validate:"required,oneof=Admin Teacher Student Parent"`
	Class           string   `json:"class" validate:"required_if=Role Student"`
	CoursesTeaching []string `json:"coursesTeaching" validate:"required_if=Role Teacher,dive,required"`
	LinkedStudentID string   `json:"linkedStudentId" validate:"required_if=Role Parent"`
}

var registerMessages = messages{
	"fullName":        "Missing required fields",
	"email.required":  "Missing required fields",
	"email.email":     "Invalid email address",
	"role.required":   "Missing required fields",
	"role.oneof":      "Invalid role",
	"password":        "Password must be at most 72 bytes",
	"class":           "Class is required for students",
	"coursesTeaching": "Courses teaching are required for teachers",
	"linkedStudentId": "Linked student ID is required for parents",
}

// Register creates an account of any role. Only admins reach it.
func (s *AuthService) Register(ctx context.Context, actor auth.Identity, in RegisterInput) (*model.User, error) {
	if err := check(in, registerMessages); err != nil {
		return nil, err
	}
	role := model.Role(in.Role)
	if role == model.RoleTeacher && len(in.CoursesTeaching) == 0 {
		return nil, apperror.ValidationFailed("coursesTeaching", registerMessages["coursesTeaching"])
	}

	existing, err := s.findByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.ValidationFailed("email", "Email already in use")
	}

	userID, err := auth.NewUserID(role)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating user id: %w", err)
	}
	qrToken, err := auth.NewQRToken()
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating QR token: %w", err)
	}
	sealed, err := s.cipher.Encrypt(in.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: encrypting email: %w", err)
	}

	user := &model.User{
		UserID:         userID,
		FullName:       in.FullName,
		EncryptedEmail: sealed.Data,
		EmailIV:        sealed.IV,
		Role:           role,
		QRToken:        qrToken,
		Class:          in.Class,
	}

	if in.Password != "" {
		if user.PasswordHash, err = s.passwords.Hash(in.Password); err != nil {
			return nil, fmt.Errorf("service/auth: hashing password: %w", err)
		}
	}

	switch role {
	case model.RoleTeacher:
		user.CoursesTeaching = in.CoursesTeaching
	case model.RoleParent:
		student, err := s.users.GetByUserID(ctx, in.LinkedStudentID)
		if errors.Is(err, apperror.ErrNotFound) || (err == nil && student.Role != model.RoleStudent) {
			return nil, apperror.Missing("Linked student not found")
		}
		if err != nil {
			return nil, fmt.Errorf("service/auth: looking up linked student: %w", err)
		}
		user.LinkedStudentID = student.UserID
		user.LinkedStudent = &model.StudentSnapshot{
			UserID:   student.UserID,
			FullName: student.FullName,
			Class:    student.Class,
		}
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	if err := record(ctx, s.audit, actor, "create_user:"+user.UserID); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("userID", user.UserID),
		slog.String("role", string(role)),
		slog.String("by", actor.UserID),
	)

	s.mail.send(ctx, notify.Welcome(in.Email, user.FullName, string(role), user.UserID))

	return user, nil
}

// Me returns the caller's own record. A token outliving its account
// yields "User not found".
func (s *AuthService) Me(ctx context.Context, actor auth.Identity) (*UserView, error) {
	u, err := s.users.GetByUserID(ctx, actor.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Missing("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching %s: %w", actor.UserID, err)
	}

	if err := record(ctx, s.audit, actor, "view_profile"); err != nil {
		return nil, err
	}
	return &UserView{User: *u, DecryptedEmail: s.cipher.DecryptOr(sealedEmail(u), UndecryptableEmail)}, nil
}

// SystemActor attributes entries written by the server itself.
var SystemActor = auth.Identity{UserID: "system", Role: model.Role("system")}

// EnsureAdmin registers an admin from in when the vault has none. It
// returns nil when an admin already exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, in RegisterInput) (*model.User, error) {
	admins, err := s.users.ListByRole(ctx, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing admins: %w", err)
	}
	if len(admins) > 0 {
		return nil, nil
	}

	in.Role = string(model.RoleAdmin)
	return s.Register(ctx, SystemActor, in)
}
