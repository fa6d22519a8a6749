package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/student-data-vault/internal/apperror"
	"github.com/sakif/student-data-vault/internal/auth"
	"github.com/sakif/student-data-vault/internal/fieldcrypt"
	"github.com/sakif/student-data-vault/internal/idcard"
	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/notify"
	"github.com/sakif/student-data-vault/internal/repository"
)

// UndecryptableEmail replaces addresses that fail to decrypt in listings.
const UndecryptableEmail = "Unable to decrypt"

// UserView is a user record as shown to admins. The password digest is
// never serialized.
type UserView struct {
	model.User
	DecryptedEmail string `json:"decryptedEmail"`
}

// IDCard is the card data plus its rendered HTML.
type IDCard struct {
	idcard.Card
	HTML string `json:"html"`
}

// UpdateUserInput holds the optional fields of an admin update. Empty
// fields are left unchanged. An unknown role is ignored.
type UpdateUserInput struct {
	FullName        string   `json:"fullName"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Role            string   `json:"role"`
	Class           string   `json:"class"`
	CoursesTeaching []string `json:"coursesTeaching" validate:"omitempty,dive,required"`
	Password        string   `json:"password" validate:"omitempty,maxbytes=72"`
}

var updateMessages = messages{
	"email":    "Invalid email address",
	"password": "Password must be at most 72 bytes",
}

// UserService implements the admin account operations.
type UserService struct {
	users     repository.UserRepository
	audit     Recorder
	cipher    *fieldcrypt.Cipher
	passwords *auth.PasswordService
	cards     *idcard.Renderer
	mail      mailer
	logger    *slog.Logger
	now       func() time.Time
}

// NewUserService creates a UserService.
func NewUserService(d Deps, passwords *auth.PasswordService, cards *idcard.Renderer) *UserService {
	return &UserService{
		users:     d.Users,
		audit:     d.Audit,
		cipher:    d.Cipher,
		passwords: passwords,
		cards:     cards,
		mail:      newMailer(d),
		logger:    d.Logger,
		now:       time.Now,
	}
}

func (s *UserService) view(u model.User) UserView {
	return UserView{User: u, DecryptedEmail: s.cipher.DecryptOr(sealedEmail(&u), UndecryptableEmail)}
}

// get loads a user, mapping absence to "User not found".
func (s *UserService) get(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetByUserID(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Missing("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("service/users: fetching %s: %w", userID, err)
	}
	return u, nil
}

// List returns every account, newest first. One undecryptable address
// does not fail the listing.
func (s *UserService) List(ctx context.Context, actor auth.Identity) ([]UserView, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/users: listing: %w", err)
	}

	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, s.view(u))
	}

	if err := record(ctx, s.audit, actor, "view_all_users"); err != nil {
		return nil, err
	}
	return views, nil
}

// Get returns one account.
func (s *UserService) Get(ctx context.Context, actor auth.Identity, userID string) (*UserView, error) {
	u, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := record(ctx, s.audit, actor, "view_user:"+userID); err != nil {
		return nil, err
	}
	v := s.view(*u)
	return &v, nil
}

// IDCard builds the printable card for a user.
func (s *UserService) IDCard(ctx context.Context, actor auth.Identity, userID string) (*IDCard, error) {
	u, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := record(ctx, s.audit, actor, "generate_id_card:"+userID); err != nil {
		return nil, err
	}

	card := idcard.NewCard(u, s.now())
	html, err := s.cards.Fragment(card)
	if err != nil {
		return nil, fmt.Errorf("service/users: %w", err)
	}
	return &IDCard{Card: card, HTML: html}, nil
}

// Update applies the non-empty fields of in. A new email is encrypted
// under a fresh IV and a new password is hashed; a password change is
// logged separately as reset_password.
func (s *UserService) Update(ctx context.Context, actor auth.Identity, userID string, in UpdateUserInput) error {
	if err := check(in, updateMessages); err != nil {
		return err
	}

	u, err := s.get(ctx, userID)
	if err != nil {
		return err
	}

	if in.FullName != "" {
		u.FullName = in.FullName
	}
	if in.Class != "" {
		u.Class = in.Class
	}
	if in.CoursesTeaching != nil {
		u.CoursesTeaching = in.CoursesTeaching
	}
	if role, ok := model.ParseRole(in.Role); ok {
		u.Role = role
	}
	if in.Email != "" {
		sealed, err := s.cipher.Encrypt(in.Email)
		if err != nil {
			return fmt.Errorf("service/users: encrypting email: %w", err)
		}
		u.EncryptedEmail, u.EmailIV = sealed.Data, sealed.IV
	}
	if in.Password != "" {
		if u.PasswordHash, err = s.passwords.Hash(in.Password); err != nil {
			return fmt.Errorf("service/users: hashing password: %w", err)
		}
	}

	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("service/users: updating %s: %w", userID, err)
	}

	if in.Password != "" {
		if err := record(ctx, s.audit, actor, "reset_password:"+userID); err != nil {
			return err
		}
	}
	if err := record(ctx, s.audit, actor, "update_user:"+userID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user updated",
		slog.String("userID", userID),
		slog.Bool("passwordReset", in.Password != ""),
	)

	s.mail.sendTo(ctx, u, func(to string) notify.Message {
		return notify.AccountUpdated(to, u.FullName, in.Password != "")
	})
	return nil
}

// Delete removes an account. The owner is notified before the record,
// and with it the address, is gone.
func (s *UserService) Delete(ctx context.Context, actor auth.Identity, userID string) error {
	u, err := s.get(ctx, userID)
	if err != nil {
		return err
	}

	s.mail.sendTo(ctx, u, func(to string) notify.Message {
		return notify.AccountDeleted(to, u.FullName)
	})

	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("service/users: deleting %s: %w", userID, err)
	}

	if err := record(ctx, s.audit, actor, "delete_user:"+userID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user deleted", slog.String("userID", userID))
	return nil
}

// QRCode is the result of issuing a new card token.
type QRCode struct {
	Token    string `json:"qrToken"`
	ImageURL string `json:"qrImageUrl"`
}

// RegenerateQR replaces a user's QR token. The old card stops working.
func (s *UserService) RegenerateQR(ctx context.Context, actor auth.Identity, userID string) (*QRCode, error) {
	u, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, err := auth.NewQRToken()
	if err != nil {
		return nil, fmt.Errorf("service/users: generating QR token: %w", err)
	}
	if err := s.users.SetQRToken(ctx, userID, token); err != nil {
		return nil, fmt.Errorf("service/users: storing QR token for %s: %w", userID, err)
	}

	if err := record(ctx, s.audit, actor, "generate_qr:"+userID); err != nil {
		return nil, err
	}

	s.mail.sendTo(ctx, u, func(to string) notify.Message {
		return notify.NewQRCode(to, u.FullName)
	})

	return &QRCode{Token: token, ImageURL: idcard.QRImageURL(token)}, nil
}
