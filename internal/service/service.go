// Package service contains the business rules of the vault.
//
// Handlers parse HTTP and call a service; services enforce role rules,
// encrypt and decrypt email addresses, append to the activity log and send
// notifications; repositories talk to the database:
//
//	Handler (HTTP) → Service (rules, audit, mail) → Repository (SQL)
//
// Every operation that touches a record appends one or more activity log
// entries through a Recorder. A failed append fails the operation.
// Notifications are best effort: delivery errors are logged and dropped.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/student-data-vault/internal/auth"
	"github.com/sakif/student-data-vault/internal/fieldcrypt"
	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/notify"
	"github.com/sakif/student-data-vault/internal/repository"
)

// Recorder appends activity log entries. *audit.Recorder implements it.
type Recorder interface {
	Record(ctx context.Context, userID, role, action string) (*model.LogEntry, error)
}

// Deps bundles the collaborators shared by the account-facing services.
type Deps struct {
	Users    repository.UserRepository
	Audit    Recorder
	Cipher   *fieldcrypt.Cipher
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// fallbackAddress receives login notices for accounts whose email cannot
// be decrypted.
const fallbackAddress = "no-email@example.com"

// record appends one entry attributed to actor.
func record(ctx context.Context, r Recorder, actor auth.Identity, action string) error {
	if _, err := r.Record(ctx, actor.UserID, string(actor.Role), action); err != nil {
		return fmt.Errorf("service: recording %q: %w", action, err)
	}
	return nil
}

// recordUnknown appends an entry for a request that matched no account.
func recordUnknown(ctx context.Context, r Recorder, action string) error {
	if _, err := r.Record(ctx, model.ActorUnknown, model.ActorUnknown, action); err != nil {
		return fmt.Errorf("service: recording %q: %w", action, err)
	}
	return nil
}

func sealedEmail(u *model.User) fieldcrypt.Sealed {
	return fieldcrypt.Sealed{Data: u.EncryptedEmail, IV: u.EmailIV}
}

// mailer sends notifications to users whose address is stored encrypted.
type mailer struct {
	cipher   *fieldcrypt.Cipher
	notifier notify.Notifier
	logger   *slog.Logger
}

func newMailer(d Deps) mailer {
	return mailer{cipher: d.Cipher, notifier: d.Notifier, logger: d.Logger}
}

// send delivers msg and logs a failure instead of returning it.
func (m mailer) send(ctx context.Context, msg notify.Message) {
	if err := m.notifier.Send(ctx, msg); err != nil {
		m.logger.WarnContext(ctx, "notification not delivered",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
	}
}

// sendTo decrypts u's address and sends build(address). Users whose
// address cannot be decrypted are skipped.
func (m mailer) sendTo(ctx context.Context, u *model.User, build func(to string) notify.Message) {
	to, err := m.cipher.Decrypt(sealedEmail(u))
	if err != nil {
		m.logger.WarnContext(ctx, "cannot decrypt email for notification",
			slog.String("userID", u.UserID),
			slog.String("error", err.Error()),
		)
		return
	}
	m.send(ctx, build(to))
}
