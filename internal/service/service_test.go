package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/student-data-vault/internal/apperror"
	"github.com/sakif/student-data-vault/internal/audit"
	"github.com/sakif/student-data-vault/internal/auth"
	"github.com/sakif/student-data-vault/internal/fieldcrypt"
	"github.com/sakif/student-data-vault/internal/idcard"
	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/notify"
	"github.com/sakif/student-data-vault/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// recordingNotifier keeps every message it is asked to send.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) to(addr string) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Message
	for _, m := range n.sent {
		if m.To == addr {
			out = append(out, m)
		}
	}
	return out
}

// failingRecorder refuses every append.
type failingRecorder struct{}

func (failingRecorder) Record(ctx context.Context, userID, role, action string) (*model.LogEntry, error) {
	return nil, errors.New("disk full")
}

type testEnv struct {
	db        *sqlite.DB
	cipher    *fieldcrypt.Cipher
	mail      *recordingNotifier
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	deps      Deps

	auth    *AuthService
	users   *UserService
	courses *CourseService
	logs    *LogService
}

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cipher, err := fieldcrypt.New(testKey)
	require.NoError(t, err)

	recorder, err := audit.NewRecorder(db, audit.SchemeChain, nil, logger)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("test-secret-that-is-long-enough", 0)
	require.NoError(t, err)

	cards, err := idcard.NewRenderer()
	require.NoError(t, err)

	e := &testEnv{
		db:        db,
		cipher:    cipher,
		mail:      &recordingNotifier{},
		passwords: auth.NewPasswordService(4),
		tokens:    tokens,
	}
	e.deps = Deps{Users: db, Audit: recorder, Cipher: cipher, Notifier: e.mail, Logger: logger}

	e.auth = NewAuthService(e.deps, e.tokens, e.passwords)
	e.users = NewUserService(e.deps, e.passwords, cards)
	e.courses = NewCourseService(e.deps)
	e.logs = NewLogService(db, recorder, logger)
	return e
}

var admin = auth.Identity{UserID: "admin-00000001", Role: model.RoleAdmin}

// register creates an account through AuthService.Register.
func (e *testEnv) register(t *testing.T, in RegisterInput) *model.User {
	t.Helper()
	u, err := e.auth.Register(context.Background(), admin, in)
	require.NoError(t, err)
	return u
}

func (e *testEnv) student(t *testing.T, email string) *model.User {
	return e.register(t, RegisterInput{FullName: "Sam Student", Email: email, Password: "student-pass", Role: "Student", Class: "10A"})
}

func (e *testEnv) teacher(t *testing.T, email string, courses ...string) *model.User {
	return e.register(t, RegisterInput{FullName: "Tia Teacher", Email: email, Password: "teacher-pass", Role: "Teacher", CoursesTeaching: courses})
}

func identity(u *model.User) auth.Identity {
	return auth.Identity{UserID: u.UserID, Role: u.Role}
}

// actions returns the action of every log entry in insertion order.
func (e *testEnv) actions(t *testing.T) []string {
	t.Helper()
	entries, err := e.db.AllLogs(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, en := range entries {
		out = append(out, en.Action)
	}
	return out
}

func assertKind(t *testing.T, err error, kind error, message string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected *apperror.AppError, got %T", err)
	assert.Equal(t, message, appErr.Message)
}
