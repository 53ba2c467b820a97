package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleUser answers questionnaires.
	UserRoleUser UserRole = "user"
	// UserRoleAdmin manages questionnaires, results and accounts.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// IsAdmin reports whether the user may access the admin pages.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// FlashLevel is the severity of a one-shot notice.
type FlashLevel string

const (
	FlashSuccess FlashLevel = "success"
	FlashInfo    FlashLevel = "info"
	FlashError   FlashLevel = "error"
)

// Flash is a notice shown once on the next rendered page.
type Flash struct {
	Level   FlashLevel `json:"level"`
	Message string     `json:"message"`
}

type flashCtxKey struct{}

// ContextWithFlashes stores the pending flashes for the current request.
func ContextWithFlashes(ctx context.Context, flashes []Flash) context.Context {
	return context.WithValue(ctx, flashCtxKey{}, flashes)
}

// FlashesFromContext returns the flashes read for this request.
func FlashesFromContext(ctx context.Context) []Flash {
	f, _ := ctx.Value(flashCtxKey{}).([]Flash)
	return f
}

// QuestionType is the input kind rendered for a question.
type QuestionType string

const (
	QuestionText   QuestionType = "text"
	QuestionChoice QuestionType = "choice"
)

// Question is one entry of a questionnaire definition file.
type Question struct {
	ID          int          `json:"id"`
	Key         string       `json:"key" validate:"required,max=64"`
	Label       string       `json:"label"`
	Description string       `json:"description"`
	Type        QuestionType `json:"type" validate:"required,oneof=text choice"`
	Required    bool         `json:"required"`
	Options     []string     `json:"options,omitempty" validate:"dive,required"`
}

// QuestionnaireInfo summarizes a definition file for the admin list.
type QuestionnaireInfo struct {
	ID          string
	Filename    string
	Questions   int
	HasResults  bool
	ResultsSize int64
	ModifiedAt  time.Time
}

// Submission is one set of answers given by a user.
type Submission struct {
	SubmittedAt time.Time
	UserID      int64
	UserName    string
	UserEmail   string
	Answers     map[string]string
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	QuestionnaireDir     string
	ResultsDir           string
	DefaultQuestionnaire string // served under /quiz
	DateFormat           string // Go layout for the results date column
	BasePath             string // URL prefix for sub-path deployments (e.g. "/quiz")
	SecureCookies        bool   // Set Secure flag on cookies (disable for local dev)
	MaxUploadBytes       int64
}
