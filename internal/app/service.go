package app

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"legajo/api/internal/auth"
	"legajo/api/internal/authpw"
	"legajo/api/internal/config"
	"legajo/api/internal/email"
	"legajo/api/internal/flags"
	"legajo/api/internal/ocr"
	"legajo/api/internal/rbac"
	"legajo/api/internal/search"
	"legajo/api/internal/store"
	"legajo/api/internal/undo"
	"legajo/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	ClientIDs    []string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	InsertUser(ctx context.Context, user store.User) error
	UpdateUser(ctx context.Context, user store.User) (bool, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) (bool, error)
	DeleteUser(ctx context.Context, userID string) (bool, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	InsertAuditEntry(ctx context.Context, entry store.AuditEntry) error
	ListAuditEntries(ctx context.Context, documentID, userID, action string, limit int) ([]store.AuditEntry, error)
	ListClients(ctx context.Context, clientIDs []string) ([]store.Client, error)
	GetClient(ctx context.Context, clientID string) (store.Client, error)
	InsertClient(ctx context.Context, item store.Client) error
	UpdateClient(ctx context.Context, item store.Client) (bool, error)
	DeleteClient(ctx context.Context, clientID string) (bool, error)
	ListEntities(ctx context.Context, clientID string) ([]store.Entity, error)
	GetEntity(ctx context.Context, entityID string) (store.Entity, error)
	InsertEntity(ctx context.Context, item store.Entity) error
	UpdateEntity(ctx context.Context, item store.Entity) (bool, error)
	DeleteEntity(ctx context.Context, entityID string) (bool, error)
	ListMovements(ctx context.Context, entityID string) ([]store.Movement, error)
	GetMovement(ctx context.Context, movementID string) (store.Movement, error)
	InsertMovement(ctx context.Context, item store.Movement) error
	UpdateMovement(ctx context.Context, item store.Movement) (bool, error)
	DeleteMovement(ctx context.Context, movementID string) (bool, error)
	EntityClientID(ctx context.Context, entityID string) (string, error)
	SummaryCounts(ctx context.Context) (int, int, int, error)
	ListDocuments(ctx context.Context, entityID, movementID string) ([]store.Document, error)
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	InsertDocument(ctx context.Context, item store.Document, version store.DocumentVersion) error
	UpdateDocumentMeta(ctx context.Context, item store.Document) (bool, error)
	ListVersions(ctx context.Context, documentID string) ([]store.DocumentVersion, error)
	GetVersion(ctx context.Context, documentID string, versionNumber int) (store.DocumentVersion, error)
	CreateVersion(ctx context.Context, version store.DocumentVersion) (store.DocumentVersion, error)
	UndoRevert(ctx context.Context, snapshot store.Document, revertVersionNumber int) error
	GetContentIndex(ctx context.Context, documentID string) (store.ContentIndexEntry, error)
	SoftDeleteDocument(ctx context.Context, documentID, deletedBy string) (bool, error)
	RestoreDocument(ctx context.Context, documentID string) (bool, error)
	ListRecycleBin(ctx context.Context) ([]store.RecycleBinEntry, error)
	PurgeDocument(ctx context.Context, documentID string) (string, bool, error)
	InsertSharedLink(ctx context.Context, link store.SharedLink) error
	GetSharedLinkByToken(ctx context.Context, token string) (store.SharedLink, error)
	ListSharedLinks(ctx context.Context, documentID string) ([]store.SharedLink, error)
	RevokeSharedLink(ctx context.Context, linkID string) (bool, error)
	BumpSharedLinkAccess(ctx context.Context, linkID string) error
	ListTags(ctx context.Context) ([]store.Tag, error)
	GetTag(ctx context.Context, tagID string) (store.Tag, error)
	InsertTag(ctx context.Context, item store.Tag) error
	UpdateTag(ctx context.Context, item store.Tag) (bool, error)
	DeleteTag(ctx context.Context, tagID string) (bool, error)
	SetDocumentTags(ctx context.Context, documentID string, tagIDs []string) error
	ListDocumentTags(ctx context.Context, documentID string) ([]store.Tag, error)
	InsertNotification(ctx context.Context, item store.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]store.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) error
	DeleteNotification(ctx context.Context, userID, notificationID string) (bool, error)
	EnsureWorkflowState(ctx context.Context, documentID, stateID, createdBy string) (store.WorkflowState, error)
	GetWorkflowState(ctx context.Context, documentID string) (store.WorkflowState, error)
	ApplyTransition(ctx context.Context, t store.WorkflowTransition) (store.TransitionResult, error)
	ListTransitions(ctx context.Context, documentID string) ([]store.WorkflowTransition, error)
	Ping(ctx context.Context) error
}

// sessionStore is the refresh token backend. Redis in production with the
// Postgres store as a drop-in fallback; both share the same shape.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type undoStore interface {
	Save(ctx context.Context, token string, pending undo.Pending) error
	Take(ctx context.Context, token string) (undo.Pending, error)
	Restore(ctx context.Context, token string, pending undo.Pending) error
	TTL() time.Duration
}

type ocrQueue interface {
	EnqueueDocumentOCR(ctx context.Context, documentID string) error
}

type searchFacade interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	DeleteDocument(id string)
	ReindexAllFromPG(ctx context.Context)
}

type reprocessRunner interface {
	Run(ctx context.Context, onProgress func(ocr.Progress)) (ocr.Result, error)
}

type emailSender interface {
	IsConfigured() bool
	SendAssignmentEmail(to, userName, documentName, state, dueDate, documentURL string) error
	SendReviewResultEmail(to, userName, documentName, decision, comment, documentURL string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	blobs     objectStore
	search    searchFacade
	undo      undoStore
	queue     ocrQueue
	reprocess reprocessRunner
	email     emailSender
	flags     *flags.Set
	passwords *authpw.Service

	reprocessMu sync.Mutex
}

// Dependencies bundles the collaborators wired in main. Optional members
// (search, queue, email, undo) may be nil and the matching features degrade.
type Dependencies struct {
	Store     *store.PostgresStore
	Sessions  sessionStore
	Blobs     objectStore
	Search    searchFacade
	Undo      undoStore
	Queue     ocrQueue
	Reprocess reprocessRunner
	Email     *email.Service
	Flags     *flags.Set
}

func New(cfg config.Config, deps Dependencies) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = deps.Store
	}
	flagSet := deps.Flags
	if flagSet == nil {
		flagSet = flags.NewSet()
	}
	svc := &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  sessions,
		blobs:     deps.Blobs,
		search:    deps.Search,
		undo:      deps.Undo,
		queue:     deps.Queue,
		reprocess: deps.Reprocess,
		flags:     flagSet,
		passwords: authpw.NewService(deps.Store),
	}
	if deps.Email != nil {
		svc.email = deps.Email
	}
	return svc
}

// Bootstrap seeds the initial admin account when the user table is empty.
func (s *Service) Bootstrap(ctx context.Context) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	hash, err := authpw.HashPassword("change-me-please")
	if err != nil {
		return err
	}
	return s.store.InsertUser(ctx, store.User{
		ID:           util.NewID("usr"),
		FullName:     "Administrator",
		Email:        "admin@legajo.local",
		PasswordHash: hash,
		Role:         string(rbac.RoleAdmin),
	})
}

func (s *Service) Login(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// The session backend may return only the user ID; re-read the account
	// so role changes and deactivation take effect on rotation.
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil {
		return Session{}, err
	}
	if user.DeactivatedAt != nil {
		return Session{}, authpw.ErrAccountDeactivated
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.FullName,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.FullName,
		Email:        user.Email,
		Role:         user.Role,
		ClientIDs:    user.ClientIDs,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if user.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.FullName,
		Email:     user.Email,
		Role:      user.Role,
		ClientIDs: user.ClientIDs,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) FlagEnabled(flag flags.Flag) bool {
	return s.flags.Enabled(flag)
}

func (s *Service) FlagSnapshot() map[flags.Flag]bool {
	return s.flags.Snapshot()
}

func (s *Service) SetFlag(name string, enabled bool) error {
	flag := flags.Flag(strings.TrimSpace(name))
	known := false
	for _, f := range flags.All {
		if f == flag {
			known = true
			break
		}
	}
	if !known {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown feature flag", map[string]any{"flag": name})
	}
	s.flags.SetEnabled(flag, enabled)
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// clientScope returns the client IDs a session may see. Nil means
// unscoped; an empty slice means access to nothing.
func clientScope(session Session) []string {
	if rbac.Normalize(session.Role) != rbac.RoleCliente {
		return nil
	}
	if session.ClientIDs == nil {
		return []string{}
	}
	return session.ClientIDs
}

func scopeAllows(scope []string, clientID string) bool {
	if scope == nil {
		return true
	}
	for _, id := range scope {
		if id == clientID {
			return true
		}
	}
	return false
}

// requireEntityAccess verifies a session can see the entity's client.
// Returns the owning client ID for reuse by callers.
func (s *Service) requireEntityAccess(ctx context.Context, session Session, entityID string) (string, error) {
	clientID, err := s.store.EntityClientID(ctx, entityID)
	if err != nil {
		return "", err
	}
	if !scopeAllows(clientScope(session), clientID) {
		return "", domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return clientID, nil
}

func (s *Service) audit(ctx context.Context, session Session, documentID *string, action string, details map[string]any) {
	if !s.flags.Enabled(flags.AuditLogs) {
		return
	}
	_ = s.store.InsertAuditEntry(ctx, store.AuditEntry{
		DocumentID: documentID,
		UserID:     session.UserID,
		Action:     action,
		Details:    details,
	})
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
