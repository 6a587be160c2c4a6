package store

import "time"

type User struct {
	ID            string
	FullName      string
	Email         string
	PasswordHash  string
	Role          string
	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	// Client IDs a cliente-role user is granted access to. Joined on read.
	ClientIDs []string
}

type Client struct {
	ID        string
	Name      string
	TaxID     string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entity is a sociedad belonging to a client.
type Entity struct {
	ID         string
	ClientID   string
	Name       string
	EntityType string
	TaxID      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Movement is a gestión: a dated business action under an entity that
// groups related documents.
type Movement struct {
	ID           string
	EntityID     string
	Title        string
	Description  string
	MovementDate time.Time
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Document struct {
	ID             string
	EntityID       string
	MovementID     *string
	FileName       string
	FilePath       string
	FileSize       int64
	MimeType       string
	Title          string
	Description    string
	Notes          string
	Status         string
	ExpirationDate *time.Time
	CurrentVersion int
	UploadedBy     string
	ReviewedBy     *string
	ReviewedAt     *time.Time
	UploadedAt     time.Time
	UpdatedAt      time.Time
}

// DocumentVersion rows are immutable once written.
type DocumentVersion struct {
	ID                string
	DocumentID        string
	VersionNumber     int
	FilePath          string
	FileSize          int64
	ContentText       string
	ChangeDescription string
	CreatedBy         string
	CreatedAt         time.Time
}

type WorkflowState struct {
	ID            string
	DocumentID    string
	CurrentState  string
	PreviousState *string
	AssignedTo    *string
	DueDate       *time.Time
	UpdatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type WorkflowTransition struct {
	ID         string
	DocumentID string
	FromState  string
	ToState    string
	Action     string
	Comment    string
	Actor      string
	AssignedTo *string
	DueDate    *time.Time
	CreatedAt  time.Time
	// Hours elapsed since the previous transition of the same document.
	// Nil for the first transition. Computed on read.
	HoursSincePrevious *float64
}

type ContentIndexEntry struct {
	DocumentID    string
	ContentText   string
	OCRConfidence float64
	IndexedAt     time.Time
}

type SharedLink struct {
	ID          string
	DocumentID  string
	Token       string
	CreatedBy   string
	ExpiresAt   time.Time
	MaxAccesses *int
	AccessCount int
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// RecycleBinEntry holds the snapshot of a soft-deleted document.
type RecycleBinEntry struct {
	ID        string
	Document  Document
	DeletedBy string
	DeletedAt time.Time
}

type AuditEntry struct {
	ID         int64
	DocumentID *string
	UserID     string
	Action     string
	Details    map[string]any
	CreatedAt  time.Time
}

// Tag is a label documents can carry; names are unique.
type Tag struct {
	ID          string
	Name        string
	Color       string
	Description string
	CreatedAt   time.Time
}

type Notification struct {
	ID         string
	UserID     string
	Title      string
	Message    string
	Type       string
	EntityType *string
	EntityID   *string
	EntityName *string
	IsRead     bool
	ReadAt     *time.Time
	CreatedAt  time.Time
}

// TransitionResult is what a workflow transition attempt reports back.
// ErrorMessage is set when Success is false.
type TransitionResult struct {
	Success      bool
	ErrorMessage string
	State        *WorkflowState
}
