package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/domus/internal/models"
)

// Sentinel errors returned by storage implementations.
var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrInvocationNotFound = errors.New("invocation not found")
	ErrKeyNotFound        = errors.New("key not found")
)

// StepRecord is one journaled step result within an invocation. Records are
// appended before the handler continues past the step and are consulted on
// replay instead of re-executing the step.
type StepRecord struct {
	Key          string    `badgerhold:"key"` // invocationID/seq
	InvocationID string    `badgerholdIndex:"InvocationID"`
	Seq          int       `json:"seq"`
	Name         string    `json:"name"`
	Result       []byte    `json:"result"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// InvocationStatus marks the terminal state of a logical invocation.
type InvocationStatus string

const (
	InvocationCompleted InvocationStatus = "completed"
	InvocationFailed    InvocationStatus = "failed"
)

// InvocationRecord is the commit marker for one logical invocation. A
// completed record short-circuits end-to-end retries: the stored result is
// returned without re-running the handler.
type InvocationRecord struct {
	ID          string           `badgerhold:"key"`
	ProjectKey  string           `json:"project_key"`
	Operation   string           `json:"operation"`
	Status      InvocationStatus `json:"status"`
	Result      []byte           `json:"result,omitempty"`
	ErrorKind   string           `json:"error_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
	CompletedAt time.Time        `json:"completed_at"`
}

// ProjectStorage persists materialized research project snapshots.
type ProjectStorage interface {
	// Get returns the committed snapshot for a project key.
	// Returns ErrProjectNotFound if no snapshot exists.
	Get(ctx context.Context, name string) (*models.ResearchProject, error)

	// Put replaces the committed snapshot.
	Put(ctx context.Context, project *models.ResearchProject) error
}

// JournalStorage persists the per-invocation step journal and invocation
// commit markers. CommitInvocation must write the invocation record and the
// project snapshot in one atomic transaction.
type JournalStorage interface {
	GetInvocation(ctx context.Context, id string) (*InvocationRecord, error)
	ListSteps(ctx context.Context, invocationID string) ([]StepRecord, error)
	AppendStep(ctx context.Context, record *StepRecord) error
	CommitInvocation(ctx context.Context, record *InvocationRecord, project *models.ResearchProject) error
	FailInvocation(ctx context.Context, record *InvocationRecord) error
}

// KeyValuePair is a generic setting stored in the KV bucket (API keys,
// operator-set overrides).
type KeyValuePair struct {
	Key         string    `badgerhold:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage provides case-insensitive key/value settings access.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, description string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// StorageManager aggregates the storage surfaces behind one lifecycle.
type StorageManager interface {
	ProjectStorage() ProjectStorage
	JournalStorage() JournalStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
