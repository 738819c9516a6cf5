package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/interfaces"
	"github.com/ternarybob/domus/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JournalStorage implements the JournalStorage interface for Badger. Step
// records are written individually before the handler proceeds; the
// invocation completion record and the project snapshot commit in a single
// Badger transaction.
type JournalStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJournalStorage creates a new JournalStorage instance
func NewJournalStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JournalStorage {
	return &JournalStorage{
		db:     db,
		logger: logger,
	}
}

// GetInvocation retrieves an invocation commit marker by id
func (s *JournalStorage) GetInvocation(ctx context.Context, id string) (*interfaces.InvocationRecord, error) {
	var rec interfaces.InvocationRecord
	err := s.db.Store().Get(id, &rec)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrInvocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invocation record: %w", err)
	}
	return &rec, nil
}

// ListSteps returns an invocation's journaled steps ordered by sequence
func (s *JournalStorage) ListSteps(ctx context.Context, invocationID string) ([]interfaces.StepRecord, error) {
	var steps []interfaces.StepRecord
	err := s.db.Store().Find(&steps, badgerhold.Where("InvocationID").Eq(invocationID).Index("InvocationID").SortBy("Seq"))
	if err != nil {
		return nil, fmt.Errorf("failed to list step records: %w", err)
	}
	return steps, nil
}

// AppendStep persists one step result. The record must be durable before
// the handler continues past the step.
func (s *JournalStorage) AppendStep(ctx context.Context, record *interfaces.StepRecord) error {
	if err := s.db.Store().Upsert(record.Key, record); err != nil {
		return fmt.Errorf("failed to append step record: %w", err)
	}
	return nil
}

// CommitInvocation writes the completion record and the mutated snapshot
// (if any) in one transaction.
func (s *JournalStorage) CommitInvocation(ctx context.Context, record *interfaces.InvocationRecord, project *models.ResearchProject) error {
	txn := s.db.Store().Badger().NewTransaction(true)
	defer txn.Discard()

	if err := s.db.Store().TxUpsert(txn, record.ID, record); err != nil {
		return fmt.Errorf("failed to stage invocation record: %w", err)
	}
	if project != nil {
		if err := s.db.Store().TxUpsert(txn, project.Name, project); err != nil {
			return fmt.Errorf("failed to stage project snapshot: %w", err)
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit invocation: %w", err)
	}
	return nil
}

// FailInvocation records a terminal invocation outcome with no state change
func (s *JournalStorage) FailInvocation(ctx context.Context, record *interfaces.InvocationRecord) error {
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to record failed invocation: %w", err)
	}
	return nil
}
