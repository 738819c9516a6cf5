package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/interfaces"
	"github.com/ternarybob/domus/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ProjectStorage implements the ProjectStorage interface for Badger
type ProjectStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProjectStorage creates a new ProjectStorage instance
func NewProjectStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProjectStorage {
	return &ProjectStorage{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the committed snapshot for a project key
func (s *ProjectStorage) Get(ctx context.Context, name string) (*models.ResearchProject, error) {
	var project models.ResearchProject
	err := s.db.Store().Get(name, &project)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// Put replaces the committed snapshot
func (s *ProjectStorage) Put(ctx context.Context, project *models.ResearchProject) error {
	if err := s.db.Store().Upsert(project.Name, project); err != nil {
		return fmt.Errorf("failed to put project: %w", err)
	}
	return nil
}
