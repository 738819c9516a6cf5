package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/common"
	"github.com/ternarybob/domus/internal/interfaces"
)

// Manager implements the StorageManager interface over one Badger database
type Manager struct {
	db       *BadgerDB
	projects interfaces.ProjectStorage
	journal  interfaces.JournalStorage
	kv       interfaces.KeyValueStorage
	logger   arbor.ILogger
}

// NewManager creates a storage manager backed by an on-disk Badger database
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}
	return newManager(db, logger), nil
}

// NewInMemoryManager creates a storage manager over an in-memory database,
// used by tests.
func NewInMemoryManager(logger arbor.ILogger) (*Manager, error) {
	db, err := NewInMemoryBadgerDB(logger)
	if err != nil {
		return nil, err
	}
	return newManager(db, logger), nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:       db,
		projects: NewProjectStorage(db, logger),
		journal:  NewJournalStorage(db, logger),
		kv:       NewKVStorage(db, logger),
		logger:   logger,
	}
}

// DB returns the underlying database wrapper
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// ProjectStorage returns the project snapshot storage
func (m *Manager) ProjectStorage() interfaces.ProjectStorage {
	return m.projects
}

// JournalStorage returns the invocation journal storage
func (m *Manager) JournalStorage() interfaces.JournalStorage {
	return m.journal
}

// KeyValueStorage returns the key/value settings storage
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
