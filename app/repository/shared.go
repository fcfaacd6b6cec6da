package repository

import (
	"sync"

	"gorm.io/gorm"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/database"
)

var (
	sharedMu   sync.Mutex
	shared     *Repositories
	sharedOnDB *gorm.DB
)

// Shared returns the process-wide repositories on database.GetDB(). They are
// rebuilt when the connection is swapped with database.SetDB.
func Shared() *Repositories {
	db := database.GetDB()
	if db == nil {
		panic("repository: database not set up, call database.SetupDatabase first")
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil || sharedOnDB != db {
		shared = NewRepositories(db)
		sharedOnDB = db
	}
	return shared
}
