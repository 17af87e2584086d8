package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/rollcall/internal/dbx"
	"github.com/dmitrijs2005/rollcall/internal/server/repositories/counters"
	"github.com/dmitrijs2005/rollcall/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/rollcall/internal/server/repositories/documents"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Credentials(db dbx.DBTX) credentials.Repository
	Documents(db dbx.DBTX) documents.Repository
	Counters(db *sql.DB) *counters.PostgresStore
}
