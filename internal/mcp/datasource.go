package mcp

import (
	"context"
	"time"

	"github.com/claude/repform/internal/models"
	"github.com/claude/repform/internal/storage"
	"github.com/google/uuid"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	QuerySessions(ctx context.Context, userID int, f storage.SessionFilter) ([]models.SessionRow, error)
	QueryReps(ctx context.Context, sessionID uuid.UUID, userID int) ([]models.RepRow, error)
	GetFaultStats(ctx context.Context, userID int, start, end time.Time, exercise string) ([]storage.FaultStat, error)
	GetDataStats(ctx context.Context, userID int) (*storage.DataStats, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
