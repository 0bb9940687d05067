package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/models"
)

// sampleRowThreshold caps which tables get sample rows in the schema card:
// only tables below this row count are sampled.
const sampleRowThreshold = 1000

// maxSampleRows bounds the sample included per table.
const maxSampleRows = 3

// buildSchemaCard profiles the selected tables into the schema card that
// grounds every prompt. A table that fails to profile is skipped; a catalog
// failure yields an empty card with the error noted, never an aborted run.
func (e *Engine) buildSchemaCard(ctx context.Context, state *State, tables []string) *models.SchemaCard {
	card := &models.SchemaCard{GeneratedAt: time.Now().UTC()}

	for _, table := range tables {
		profiled, err := e.profileTable(ctx, state, table)
		if err != nil {
			e.logger.Warn("failed to profile table",
				zap.String("job_id", state.JobID),
				zap.String("table", table),
				zap.Error(err))
			continue
		}
		card.Tables = append(card.Tables, profiled)

		e.logger.Debug("profiled table",
			zap.String("table", table),
			zap.Int("columns", len(profiled.Columns)),
			zap.Int64("rows", profiled.RowCount))
	}

	return card
}

func (e *Engine) profileTable(ctx context.Context, state *State, table string) (models.SchemaTable, error) {
	conn := state.Connector

	columns, err := conn.GetColumns(ctx, table)
	if err != nil {
		return models.SchemaTable{}, fmt.Errorf("get columns: %w", err)
	}

	profile, err := conn.ProfileCounts(ctx, table, "")
	if err != nil {
		return models.SchemaTable{}, fmt.Errorf("profile counts: %w", err)
	}

	profiled := models.SchemaTable{
		Name:     table,
		Columns:  columns,
		RowCount: profile.TotalRows,
	}

	// Sample data is optional; only small tables are worth sampling.
	if profile.TotalRows > 0 && profile.TotalRows < sampleRowThreshold {
		sampleSQL := fmt.Sprintf("SELECT * FROM %s", conn.QuoteIdent(table))
		if result, err := conn.RunSQL(ctx, sampleSQL, nil, maxSampleRows); err == nil {
			rows := result.Rows
			if len(rows) > maxSampleRows {
				rows = rows[:maxSampleRows]
			}
			profiled.SampleRows = rows
		}
	}

	return profiled, nil
}
