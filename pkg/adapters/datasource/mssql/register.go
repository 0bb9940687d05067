package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register("mssql", func(ctx context.Context, cfg datasource.Config, logger *zap.Logger) (datasource.Connector, error) {
		return New(ctx, cfg, logger)
	})
}
