package driver

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/evoapps/evotrees/internal/config"
)

// Open connects to the backend named in cfg.
func Open(ctx context.Context, cfg config.GraphConfig, logger logrus.FieldLogger) (GraphDriver, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryDriver(), nil
	case "memgraph", "neo4j":
		d, err := NewMemgraphDriver(ctx, cfg.URI, cfg.User, cfg.Password, Dialect(cfg.Backend), logger)
		if err != nil {
			return nil, err
		}
		d.Database = cfg.Database
		return d, nil
	default:
		return nil, fmt.Errorf("unknown graph backend %q", cfg.Backend)
	}
}
