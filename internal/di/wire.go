package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
)

// Wire initializes all dependencies and returns the configured
// container plus the background job instances. Order matters:
// databases, then repositories, then services, then jobs.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	InitializeRepositories(container, log)

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	jobs := RegisterJobs(container, cfg, log)

	log.Info().Msg("Dependency wiring completed")
	return container, jobs, nil
}
