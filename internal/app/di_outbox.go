package app

import (
	"fmt"

	outboxRepository "github.com/allisson/gridgate/internal/outbox/repository"
	outboxUsecase "github.com/allisson/gridgate/internal/outbox/usecase"
)

// OutboxRepository returns the outbox event repository based on database driver.
func (c *Container) OutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	var err error
	c.outboxRepoInit.Do(func() {
		c.outboxRepo, err = c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxRepo"]; exists {
		return nil, storedErr
	}
	return c.outboxRepo, nil
}

// OutboxUseCase returns the outbox worker use case that publishes presence
// events.
func (c *Container) OutboxUseCase() (outboxUsecase.UseCase, error) {
	var err error
	c.outboxUseCaseInit.Do(func() {
		c.outboxUseCase, err = c.initOutboxUseCase()
		if err != nil {
			c.initErrors["outboxUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxUseCase"]; exists {
		return nil, storedErr
	}
	return c.outboxUseCase, nil
}

// initOutboxRepository creates the outbox event repository instance.
func (c *Container) initOutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return outboxRepository.NewMySQLOutboxEventRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLOutboxEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOutboxUseCase creates the outbox use case with all its dependencies.
func (c *Container) initOutboxUseCase() (outboxUsecase.UseCase, error) {
	logger := c.Logger()

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox use case: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for outbox use case: %w", err)
	}

	useCaseConfig := outboxUsecase.Config{
		Interval:   c.config.WorkerInterval,
		BatchSize:  c.config.WorkerBatchSize,
		MaxRetries: c.config.WorkerMaxRetries,
	}

	eventProcessor := outboxUsecase.NewPresenceEventProcessor(logger)
	useCase := outboxUsecase.NewOutboxUseCase(useCaseConfig, txManager, outboxRepo, eventProcessor, logger)

	return useCase, nil
}
