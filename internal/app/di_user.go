package app

import (
	"fmt"

	userRepository "github.com/allisson/gridgate/internal/user/repository"
	userUsecase "github.com/allisson/gridgate/internal/user/usecase"
)

// ProfileRepository returns the profile repository based on database driver.
func (c *Container) ProfileRepository() (userUsecase.ProfileRepository, error) {
	var err error
	c.profileRepoInit.Do(func() {
		c.profileRepo, err = c.initProfileRepository()
		if err != nil {
			c.initErrors["profileRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["profileRepo"]; exists {
		return nil, storedErr
	}
	return c.profileRepo, nil
}

// IdentityRepository returns the identity mapping repository based on database driver.
func (c *Container) IdentityRepository() (userUsecase.IdentityRepository, error) {
	var err error
	c.identityRepoInit.Do(func() {
		c.identityRepo, err = c.initIdentityRepository()
		if err != nil {
			c.initErrors["identityRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["identityRepo"]; exists {
		return nil, storedErr
	}
	return c.identityRepo, nil
}

// UserUseCase returns the profile use case.
func (c *Container) UserUseCase() (userUsecase.UseCase, error) {
	var err error
	c.userUseCaseInit.Do(func() {
		c.userUseCase, err = c.initUserUseCase()
		if err != nil {
			c.initErrors["userUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["userUseCase"]; exists {
		return nil, storedErr
	}
	return c.userUseCase, nil
}

// initProfileRepository creates the profile repository instance.
func (c *Container) initProfileRepository() (userUsecase.ProfileRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for profile repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return userRepository.NewMySQLProfileRepository(db), nil
	case "postgres":
		return userRepository.NewPostgreSQLProfileRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initIdentityRepository creates the identity mapping repository instance.
func (c *Container) initIdentityRepository() (userUsecase.IdentityRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for identity repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return userRepository.NewMySQLIdentityRepository(db), nil
	case "postgres":
		return userRepository.NewPostgreSQLIdentityRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initUserUseCase creates the profile use case with all its dependencies.
func (c *Container) initUserUseCase() (userUsecase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for user use case: %w", err)
	}

	profileRepo, err := c.ProfileRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile repository for user use case: %w", err)
	}

	identityRepo, err := c.IdentityRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get identity repository for user use case: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for user use case: %w", err)
	}

	useCase, err := userUsecase.NewUserUseCase(
		txManager,
		profileRepo,
		identityRepo,
		outboxRepo,
		c.Logger(),
		uint32(c.config.DefaultHomeX),
		uint32(c.config.DefaultHomeY),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user use case: %w", err)
	}

	return useCase, nil
}
