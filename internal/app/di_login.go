package app

import (
	"fmt"
	"net/http"
	"net/url"

	logindomain "github.com/allisson/gridgate/internal/login/domain"
	loginHTTP "github.com/allisson/gridgate/internal/login/http"
	loginService "github.com/allisson/gridgate/internal/login/service"
	loginUsecase "github.com/allisson/gridgate/internal/login/usecase"
)

// LoginUseCase returns the capability negotiation use case, decorated with
// metrics when metrics are enabled.
func (c *Container) LoginUseCase() (loginUsecase.UseCase, error) {
	var err error
	c.loginUseCaseInit.Do(func() {
		c.loginUseCase, err = c.initLoginUseCase()
		if err != nil {
			c.initErrors["loginUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["loginUseCase"]; exists {
		return nil, storedErr
	}
	return c.loginUseCase, nil
}

// LoginStateMachine returns the undecorated negotiation state machine. The
// server command uses it to start the registry expiry sweepers.
func (c *Container) LoginStateMachine() (*loginUsecase.LoginUseCase, error) {
	if _, err := c.LoginUseCase(); err != nil {
		return nil, err
	}
	return c.loginStateMachine, nil
}

// Assembler returns the login response assembler.
func (c *Container) Assembler() (*loginService.Assembler, error) {
	var err error
	c.assemblerInit.Do(func() {
		c.assembler, err = c.initAssembler()
		if err != nil {
			c.initErrors["assembler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["assembler"]; exists {
		return nil, storedErr
	}
	return c.assembler, nil
}

// LoginHandler returns the gin handler for the login endpoints.
func (c *Container) LoginHandler() (*loginHTTP.LoginHandler, error) {
	var err error
	c.loginHandlerInit.Do(func() {
		c.loginHandler, err = c.initLoginHandler()
		if err != nil {
			c.initErrors["loginHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["loginHandler"]; exists {
		return nil, storedErr
	}
	return c.loginHandler, nil
}

// initLoginUseCase creates the negotiation state machine with all its
// dependencies.
func (c *Container) initLoginUseCase() (loginUsecase.UseCase, error) {
	cache, err := c.DescriptorCache()
	if err != nil {
		return nil, fmt.Errorf("failed to get descriptor cache for login use case: %w", err)
	}

	userUseCase, err := c.UserUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get user use case for login use case: %w", err)
	}

	serviceLocations, err := c.serviceLocations()
	if err != nil {
		return nil, err
	}

	externalURL, err := c.externalURL()
	if err != nil {
		return nil, err
	}

	c.loginStateMachine = loginUsecase.NewLoginUseCase(
		cache,
		c.TrustedFetcher(),
		c.AuthorizationClient(),
		userUseCase,
		nil,
		serviceLocations,
		externalURL,
		c.config.PendingAuthTTL,
		c.config.PendingLoginTTL,
		c.config.AuthCookieTTL,
		c.Logger(),
	)

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for login use case: %w", err)
	}

	return loginUsecase.NewUseCaseWithMetrics(c.loginStateMachine, businessMetrics), nil
}

// initAssembler creates the login response assembler.
func (c *Container) initAssembler() (*loginService.Assembler, error) {
	userUseCase, err := c.UserUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get user use case for assembler: %w", err)
	}

	handoffEndpoint, err := url.Parse(c.config.RegionHandoffURL)
	if err != nil {
		return nil, fmt.Errorf("invalid region handoff URL %q: %w", c.config.RegionHandoffURL, err)
	}

	inventory := loginService.NewSkeletonClient(&http.Client{Timeout: c.config.SeedCapabilityTimeout})
	region := loginService.NewXMLRPCRegionClient(
		&http.Client{Timeout: c.config.HandoffTimeout},
		handoffEndpoint,
		c.Logger(),
	)

	return loginService.NewAssembler(
		inventory,
		region,
		userUseCase,
		c.config.AllowLoginWithoutInventory,
		c.config.WelcomeMessage,
		c.Logger(),
	), nil
}

// initLoginHandler creates the login handler.
func (c *Container) initLoginHandler() (*loginHTTP.LoginHandler, error) {
	loginUseCase, err := c.LoginUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get login use case for login handler: %w", err)
	}

	userUseCase, err := c.UserUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get user use case for login handler: %w", err)
	}

	assembler, err := c.Assembler()
	if err != nil {
		return nil, fmt.Errorf("failed to get assembler for login handler: %w", err)
	}

	externalURL, err := c.externalURL()
	if err != nil {
		return nil, err
	}

	return loginHTTP.NewLoginHandler(
		loginUseCase,
		userUseCase,
		assembler,
		externalURL,
		int(c.config.AuthCookieTTL.Seconds()),
		c.Logger(),
	), nil
}

// serviceLocations maps each required service type to its configured
// descriptor location.
func (c *Container) serviceLocations() (map[string]*url.URL, error) {
	assetURL, err := url.Parse(c.config.AssetServiceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid asset service URL %q: %w", c.config.AssetServiceURL, err)
	}

	filesystemURL, err := url.Parse(c.config.FilesystemServiceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid filesystem service URL %q: %w", c.config.FilesystemServiceURL, err)
	}

	return map[string]*url.URL{
		logindomain.ServiceTypeAssets:     assetURL,
		logindomain.ServiceTypeFilesystem: filesystemURL,
	}, nil
}
