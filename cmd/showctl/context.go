package main

import (
	"strings"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/showrunner/internal/config"
	"github.com/makeasinger/showrunner/internal/service"
	"github.com/makeasinger/showrunner/internal/store"
)

type commandContext struct {
	dbFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	store     *store.Store
	ownsStore bool
	asynq     *asynq.Client
	closed    bool

	// enqueuer replaces the asynq client in tests
	enqueuer service.TaskEnqueuer
}

func newCommandContext(dbFlag *string) *commandContext {
	return &commandContext{dbFlag: dbFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func (c *commandContext) openStore() (*store.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	path := ""
	if c.dbFlag != nil {
		path = strings.TrimSpace(*c.dbFlag)
	}
	if path == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Store.Path
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	c.store = st
	c.ownsStore = true
	return st, nil
}

func (c *commandContext) options() (service.Options, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return service.Options{}, err
	}
	return service.OptionsFromConfig(cfg), nil
}

func (c *commandContext) taskEnqueuer() (service.TaskEnqueuer, error) {
	if c.enqueuer != nil {
		return c.enqueuer, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.asynq = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	c.enqueuer = c.asynq
	return c.enqueuer, nil
}

func (c *commandContext) close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.asynq != nil {
		c.asynq.Close()
	}
	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}
