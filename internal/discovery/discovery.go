package discovery

import (
	"context"
	"fmt"
	"os"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/config"
)

// Registrar announces this instance to a service registry.
type Registrar interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

type noopRegistrar struct{}

func (noopRegistrar) Register(context.Context) error   { return nil }
func (noopRegistrar) Deregister(context.Context) error { return nil }

type consulRegistrar struct {
	client *consulapi.Client
	reg    *consulapi.AgentServiceRegistration
}

func (c *consulRegistrar) Register(ctx context.Context) error {
	opts := consulapi.ServiceRegisterOpts{}.WithContext(ctx)
	if err := c.client.Agent().ServiceRegisterOpts(c.reg, opts); err != nil {
		return fmt.Errorf("consul register %s: %w", c.reg.ID, err)
	}
	log.Info().Str("id", c.reg.ID).Str("address", c.reg.Address).Int("port", c.reg.Port).Msg("registered with consul")
	return nil
}

func (c *consulRegistrar) Deregister(ctx context.Context) error {
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	if err := c.client.Agent().ServiceDeregisterOpts(c.reg.ID, q); err != nil {
		return fmt.Errorf("consul deregister %s: %w", c.reg.ID, err)
	}
	log.Info().Str("id", c.reg.ID).Msg("deregistered from consul")
	return nil
}

// New returns a Consul registrar when consul.addr is set, otherwise one that does nothing.
func New(cfg *config.Config) (Registrar, error) {
	if cfg.Consul.Addr == "" {
		return noopRegistrar{}, nil
	}
	cc := consulapi.DefaultConfig()
	cc.Address = cfg.Consul.Addr
	client, err := consulapi.NewClient(cc)
	if err != nil {
		return nil, err
	}

	name := cfg.Consul.ServiceName
	if name == "" {
		name = cfg.App.Name
	}
	addr := cfg.Consul.ServiceAddress
	if addr == "" {
		if addr, err = os.Hostname(); err != nil {
			addr = "127.0.0.1"
		}
	}
	port, err := strconv.Atoi(cfg.App.Port)
	if err != nil {
		return nil, fmt.Errorf("app.port %q: %w", cfg.App.Port, err)
	}

	return &consulRegistrar{
		client: client,
		reg: &consulapi.AgentServiceRegistration{
			ID:      fmt.Sprintf("%s-%s-%d", name, addr, port),
			Name:    name,
			Address: addr,
			Port:    port,
			Tags:    []string{cfg.App.Env},
			Check: &consulapi.AgentServiceCheck{
				HTTP:                           fmt.Sprintf("http://%s:%d/health", addr, port),
				Interval:                       "10s",
				Timeout:                        "2s",
				DeregisterCriticalServiceAfter: "1m",
			},
		},
	}, nil
}
