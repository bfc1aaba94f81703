package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/samber/lo"
	"github.com/yz4230/bluegreen/internal/entity"
	"github.com/yz4230/bluegreen/internal/prober"
	"github.com/yz4230/bluegreen/internal/router"
	"github.com/yz4230/bluegreen/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	DefaultContainerPort = 8080
	DefaultRouterDir     = "/etc/nginx/bluegreen"
)

var (
	DefaultPorts         = map[entity.SlotID]int{entity.SlotA: 8081, entity.SlotB: 8082}
	DefaultVerifyCommand = []string{"nginx", "-t"}
	DefaultReloadCommand = []string{"nginx", "-s", "reload"}
)

// Environment describes how one environment's slots are run and routed.
type Environment struct {
	Name          string                `yaml:"-"`
	Ports         map[entity.SlotID]int `yaml:"ports"`
	ContainerPort int                   `yaml:"container_port"`
	Env           map[string]string     `yaml:"env"`
	Health        prober.Settings       `yaml:"health"`
	Router        router.Settings       `yaml:"router"`
}

// EnvVars renders Env as sorted KEY=VALUE pairs.
func (e *Environment) EnvVars() []string {
	keys := slices.Sorted(maps.Keys(e.Env))
	return lo.Map(keys, func(k string, _ int) string { return k + "=" + e.Env[k] })
}

// merge fills zero fields of e from d.
func (e *Environment) merge(d Environment) {
	if len(e.Ports) == 0 {
		e.Ports = maps.Clone(d.Ports)
	}
	if e.ContainerPort == 0 {
		e.ContainerPort = d.ContainerPort
	}
	if len(d.Env) > 0 {
		env := maps.Clone(d.Env)
		maps.Copy(env, e.Env)
		e.Env = env
	}
	if e.Health == (prober.Settings{}) {
		e.Health = d.Health
	}
	if e.Router.Dir == "" {
		e.Router.Dir = d.Router.Dir
	}
	if e.Router.HostIP == "" {
		e.Router.HostIP = d.Router.HostIP
	}
	if e.Router.VerifyCommand == nil {
		e.Router.VerifyCommand = d.Router.VerifyCommand
	}
	if e.Router.ReloadCommand == nil {
		e.Router.ReloadCommand = d.Router.ReloadCommand
	}
}

func (e *Environment) validate() error {
	for _, id := range entity.SlotIDs {
		port, ok := e.Ports[id]
		if !ok || port <= 0 || port > 65535 {
			return fmt.Errorf("%w: environment %s: slot %s needs a port", entity.ErrInvalid, e.Name, id)
		}
	}
	if len(e.Ports) != len(entity.SlotIDs) {
		return fmt.Errorf("%w: environment %s: only slots A and B may have ports", entity.ErrInvalid, e.Name)
	}
	if e.Ports[entity.SlotA] == e.Ports[entity.SlotB] {
		return fmt.Errorf("%w: environment %s: slots share port %d", entity.ErrInvalid, e.Name, e.Ports[entity.SlotA])
	}
	if e.ContainerPort <= 0 || e.ContainerPort > 65535 {
		return fmt.Errorf("%w: environment %s: bad container port %d", entity.ErrInvalid, e.Name, e.ContainerPort)
	}
	if e.Health.Strategy != "" && e.Health.Strategy != prober.HTTPStrategy && e.Health.Strategy != prober.TCPStrategy {
		return fmt.Errorf("%w: environment %s: unknown health strategy %q", entity.ErrInvalid, e.Name, e.Health.Strategy)
	}
	return nil
}

// Catalog is the environment file. Environments it does not list get the
// defaults.
type Catalog struct {
	Defaults     Environment            `yaml:"defaults"`
	Environments map[string]Environment `yaml:"environments"`
}

func builtinDefaults() Environment {
	return Environment{
		Ports:         maps.Clone(DefaultPorts),
		ContainerPort: DefaultContainerPort,
		Router: router.Settings{
			Dir:           DefaultRouterDir,
			VerifyCommand: DefaultVerifyCommand,
			ReloadCommand: DefaultReloadCommand,
		},
	}
}

// LoadCatalog reads the catalog at path. An empty path yields a catalog
// with only the built-in defaults.
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("%w: parse catalog %s: %v", entity.ErrInvalid, path, err)
		}
	}
	c.Defaults.merge(builtinDefaults())
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	owners := map[int]string{}
	for _, name := range slices.Sorted(maps.Keys(c.Environments)) {
		if err := ValidateName(name); err != nil {
			return err
		}
		env, err := c.Environment(name)
		if err != nil {
			return err
		}
		for _, id := range entity.SlotIDs {
			port := env.Ports[id]
			if other, ok := owners[port]; ok {
				return fmt.Errorf("%w: port %d used by both %s and %s", entity.ErrInvalid, port, other, name)
			}
			owners[port] = name
		}
	}
	return nil
}

// Environment resolves name against the catalog.
func (c *Catalog) Environment(name string) (Environment, error) {
	if err := ValidateName(name); err != nil {
		return Environment{}, err
	}
	env := c.Environments[name]
	env.Name = name
	env.merge(c.Defaults)
	if err := env.validate(); err != nil {
		return Environment{}, err
	}
	return env, nil
}

// Names lists the environments the catalog declares.
func (c *Catalog) Names() []string {
	return slices.Sorted(maps.Keys(c.Environments))
}

var errEmptyName = errors.New("empty environment name")

// ValidateName accepts names that are safe as file and container name parts.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: %v", entity.ErrInvalid, errEmptyName)
	}
	if utils.SanitizeName(name) != name || name == "." || name == ".." {
		return fmt.Errorf("%w: environment name %q", entity.ErrInvalid, name)
	}
	return nil
}
