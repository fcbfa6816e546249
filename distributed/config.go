package distributed

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DefaultMasterPort is used in multi-node mode when MASTER_PORT is unset.
	DefaultMasterPort = 6105

	// SingleNodeMasterPort is always used in single-node mode.
	SingleNodeMasterPort = 54965

	// DefaultSocketIfname keeps the backend off the docker bridge and loopback.
	DefaultSocketIfname = "^docker0,lo"
)

// Options selects how Resolve interprets the launcher variables.
type Options struct {
	// SingleNode takes the master address from AZ_BATCHAI_MPI_MASTER_NODE and
	// pins the port to SingleNodeMasterPort.
	SingleNode bool

	// MasterPort is the multi-node fallback port. Zero means DefaultMasterPort.
	MasterPort int

	// SocketIfname replaces NCCL_SOCKET_IFNAME. Empty means DefaultSocketIfname.
	SocketIfname string
}

// Config is the resolved distributed setup.
type Config struct {
	Rank       int
	WorldSize  int
	MasterAddr string
	MasterPort int

	// MasterPortPreset is true when MASTER_PORT was already set and was kept.
	MasterPortPreset bool

	SocketIfname         string
	PreviousSocketIfname string
	SingleNode           bool
}

// Resolve reads the launcher variables from env without modifying it.
func Resolve(env Environment, opts Options) (*Config, error) {
	rank, err := lookupInt(env, EnvLauncherRank)
	if err != nil {
		return nil, err
	}
	size, err := lookupInt(env, EnvLauncherSize)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Rank:         rank,
		WorldSize:    size,
		SingleNode:   opts.SingleNode,
		SocketIfname: opts.SocketIfname,
	}
	if cfg.SocketIfname == "" {
		cfg.SocketIfname = DefaultSocketIfname
	}
	cfg.PreviousSocketIfname, _ = env.LookupEnv(EnvSocketIfname)

	if opts.SingleNode {
		if cfg.MasterAddr, err = lookup(env, EnvSingleNodeMaster); err != nil {
			return nil, err
		}
		cfg.MasterPort = SingleNodeMasterPort
		return cfg, nil
	}

	node, err := lookup(env, EnvMasterNode)
	if err != nil {
		return nil, err
	}
	// The descriptor's port is never used: MASTER_PORT or the caller's
	// default applies.
	host, _, ok := strings.Cut(node, ":")
	if !ok {
		return nil, &ConfigurationError{Var: EnvMasterNode, Value: node, Reason: `want "host:port"`}
	}
	if host == "" {
		return nil, &ConfigurationError{Var: EnvMasterNode, Value: node, Reason: "empty host"}
	}
	cfg.MasterAddr = host

	if _, preset := env.LookupEnv(EnvMasterPort); preset {
		if cfg.MasterPort, err = lookupInt(env, EnvMasterPort); err != nil {
			return nil, err
		}
		cfg.MasterPortPreset = true
	} else {
		cfg.MasterPort = opts.MasterPort
		if cfg.MasterPort == 0 {
			cfg.MasterPort = DefaultMasterPort
		}
	}
	return cfg, nil
}

// Apply writes the resolved values into env. A preset MASTER_PORT is left
// untouched.
func (c *Config) Apply(env Environment) error {
	vars := []struct{ key, value string }{
		{EnvRank, strconv.Itoa(c.Rank)},
		{EnvWorldSize, strconv.Itoa(c.WorldSize)},
		{EnvMasterAddr, c.MasterAddr},
	}
	if !c.MasterPortPreset {
		vars = append(vars, struct{ key, value string }{EnvMasterPort, strconv.Itoa(c.MasterPort)})
	}
	vars = append(vars, struct{ key, value string }{EnvSocketIfname, c.SocketIfname})

	for _, v := range vars {
		if err := env.Setenv(v.key, v.value); err != nil {
			return errors.Wrapf(err, "set %s", v.key)
		}
	}
	return nil
}

// ConfigureEnv resolves and applies the configuration against env and logs
// the result.
func ConfigureEnv(env Environment, opts Options) (*Config, error) {
	cfg, err := Resolve(env, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(env); err != nil {
		return nil, err
	}
	cfg.log()
	return cfg, nil
}

// Configure resolves the launcher variables of this process and exports the
// backend variables into its environment.
func Configure(singleNode bool, masterPort int) (*Config, error) {
	return ConfigureEnv(OSEnv{}, Options{SingleNode: singleNode, MasterPort: masterPort})
}

func (c *Config) log() {
	klog.Infof("%s original value = %q", EnvSocketIfname, c.PreviousSocketIfname)
	klog.Infof("%s = %d", EnvRank, c.Rank)
	klog.Infof("%s = %d", EnvWorldSize, c.WorldSize)
	klog.Infof("%s = %s", EnvMasterAddr, c.MasterAddr)
	klog.Infof("%s = %d (preset=%t)", EnvMasterPort, c.MasterPort, c.MasterPortPreset)
	klog.Infof("%s new value = %q", EnvSocketIfname, c.SocketIfname)
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext returns the Config stored by NewContext, if any.
func FromContext(ctx context.Context) (*Config, bool) {
	cfg, ok := ctx.Value(contextKey{}).(*Config)
	return cfg, ok
}
