package distributed

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Launcher-provided variables.
const (
	EnvLauncherRank      = "OMPI_COMM_WORLD_RANK"
	EnvLauncherSize      = "OMPI_COMM_WORLD_SIZE"
	EnvLauncherLocalRank = "OMPI_COMM_WORLD_LOCAL_RANK"
	EnvLauncherLocalSize = "OMPI_COMM_WORLD_LOCAL_SIZE"
	EnvMasterNode        = "AZ_BATCH_MASTER_NODE"
	EnvSingleNodeMaster  = "AZ_BATCHAI_MPI_MASTER_NODE"
	EnvSocketIfname      = "NCCL_SOCKET_IFNAME"
)

// Backend-facing variables written by Configure.
const (
	EnvRank       = "RANK"
	EnvWorldSize  = "WORLD_SIZE"
	EnvMasterAddr = "MASTER_ADDR"
	EnvMasterPort = "MASTER_PORT"
)

// Environment is the variable store Configure reads from and writes to.
type Environment interface {
	LookupEnv(key string) (string, bool)
	Setenv(key, value string) error
}

// OSEnv is the process environment.
type OSEnv struct{}

func (OSEnv) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }
func (OSEnv) Setenv(key, value string) error      { return os.Setenv(key, value) }

// MapEnv is an in-memory Environment, safe for concurrent use.
type MapEnv struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMapEnv returns a MapEnv seeded with vars.
func NewMapEnv(vars map[string]string) *MapEnv {
	m := &MapEnv{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		m.vars[k] = v
	}
	return m
}

func (m *MapEnv) LookupEnv(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[key]
	return v, ok
}

func (m *MapEnv) Setenv(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[key] = value
	return nil
}

// ConfigurationError reports a missing or unusable distributed-training
// variable.
type ConfigurationError struct {
	Var    string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("distributed: %s: %s", e.Var, e.Reason)
	}
	return fmt.Sprintf("distributed: %s=%q: %s", e.Var, e.Value, e.Reason)
}

func lookup(env Environment, key string) (string, error) {
	v, ok := env.LookupEnv(key)
	if !ok {
		return "", &ConfigurationError{Var: key, Reason: "not set"}
	}
	return v, nil
}

func lookupInt(env Environment, key string) (int, error) {
	v, err := lookup(env, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ConfigurationError{Var: key, Value: v, Reason: "not an integer"}
	}
	return n, nil
}

// LocalRankFrom returns the launcher's per-node rank.
func LocalRankFrom(env Environment) (int, error) { return lookupInt(env, EnvLauncherLocalRank) }

// GlobalSizeFrom returns the launcher's total process count.
func GlobalSizeFrom(env Environment) (int, error) { return lookupInt(env, EnvLauncherSize) }

// LocalSizeFrom returns the launcher's per-node process count.
func LocalSizeFrom(env Environment) (int, error) { return lookupInt(env, EnvLauncherLocalSize) }

// WorldSizeFrom returns WORLD_SIZE as written by Configure.
func WorldSizeFrom(env Environment) (int, error) { return lookupInt(env, EnvWorldSize) }

// WorldRankFrom returns RANK as written by Configure.
func WorldRankFrom(env Environment) (int, error) { return lookupInt(env, EnvRank) }

func LocalRank() (int, error)  { return LocalRankFrom(OSEnv{}) }
func GlobalSize() (int, error) { return GlobalSizeFrom(OSEnv{}) }
func LocalSize() (int, error)  { return LocalSizeFrom(OSEnv{}) }
func WorldSize() (int, error)  { return WorldSizeFrom(OSEnv{}) }
func WorldRank() (int, error)  { return WorldRankFrom(OSEnv{}) }
