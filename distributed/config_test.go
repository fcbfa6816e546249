package distributed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func launcherEnv(extra map[string]string) *MapEnv {
	vars := map[string]string{
		EnvLauncherRank:      "3",
		EnvLauncherSize:      "8",
		EnvLauncherLocalRank: "1",
		EnvLauncherLocalSize: "4",
		EnvMasterNode:        "10.0.0.4:6000",
		EnvSingleNodeMaster:  "node-0",
		EnvSocketIfname:      "eth0",
	}
	for k, v := range extra {
		vars[k] = v
	}
	return NewMapEnv(vars)
}

func get(t *testing.T, env *MapEnv, key string) string {
	t.Helper()
	v, ok := env.LookupEnv(key)
	require.True(t, ok, "%s not set", key)
	return v
}

func TestConfigureMultiNode(t *testing.T) {
	env := launcherEnv(nil)
	cfg, err := ConfigureEnv(env, Options{MasterPort: 7000})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Rank)
	assert.Equal(t, 8, cfg.WorldSize)
	assert.Equal(t, "10.0.0.4", cfg.MasterAddr)
	assert.Equal(t, 7000, cfg.MasterPort)
	assert.False(t, cfg.MasterPortPreset)
	assert.Equal(t, "eth0", cfg.PreviousSocketIfname)

	assert.Equal(t, "3", get(t, env, EnvRank))
	assert.Equal(t, "8", get(t, env, EnvWorldSize))
	assert.Equal(t, "10.0.0.4", get(t, env, EnvMasterAddr))
	assert.Equal(t, "7000", get(t, env, EnvMasterPort))
	assert.Equal(t, DefaultSocketIfname, get(t, env, EnvSocketIfname))
}

func TestConfigureKeepsPresetMasterPort(t *testing.T) {
	env := launcherEnv(map[string]string{EnvMasterPort: "29500"})
	cfg, err := ConfigureEnv(env, Options{MasterPort: DefaultMasterPort})
	require.NoError(t, err)

	assert.True(t, cfg.MasterPortPreset)
	assert.Equal(t, 29500, cfg.MasterPort)
	assert.Equal(t, "29500", get(t, env, EnvMasterPort))
}

func TestConfigureDefaultPort(t *testing.T) {
	cfg, err := Resolve(launcherEnv(nil), Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMasterPort, cfg.MasterPort)
}

func TestConfigureSingleNode(t *testing.T) {
	env := launcherEnv(map[string]string{EnvMasterPort: "29500"})
	cfg, err := ConfigureEnv(env, Options{SingleNode: true, MasterPort: 7000})
	require.NoError(t, err)

	assert.Equal(t, "node-0", cfg.MasterAddr)
	assert.Equal(t, SingleNodeMasterPort, cfg.MasterPort)
	assert.Equal(t, "54965", get(t, env, EnvMasterPort))
}

func TestConfigureCustomSocketIfname(t *testing.T) {
	env := launcherEnv(nil)
	_, err := ConfigureEnv(env, Options{SocketIfname: "^lo"})
	require.NoError(t, err)
	assert.Equal(t, "^lo", get(t, env, EnvSocketIfname))
}

func TestConfigureErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     *MapEnv
		opts    Options
		wantVar string
	}{
		{
			name:    "malformed master descriptor",
			env:     launcherEnv(map[string]string{EnvMasterNode: "10.0.0.4"}),
			wantVar: EnvMasterNode,
		},
		{
			name:    "empty master host",
			env:     launcherEnv(map[string]string{EnvMasterNode: ":6000"}),
			wantVar: EnvMasterNode,
		},
		{
			name:    "non numeric rank",
			env:     launcherEnv(map[string]string{EnvLauncherRank: "three"}),
			wantVar: EnvLauncherRank,
		},
		{
			name:    "non numeric preset port",
			env:     launcherEnv(map[string]string{EnvMasterPort: "http"}),
			wantVar: EnvMasterPort,
		},
		{
			name:    "missing world size",
			env:     NewMapEnv(map[string]string{EnvLauncherRank: "0"}),
			wantVar: EnvLauncherSize,
		},
		{
			name:    "missing single node master",
			env:     NewMapEnv(map[string]string{EnvLauncherRank: "0", EnvLauncherSize: "1"}),
			opts:    Options{SingleNode: true},
			wantVar: EnvSingleNodeMaster,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConfigureEnv(tt.env, tt.opts)
			var cerr *ConfigurationError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.wantVar, cerr.Var)

			_, written := tt.env.LookupEnv(EnvRank)
			assert.False(t, written, "environment modified on failure")
		})
	}
}

func TestAccessors(t *testing.T) {
	env := launcherEnv(nil)
	_, err := WorldSizeFrom(env)
	assert.Error(t, err, "WORLD_SIZE is unset before Configure")

	_, err = ConfigureEnv(env, Options{})
	require.NoError(t, err)

	for _, tt := range []struct {
		name string
		fn   func(Environment) (int, error)
		want int
	}{
		{"local rank", LocalRankFrom, 1},
		{"global size", GlobalSizeFrom, 8},
		{"local size", LocalSizeFrom, 4},
		{"world size", WorldSizeFrom, 8},
		{"world rank", WorldRankFrom, 3},
	} {
		got, err := tt.fn(env)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	require.NoError(t, env.Setenv(EnvLauncherLocalRank, "x"))
	_, err = LocalRankFrom(env)
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "x", cerr.Value)
}

func TestOSAccessors(t *testing.T) {
	t.Setenv(EnvLauncherRank, "0")
	t.Setenv(EnvLauncherSize, "2")
	t.Setenv(EnvLauncherLocalRank, "0")
	t.Setenv(EnvLauncherLocalSize, "2")
	t.Setenv(EnvSingleNodeMaster, "localhost")
	t.Setenv(EnvMasterPort, "1")
	t.Setenv(EnvRank, "")
	t.Setenv(EnvWorldSize, "")
	t.Setenv(EnvMasterAddr, "")
	t.Setenv(EnvSocketIfname, "")

	cfg, err := Configure(true, DefaultMasterPort)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.MasterAddr)

	n, err := WorldSize()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	r, err := WorldRank()
	require.NoError(t, err)
	assert.Equal(t, 0, r)
	n, err = GlobalSize()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = LocalSize()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = LocalRank()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	cfg := &Config{Rank: 2}
	got, ok := FromContext(NewContext(context.Background(), cfg))
	require.True(t, ok)
	assert.Same(t, cfg, got)
}

func TestEnsureNoCoreRestriction(t *testing.T) {
	if err := EnsureNoCoreRestriction(); err != nil {
		assert.ErrorIs(t, err, ErrCoreRestricted)
	}
}

func TestParseCPUList(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"0", []int{0}},
		{"0-3\n", []int{0, 1, 2, 3}},
		{"0-1,4,6-7", []int{0, 1, 4, 6, 7}},
	}
	for _, tt := range tests {
		got, err := parseCPUList(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "a", "3-1", "0-", "-2"} {
		_, err := parseCPUList(bad)
		assert.Error(t, err, bad)
	}
}

func TestCheckCoreRestriction(t *testing.T) {
	online := []int{0, 1, 2, 3}

	all := func(int) bool { return true }
	assert.NoError(t, checkCoreRestriction(all, online))

	// Pinned to core 0, as under "taskset -c 0".
	pinned := func(cpu int) bool { return cpu == 0 }
	err := checkCoreRestriction(pinned, online)
	require.ErrorIs(t, err, ErrCoreRestricted)
	assert.Contains(t, err.Error(), "1 of 4")

	// CPUs outside the online list do not count.
	offlineToo := func(cpu int) bool { return cpu != 2 }
	assert.ErrorIs(t, checkCoreRestriction(offlineToo, online), ErrCoreRestricted)
	assert.NoError(t, checkCoreRestriction(offlineToo, []int{0, 1, 3}))
}
