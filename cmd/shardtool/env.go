package main

import (
	"fmt"

	"github.com/Noofbiz/bertShards/distributed"
	"github.com/spf13/cobra"
)

func newEnvCommand(_ *globalOptions) *cobra.Command {
	var (
		opts  distributed.Options
		apply bool
	)

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Resolve the distributed training environment from launcher variables",
		Long: `Resolve rank, world size and master address from the MPI launcher
variables (OMPI_COMM_WORLD_*, AZ_BATCH_MASTER_NODE, AZ_BATCHAI_MPI_MASTER_NODE)
and print the variables a training process would see.

Without --apply the environment is only read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg *distributed.Config
				err error
			)
			if apply {
				cfg, err = distributed.ConfigureEnv(distributed.OSEnv{}, opts)
			} else {
				cfg, err = distributed.Resolve(distributed.OSEnv{}, opts)
			}
			if err != nil {
				return err
			}
			printConfig(cmd, cfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.SingleNode, "single-node", false, "take the master from AZ_BATCHAI_MPI_MASTER_NODE and use the fixed single-node port")
	f.IntVar(&opts.MasterPort, "master-port", distributed.DefaultMasterPort, "master port when MASTER_PORT is not already set")
	f.StringVar(&opts.SocketIfname, "socket-ifname", distributed.DefaultSocketIfname, "value for NCCL_SOCKET_IFNAME")
	f.BoolVar(&apply, "apply", false, "also export the resolved variables into this process")
	return cmd
}

func printConfig(cmd *cobra.Command, cfg *distributed.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s=%d\n", distributed.EnvRank, cfg.Rank)
	fmt.Fprintf(out, "%s=%d\n", distributed.EnvWorldSize, cfg.WorldSize)
	fmt.Fprintf(out, "%s=%s\n", distributed.EnvMasterAddr, cfg.MasterAddr)
	fmt.Fprintf(out, "%s=%d\n", distributed.EnvMasterPort, cfg.MasterPort)
	fmt.Fprintf(out, "%s=%s\n", distributed.EnvSocketIfname, cfg.SocketIfname)
	if cfg.MasterPortPreset {
		fmt.Fprintln(out, "# MASTER_PORT was already set and was kept")
	}
}
