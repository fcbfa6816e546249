package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/Noofbiz/bertShards/datasets"
	"github.com/Noofbiz/bertShards/shardfile"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newInspectCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect SHARD...",
		Short: "Print the columns and sizes of shard files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := inspectShard(cmd.OutOrStdout(), path, opts); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func inspectShard(w io.Writer, path string, opts *globalOptions) error {
	st, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}
	f, err := shardfile.Read(path, shardfile.ReadOptions{UseMmap: opts.useMmap})
	if err != nil {
		return &datasets.ShardError{Path: path, Err: err}
	}

	var raw uint64
	for _, c := range f.Columns {
		raw += uint64(len(c.Data)) * 4
	}
	fmt.Fprintf(w, "%s: %s samples, %s on disk, %s decoded\n",
		path, humanize.Comma(int64(f.Rows())), humanize.Bytes(uint64(st.Size())), humanize.Bytes(raw))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  COLUMN\tROWS\tWIDTH\tSIZE")
	for _, c := range f.Columns {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%s\n", c.Name, c.Rows, c.Width, humanize.Bytes(uint64(len(c.Data))*4))
	}
	return tw.Flush()
}
