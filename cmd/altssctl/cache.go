package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/platform/cache"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Manage the directory cache"}

	run := func(bump bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			client, err := cache.New(cmd.Context(), opts.redisAddr)
			if err != nil {
				return err
			}
			defer client.Close()
			c := backend.NewCache(client, 0)
			var version int64
			if bump {
				version, err = c.Bump(cmd.Context())
			} else {
				version, err = c.Version(cmd.Context())
			}
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cache version %d\n", version)
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{Use: "version", Short: "Show the cache version", RunE: run(false)},
		&cobra.Command{Use: "bump", Short: "Invalidate cached directory data", RunE: run(true)},
	)
	return cmd
}
