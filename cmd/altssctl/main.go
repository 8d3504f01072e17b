// Command altssctl runs operational tasks for the Altss dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	redisAddr string
	json      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "altssctl",
		Short:         "Operational tools for the Altss dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultRedis := os.Getenv("REDIS_ADDR")
	if defaultRedis == "" {
		defaultRedis = "127.0.0.1:6379"
	}
	cmd.PersistentFlags().StringVar(&opts.redisAddr, "redis", defaultRedis, "redis address or URL")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON")
	cmd.AddCommand(newJobsCmd(opts), newCacheCmd(opts), newDBCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "altssctl:", err)
		os.Exit(1)
	}
}
