package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/hawkgate/pkg/auth/hawk"
)

func newBewitCmd() *cobra.Command {
	var (
		creds credentialFlags
		ttl   time.Duration
		ext   string
		raw   bool
	)

	cmd := &cobra.Command{
		Use:   "bewit URL",
		Short: "Mint a bewit granting time-limited GET access to URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := creds.credentials()
			if err != nil {
				return err
			}
			token, err := hawk.Mint(c, args[0], ttl, ext)
			if err != nil {
				return err
			}
			if raw {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			shared, err := hawk.AppendBewit(args[0], token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared)
			return nil
		},
	}

	creds.register(cmd)
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "lifetime of the bewit, in whole seconds")
	cmd.Flags().StringVar(&ext, "ext", "", "application data bound into the bewit")
	cmd.Flags().BoolVar(&raw, "raw", false, "print only the token instead of the shareable URL")
	return cmd
}
