package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/hawkgate/pkg/operator/jwt"
)

func newOperatorTokenCmd() *cobra.Command {
	var (
		secret string
		claims jwt.Claims
	)

	cmd := &cobra.Command{
		Use:   "operator-token",
		Short: "Issue an HS256 token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := jwt.Issue([]byte(secret), claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("HAWKGATE_JWT_SECRET"), "signing secret (env HAWKGATE_JWT_SECRET)")
	cmd.Flags().StringVar(&claims.Subject, "subject", "", "operator name (sub claim)")
	cmd.Flags().StringSliceVar(&claims.Scopes, "scope", nil, "granted scope, repeatable: bewits, credentials or *")
	cmd.Flags().StringVar(&claims.Issuer, "issuer", "", "iss claim")
	cmd.Flags().StringVar(&claims.Audience, "audience", "", "aud claim")
	cmd.Flags().DurationVar(&claims.TTL, "ttl", time.Hour, "token lifetime")
	return cmd
}
