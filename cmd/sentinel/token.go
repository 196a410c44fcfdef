package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/estatehub/sentinel/internal/config"
	"github.com/estatehub/sentinel/internal/tokens"
)

var (
	tokenSubject string
	tokenRoles   []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the job trigger endpoints",
	Long: `Issue a bearer token signed with auth.jwt_secret. Tokens with the admin or
service role may trigger jobs; any valid token may read job status.

Example:
  curl -X POST -H "Authorization: Bearer $(sentinel token --role service)" \
    localhost:8090/api/v1/jobs/export`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not set")
		}
		token, err := tokens.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Generate(tokenSubject, tokenRoles)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{"admin"}, "roles to grant")
	rootCmd.AddCommand(tokenCmd)
}
