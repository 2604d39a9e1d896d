package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/utils"
)

// tokenCmd mints an access token signed with JWT_SECRET for local testing.
// Production tokens are issued by the account service.
func tokenCmd() *cobra.Command {
	var (
		userID uint64
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if !cfg.IsDev() {
				return fmt.Errorf("token minting is only available when APP_ENV=development")
			}
			r := model.Role(role)
			switch r {
			case model.RoleAdmin, model.RoleStaff, model.RoleDoctor, model.RolePatient:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			tok, err := utils.NewAccessToken(cfg.JWTSecret, userID, r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&userID, "user", 0, "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", string(model.RolePatient), "Admin, Staff, Doctor or Patient")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
