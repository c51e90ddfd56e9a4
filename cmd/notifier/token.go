package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"notifier/internal/auth"
	"notifier/internal/credentials"
)

type tokenOptions struct {
	username  string
	admin     bool
	studentID int64
	teacherID int64
	roles     []string
	ttl       time.Duration
	save      string
}

func newTokenCommand(c *cli) *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		Long: `Issue an access token signed with auth.jwt_secret, for trying the hub
without the school backend.

Examples:
  notifier token --username head --admin
  notifier token --username amani --student-id 42 --save ~/.school/token`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ttl := c.cfg.Auth.TokenTTL
			if opts.ttl > 0 {
				ttl = opts.ttl
			}
			issuer, err := auth.NewIssuer(c.cfg.Auth.JWTSecret, c.cfg.Auth.Issuer, ttl)
			if err != nil {
				return err
			}

			claims := &auth.Claims{
				Username:  opts.username,
				IsAdmin:   opts.admin,
				IsStudent: opts.studentID > 0,
				IsTeacher: opts.teacherID > 0,
				StudentID: opts.studentID,
				TeacherID: opts.teacherID,
				Roles:     opts.roles,
			}
			claims.Subject = opts.username
			if opts.studentID > 0 {
				claims.Subject = "student:" + strconv.FormatInt(opts.studentID, 10)
			}

			token, err := issuer.Issue(claims)
			if err != nil {
				return err
			}

			if opts.save != "" {
				store, err := credentials.NewFileStore(opts.save, c.logger)
				if err != nil {
					return err
				}
				if err := store.Set(token); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", store.Path())
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.username, "username", "dev", "Username claim")
	cmd.Flags().BoolVar(&opts.admin, "admin", false, "Grant the administrator capability")
	cmd.Flags().Int64Var(&opts.studentID, "student-id", 0, "Student id claim")
	cmd.Flags().Int64Var(&opts.teacherID, "teacher-id", 0, "Teacher id claim")
	cmd.Flags().StringSliceVar(&opts.roles, "role", nil, "Role claims")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	cmd.Flags().StringVar(&opts.save, "save", "", "Write the token to this file instead of stdout")
	return cmd
}
