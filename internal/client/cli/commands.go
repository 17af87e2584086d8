package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/rollcall/internal/client/client"
	"github.com/spf13/cobra"
)

func (a *App) loginCmd() *cobra.Command {
	var email, password string
	var printToken bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if email == "" {
				var err error
				email, err = GetSimpleText(bufio.NewReader(cmd.InOrStdin()), "Email", out)
				if err != nil {
					return err
				}
			}
			if password == "" {
				var err error
				password, err = GetPassword(out)
				if err != nil {
					return err
				}
			}

			token, err := a.api.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			if printToken {
				fmt.Fprintln(out, token)
				return nil
			}
			if err := a.config.SaveToken(token); err != nil {
				return err
			}
			fmt.Fprintln(out, "✓ Login successful")
			fmt.Fprintf(out, "  Token saved to: %s\n", a.config.TokenFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	cmd.Flags().BoolVar(&printToken, "print-token", false, "print the token instead of saving it")
	return cmd
}

func (a *App) createAccountCmd() *cobra.Command {
	var r client.AccountRequest

	cmd := &cobra.Command{
		Use:   "create-account",
		Short: "Create an account (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if r.Password == "" {
				var err error
				r.Password, err = GetPassword(out)
				if err != nil {
					return err
				}
			}

			acc, err := a.api.CreateAccount(cmd.Context(), r)
			if err != nil {
				return fmt.Errorf("create account failed: %w", err)
			}

			fmt.Fprintln(out, acc.Message)
			fmt.Fprintf(out, "  uid:    %s\n", acc.UID)
			fmt.Fprintf(out, "  userId: %s\n", acc.UserID)
			fmt.Fprintf(out, "  email:  %s\n", acc.Email)
			fmt.Fprintf(out, "  role:   %s\n", acc.Role)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&r.Email, "email", "e", "", "account email")
	f.StringVarP(&r.Role, "role", "r", "", "account role, e.g. student or alumni")
	f.StringVarP(&r.DisplayName, "display-name", "n", "", "display name")
	f.StringVarP(&r.Password, "password", "p", "", "initial password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func (a *App) allocateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "allocate <namespace> [prefix]",
		Short: "Issue the next identifier of a namespace (admin only)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 2 {
				prefix = args[1]
			}

			id, err := a.api.Allocate(cmd.Context(), args[0], prefix)
			if err != nil {
				return fmt.Errorf("allocate failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.Value)
			return nil
		},
	}
}

func printCounter(cmd *cobra.Command, c *client.Counter) {
	fmt.Fprintf(cmd.OutOrStdout(), "namespace=%s prefix=%q pad_width=%d last_issued=%d\n",
		c.Namespace, c.Prefix, c.PadWidth, c.LastIssued)
}

func (a *App) peekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peek <namespace>",
		Short: "Show a counter without advancing it (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.api.Peek(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("peek failed: %w", err)
			}
			printCounter(cmd, c)
			return nil
		},
	}
}

func (a *App) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <namespace> <prefix> <last-issued>",
		Short: "Move a counter forward, e.g. after importing accounts (admin only)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			last, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("last-issued must be an integer: %w", err)
			}

			c, err := a.api.Seed(cmd.Context(), args[0], args[1], last)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			printCounter(cmd, c)
			return nil
		},
	}
}

func (a *App) postDocumentCmd() *cobra.Command {
	var pairs []string
	var raw string

	cmd := &cobra.Command{
		Use:   "post-document <path>",
		Short: "Create a document, e.g. events/<id> or posts (auto key)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := ParseFields(pairs)
			if err != nil {
				return err
			}
			if raw != "" {
				var typed map[string]any
				if err := json.Unmarshal([]byte(raw), &typed); err != nil {
					return fmt.Errorf("--json: %w", err)
				}
				for k, v := range typed {
					fields[k] = v
				}
			}

			ref, err := a.api.CreateDocument(cmd.Context(), args[0], fields)
			if err != nil {
				return fmt.Errorf("post document failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ref.Path)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&pairs, "field", "f", nil, "field as name=value, repeatable")
	cmd.Flags().StringVar(&raw, "json", "", "fields as a JSON object")
	return cmd
}
