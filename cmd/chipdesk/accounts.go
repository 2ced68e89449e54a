package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/quailyquaily/chipdesk/accounts"
	"github.com/quailyquaily/chipdesk/internal/clifmt"
	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage monitored deposit accounts",
		Long: "Manage monitored deposit accounts. A running server picks up changes made " +
			"here on its next start; operator chat commands apply immediately.",
	}
	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsAddCmd())
	cmd.AddCommand(newAccountsDeleteCmd())
	cmd.AddCommand(newAccountsSetActiveCmd("activate", true))
	cmd.AddCommand(newAccountsSetActiveCmd("deactivate", false))
	cmd.AddCommand(newAccountsImportCmd())
	return cmd
}

func withStore(fn func(s *store) error) error {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return err
	}
	s, err := openStore(logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store) error {
				list, err := s.registry.List(cmd.Context())
				if err != nil {
					return err
				}
				printAccounts(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}
}

func printAccounts(out io.Writer, list []accounts.Account) {
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		status := "active"
		if !a.Active {
			status = "inactive"
		}
		rows = append(rows, []string{a.Alias, status, a.BankAlias, a.AccountNumber, a.MailAddress, a.OwnerName})
	}
	clifmt.PrintTable(out, clifmt.TableOptions{
		Title:     "Accounts",
		Headers:   []string{"ALIAS", "STATUS", "BANK ALIAS", "NUMBER", "MAIL", "OWNER"},
		Rows:      rows,
		EmptyText: "No accounts registered.",
	})
}

func newAccountsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <alias>",
		Short: "Add an account and its mailbox credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("mail-secret")
			if strings.TrimSpace(secret) == "" {
				var err error
				secret, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Mail app password: ")
				if err != nil {
					return err
				}
			}
			bankAlias, _ := cmd.Flags().GetString("bank-alias")
			number, _ := cmd.Flags().GetString("account-number")
			mail, _ := cmd.Flags().GetString("mail")
			owner, _ := cmd.Flags().GetString("owner")
			return withStore(func(s *store) error {
				created, err := s.registry.Create(cmd.Context(), accounts.Account{
					Alias:         args[0],
					BankAlias:     bankAlias,
					AccountNumber: number,
					MailAddress:   mail,
					MailSecret:    secret,
					OwnerName:     owner,
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", created.Alias)
				return nil
			})
		},
	}
	cmd.Flags().String("bank-alias", "", "Transfer alias shown to depositors.")
	cmd.Flags().String("account-number", "", "Account number shown to depositors.")
	cmd.Flags().String("mail", "", "Mailbox that receives credit notices.")
	cmd.Flags().String("mail-secret", "", "Mailbox app password (prompted when omitted).")
	cmd.Flags().String("owner", "", "Account holder name.")
	return cmd
}

// readSecret reads one line, without echo when in is a terminal.
func readSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newAccountsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <alias>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store) error {
				ok, err := s.registry.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no account with alias %s", args[0])
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newAccountsSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <alias>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " an account's mailbox watcher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store) error {
				ok, err := s.registry.SetActive(cmd.Context(), args[0], active)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no account with alias %s", args[0])
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", use, args[0])
				return nil
			})
		},
	}
}

func newAccountsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create accounts from a YAML file, skipping existing aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withStore(func(s *store) error {
				res, err := s.registry.ImportYAML(cmd.Context(), f)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d\n", len(res.Created), len(res.Skipped))
				return nil
			})
		},
	}
}
