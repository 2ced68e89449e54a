package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quailyquaily/chipdesk/accounts"
	"github.com/quailyquaily/chipdesk/internal/outputfmt"
	"github.com/quailyquaily/chipdesk/supervisor"
)

const (
	cmdAddAccount    = "add account"
	cmdDeleteAccount = "delete account"
)

// operatorCommand runs one operator command and returns the reply text.
func (e *Engine) operatorCommand(ctx context.Context, text string) string {
	lower := strings.ToLower(text)
	switch {
	case lower == "maintenance":
		e.SetMaintenance(true)
		return "Maintenance mode on. Users get the maintenance notice."
	case lower == "resume":
		e.SetMaintenance(false)
		return "Maintenance mode off."
	case lower == "status":
		var workers []supervisor.Status
		if e.workers != nil {
			workers = e.workers.Workers()
		}
		return statusText(e.Maintenance(), workers)
	case lower == "list accounts":
		if e.registry == nil {
			return operatorUsage
		}
		list, err := e.registry.List(ctx)
		if err != nil {
			e.logger.Warn("operator_list_failed", "error", err.Error())
			return "Could not list accounts: " + outputfmt.ErrorText(err)
		}
		return accountsText(list)
	case hasCommand(lower, cmdAddAccount):
		return e.addAccount(ctx, strings.TrimSpace(text[len(cmdAddAccount):]))
	case hasCommand(lower, cmdDeleteAccount):
		return e.deleteAccount(ctx, strings.TrimSpace(text[len(cmdDeleteAccount):]))
	default:
		return operatorUsage
	}
}

func hasCommand(lower, cmd string) bool {
	if !strings.HasPrefix(lower, cmd) {
		return false
	}
	rest := lower[len(cmd):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// ParseAccountFields splits "internal/bank/number/mail/secret/owner". Spaces
// inside the secret are removed; the owner is the remainder and may contain
// spaces or slashes.
func ParseAccountFields(args string) (accounts.Account, error) {
	fields := strings.SplitN(args, "/", 6)
	if len(fields) != 6 {
		return accounts.Account{}, fmt.Errorf("%w: got %d fields, want 6", accounts.ErrInvalid, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return accounts.Account{
		Alias:         fields[0],
		BankAlias:     fields[1],
		AccountNumber: fields[2],
		MailAddress:   fields[3],
		MailSecret:    strings.ReplaceAll(fields[4], " ", ""),
		OwnerName:     fields[5],
		Active:        true,
	}, nil
}

func (e *Engine) addAccount(ctx context.Context, args string) string {
	if e.registry == nil {
		return operatorUsage
	}
	if args == "" {
		return addAccountExample
	}
	acct, err := ParseAccountFields(args)
	if err != nil {
		return addAccountFields + "\n\n" + addAccountExample
	}
	created, err := e.registry.Create(ctx, acct)
	switch {
	case errors.Is(err, accounts.ErrDuplicateAlias):
		return fmt.Sprintf("An account with alias %s already exists.", acct.Alias)
	case errors.Is(err, accounts.ErrInvalid):
		return "Account rejected: " + outputfmt.ErrorText(err)
	case err != nil:
		e.logger.Warn("operator_add_failed", "alias", acct.Alias, "error", err.Error())
		return "Could not add the account: " + outputfmt.ErrorText(err)
	}
	e.logger.Info("operator_account_added", "alias", created.Alias)
	return fmt.Sprintf("Account %s added; its mailbox watcher is starting.", created.Alias)
}

func (e *Engine) deleteAccount(ctx context.Context, alias string) string {
	if e.registry == nil {
		return operatorUsage
	}
	if alias == "" {
		return "Usage: delete account <alias>"
	}
	deleted, err := e.registry.Delete(ctx, alias)
	if err != nil {
		e.logger.Warn("operator_delete_failed", "alias", alias, "error", err.Error())
		return "Could not delete the account: " + outputfmt.ErrorText(err)
	}
	if !deleted {
		return fmt.Sprintf("No account with alias %s.", alias)
	}
	e.logger.Info("operator_account_deleted", "alias", alias)
	return fmt.Sprintf("Account %s deleted.", alias)
}
