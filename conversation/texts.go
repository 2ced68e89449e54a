package conversation

import (
	"fmt"
	"strings"

	"github.com/quailyquaily/chipdesk/accounts"
	"github.com/quailyquaily/chipdesk/supervisor"
)

const (
	textWelcome = "Welcome! To open your player account, send the name you want to use " +
		"(no spaces, up to 12 characters)."
	textBadName = "That name can't be used. Send a single word with no spaces, " +
		"up to 12 characters."
	textCreating      = "Creating your account, one moment..."
	textRetryLater    = "We couldn't complete that right now. Please try again in a few minutes."
	textNotUnderstood = "Sorry, I didn't understand that. Send \"menu\" to see the options."
	textMaintenance   = "We are under maintenance right now. Please write again in a little while."
	textNoAccounts    = "There is no deposit account available right now. Please try again later."
	textNeedAccount   = "You don't have a player account yet. Send the name you want to use " +
		"(no spaces, up to 12 characters)."
	textWithdrawAmount = "How much do you want to withdraw? Send the amount only."
	textUserNotFound   = "We couldn't find your player account. Send \"menu\" and contact support."
)

const operatorUsage = "Commands:\n" +
	"maintenance | resume | status\n" +
	"add account internal/bankAlias/accountNumber/mail/secret/owner\n" +
	"delete account <alias>\n" +
	"list accounts"

const addAccountExample = "Example:\n" +
	"add account cuenta1/juan.mp/0000003100012345678901/juan@gmail.com/abcd efgh ijkl mnop/Juan Perez"

const addAccountFields = "Six fields separated by '/' are required, in this order:\n" +
	"internal alias / bank alias / account number / mail / mail app password / owner name"

func menuText(accountName string) string {
	if accountName == "" {
		accountName = "unassigned"
	}
	return fmt.Sprintf("Account: %s\n\n"+
		"1. Load chips\n"+
		"2. Withdraw\n"+
		"3. Reset password\n"+
		"4. Unlock account\n"+
		"5. Talk to a person\n\n"+
		"Reply with a number. Send \"menu\" at any time to come back here.", accountName)
}

func credentialsText(username, password string) string {
	return fmt.Sprintf("Your account is ready.\nUser: %s\nPassword: %s\n"+
		"Change the password after your first login.", username, password)
}

func depositText(acct accounts.Account) string {
	return fmt.Sprintf("Transfer the amount you want to load to:\n"+
		"Alias: %s\nAccount: %s\nOwner: %s\n\n"+
		"Then send the amount you transferred.", acct.BankAlias, acct.AccountNumber, acct.OwnerName)
}

func passwordResetText(username, password string) string {
	return fmt.Sprintf("The password for %s is now: %s", username, password)
}

func unlockedText(username string) string {
	return fmt.Sprintf("Account %s is unlocked.", username)
}

func supportText(link string) string {
	if strings.TrimSpace(link) == "" {
		return "A teammate will contact you here shortly."
	}
	return "Talk to a person here: " + link
}

func accountsText(list []accounts.Account) string {
	if len(list) == 0 {
		return "No accounts registered."
	}
	var b strings.Builder
	b.WriteString("Accounts:")
	for _, a := range list {
		status := "active"
		if !a.Active {
			status = "inactive"
		}
		fmt.Fprintf(&b, "\n- %s | %s | %s | %s | %s | %s", a.Alias, a.BankAlias, a.AccountNumber, a.MailAddress, a.OwnerName, status)
	}
	return b.String()
}

func statusText(maintenance bool, workers []supervisor.Status) string {
	var b strings.Builder
	if maintenance {
		b.WriteString("Maintenance: on")
	} else {
		b.WriteString("Maintenance: off")
	}
	fmt.Fprintf(&b, "\nWatchers: %d", len(workers))
	for _, w := range workers {
		fmt.Fprintf(&b, "\n- %s (%s) gen %d since %s", w.Alias, w.Mail, w.Generation, w.StartedAt.Format("2006-01-02 15:04:05"))
		if w.Health != nil && w.Health.Failures > 0 {
			fmt.Fprintf(&b, ", %d failures: %s", w.Health.Failures, w.Health.LastError)
		}
	}
	return b.String()
}
