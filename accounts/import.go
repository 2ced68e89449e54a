package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type importFile struct {
	Accounts []importEntry `yaml:"accounts"`
}

type importEntry struct {
	Alias         string `yaml:"alias"`
	BankAlias     string `yaml:"bank_alias"`
	AccountNumber string `yaml:"account_number"`
	MailAddress   string `yaml:"mail_address"`
	MailSecret    string `yaml:"mail_secret"`
	OwnerName     string `yaml:"owner_name"`
	Active        *bool  `yaml:"active,omitempty"`
}

type ImportResult struct {
	Created []string
	Skipped []string
}

// ImportYAML seeds accounts from a document with a top-level "accounts" list.
// Existing aliases are skipped; any other failure stops the import.
func (r *Registry) ImportYAML(ctx context.Context, src io.Reader) (ImportResult, error) {
	var doc importFile
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, nil
		}
		return ImportResult{}, fmt.Errorf("decode accounts yaml: %w", err)
	}

	var res ImportResult
	for i, e := range doc.Accounts {
		a := Account{
			Alias:         e.Alias,
			BankAlias:     e.BankAlias,
			AccountNumber: e.AccountNumber,
			MailAddress:   e.MailAddress,
			MailSecret:    e.MailSecret,
			OwnerName:     e.OwnerName,
		}
		created, err := r.Create(ctx, a)
		if errors.Is(err, ErrDuplicateAlias) {
			res.Skipped = append(res.Skipped, Normalize(a).Alias)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("accounts[%d]: %w", i, err)
		}
		if e.Active != nil && !*e.Active {
			if _, err := r.SetActive(ctx, created.Alias, false); err != nil {
				return res, fmt.Errorf("accounts[%d]: %w", i, err)
			}
		}
		res.Created = append(res.Created, created.Alias)
	}
	return res, nil
}
