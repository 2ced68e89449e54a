package accounts

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quailyquaily/chipdesk/db"
	"gorm.io/gorm"
)

type fixedCounter struct {
	n   int64
	err error
}

func (c *fixedCounter) CountTransactions(context.Context) (int64, error) { return c.n, c.err }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "accounts.sqlite")
	gdb, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

func sampleAccount(alias string) Account {
	return Account{
		Alias:         alias,
		BankAlias:     "banco." + alias,
		AccountNumber: "0000003100010000000001",
		MailAddress:   alias + "@example.com",
		MailSecret:    "abcd efgh ijkl mnop",
		OwnerName:     "Owner " + alias,
	}
}

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	r := NewRegistry(openTestDB(t), nil, Options{})
	ctx := context.Background()
	changes := 0
	r.OnChange(func() { changes++ })

	got, err := r.Create(ctx, sampleAccount("main"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got.MailSecret != "abcdefghijklmnop" {
		t.Fatalf("MailSecret = %q, want spaces removed", got.MailSecret)
	}
	if !got.Active || got.ID == 0 {
		t.Fatalf("Create() = %+v, want active with id", got)
	}

	_, err = r.Create(ctx, sampleAccount("main"))
	if !errors.Is(err, ErrDuplicateAlias) {
		t.Fatalf("Create() duplicate error = %v, want ErrDuplicateAlias", err)
	}
	if changes != 1 {
		t.Fatalf("OnChange fired %d times, want 1", changes)
	}
}

func TestCreateValidates(t *testing.T) {
	r := NewRegistry(openTestDB(t), nil, Options{})
	cases := map[string]func(*Account){
		"missing owner":   func(a *Account) { a.OwnerName = "" },
		"bad mail":        func(a *Account) { a.MailAddress = "not-a-mail" },
		"alpha account":   func(a *Account) { a.AccountNumber = "12ab" },
		"alias has space": func(a *Account) { a.Alias = "two words" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			a := sampleAccount("x")
			mutate(&a)
			if _, err := r.Create(context.Background(), a); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Create() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestDeleteReportsUnknownAlias(t *testing.T) {
	r := NewRegistry(openTestDB(t), nil, Options{})
	ctx := context.Background()
	if _, err := r.Create(ctx, sampleAccount("main")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	ok, err := r.Delete(ctx, "ghost")
	if err != nil || ok {
		t.Fatalf("Delete(ghost) = %v, %v; want false, nil", ok, err)
	}
	ok, err = r.Delete(ctx, "main")
	if err != nil || !ok {
		t.Fatalf("Delete(main) = %v, %v; want true, nil", ok, err)
	}
	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("List() = %d accounts, want 0", len(list))
	}
}

func TestRotateNextCyclesActiveAccounts(t *testing.T) {
	counter := &fixedCounter{}
	r := NewRegistry(openTestDB(t), counter, Options{})
	ctx := context.Background()
	for _, alias := range []string{"a", "b", "c"} {
		if _, err := r.Create(ctx, sampleAccount(alias)); err != nil {
			t.Fatalf("Create(%s) error = %v", alias, err)
		}
	}

	want := []string{"a", "b", "c", "a", "b", "c"}
	for n, alias := range want {
		counter.n = int64(n)
		got, err := r.RotateNext(ctx)
		if err != nil {
			t.Fatalf("RotateNext() error = %v", err)
		}
		if got.Alias != alias {
			t.Fatalf("RotateNext() with count %d = %s, want %s", n, got.Alias, alias)
		}
	}
}

func TestRotateNextSkipsInactive(t *testing.T) {
	counter := &fixedCounter{n: 1}
	r := NewRegistry(openTestDB(t), counter, Options{})
	ctx := context.Background()
	for _, alias := range []string{"a", "b", "c"} {
		if _, err := r.Create(ctx, sampleAccount(alias)); err != nil {
			t.Fatalf("Create(%s) error = %v", alias, err)
		}
	}
	if ok, err := r.SetActive(ctx, "b", false); err != nil || !ok {
		t.Fatalf("SetActive() = %v, %v", ok, err)
	}
	got, err := r.RotateNext(ctx)
	if err != nil {
		t.Fatalf("RotateNext() error = %v", err)
	}
	if got.Alias != "c" {
		t.Fatalf("RotateNext() = %s, want c", got.Alias)
	}
}

func TestRotateNextWithoutActiveAccounts(t *testing.T) {
	r := NewRegistry(openTestDB(t), &fixedCounter{}, Options{})
	if _, err := r.RotateNext(context.Background()); !errors.Is(err, ErrNoActiveAccounts) {
		t.Fatalf("RotateNext() error = %v, want ErrNoActiveAccounts", err)
	}
}

func TestImportYAMLSkipsExisting(t *testing.T) {
	r := NewRegistry(openTestDB(t), nil, Options{})
	ctx := context.Background()
	if _, err := r.Create(ctx, sampleAccount("main")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	doc := `
accounts:
  - alias: main
    bank_alias: banco.main
    account_number: "0000003100010000000001"
    mail_address: main@example.com
    mail_secret: secret
    owner_name: Main Owner
  - alias: backup
    bank_alias: banco.backup
    account_number: "0000003100010000000002"
    mail_address: backup@example.com
    mail_secret: "aaaa bbbb"
    owner_name: Backup Owner
    active: false
`
	res, err := r.ImportYAML(ctx, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ImportYAML() error = %v", err)
	}
	if len(res.Created) != 1 || res.Created[0] != "backup" {
		t.Fatalf("Created = %v, want [backup]", res.Created)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "main" {
		t.Fatalf("Skipped = %v, want [main]", res.Skipped)
	}
	active, err := r.Active(ctx)
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if len(active) != 1 || active[0].Alias != "main" {
		t.Fatalf("Active() = %+v, want only main", active)
	}
}
