package conversation

import "testing"

func TestCandidateUsername(t *testing.T) {
	cases := []struct {
		in, digits, want string
	}{
		{in: "juanperez", digits: "1234", want: "juanperez1234"},
		{in: "José", digits: "0042", want: "Jose0042"},
		{in: "ñandú_22", digits: "9999", want: "nandu229999"},
		{in: "!!!", digits: "1234", want: ""},
	}
	for _, tc := range cases {
		if got := CandidateUsername(tc.in, tc.digits); got != tc.want {
			t.Fatalf("CandidateUsername(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidName(t *testing.T) {
	cases := map[string]bool{
		"juanperez":     true,
		"Juan Perez":    false,
		"":              false,
		"abcdefghijkl":  true,
		"abcdefghijklm": false,
		"ñañañañañaña":  true,
		"tab\tname":     false,
	}
	for in, want := range cases {
		if got := ValidName(in); got != want {
			t.Fatalf("ValidName(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsMenuKeyword(t *testing.T) {
	for _, in := range []string{"menu", "MENU", " Back ", "back  to   menu", "Volver al menú", "volver"} {
		if !IsMenuKeyword(in) {
			t.Fatalf("IsMenuKeyword(%q) = false", in)
		}
	}
	for _, in := range []string{"menus", "1", "go back"} {
		if IsMenuKeyword(in) {
			t.Fatalf("IsMenuKeyword(%q) = true", in)
		}
	}
}

func TestParseAccountFields(t *testing.T) {
	acct, err := ParseAccountFields(" a / b / 123 / m@example.com / ab cd / Ana Maria ")
	if err != nil {
		t.Fatalf("ParseAccountFields() error = %v", err)
	}
	if acct.Alias != "a" || acct.MailSecret != "abcd" || acct.OwnerName != "Ana Maria" || !acct.Active {
		t.Fatalf("ParseAccountFields() = %+v", acct)
	}
	if _, err := ParseAccountFields("a/b/c/d/e"); err == nil {
		t.Fatalf("ParseAccountFields() expected error for 5 fields")
	}
	acct, err = ParseAccountFields("a/b/123/m@example.com/s/Perez y Cia S/A")
	if err != nil {
		t.Fatalf("ParseAccountFields() error = %v", err)
	}
	if acct.OwnerName != "Perez y Cia S/A" {
		t.Fatalf("owner = %q, want %q", acct.OwnerName, "Perez y Cia S/A")
	}
}
