package mailwatch

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestExtractAmount(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{name: "spanish plural", body: "Te informamos que fueron acreditados $ 7.000 en tu cuenta.", want: "7000", ok: true},
		{name: "spanish singular upper", body: "ACREDITADO $1.000,50", want: "1000.50", ok: true},
		{name: "english", body: "We credited $ 1.500 to your account", want: "1500", ok: true},
		{name: "trailing period", body: "Se han acreditado 7.000.", want: "7000", ok: true},
		{name: "no notice", body: "Your statement is ready", ok: false},
		{name: "notice without digits", body: "acreditados $ pendiente", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractAmount(tc.body)
			if ok != tc.ok {
				t.Fatalf("ExtractAmount() ok = %v, want %v", ok, tc.ok)
			}
			if ok && !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("ExtractAmount() = %s, want %s", got, tc.want)
			}
		})
	}
}
