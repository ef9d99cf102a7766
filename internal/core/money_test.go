package core

import "testing"

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{"12.34", 1234, true},
		{"12,34", 1234, true},
		{"0.01", 1, true},
		{"1234", 123400, true},
		{"12.345", 1235, true}, // rounds half-up at cents
		{"12.344", 1234, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-5", 0, false},
		{"0", 0, false},
	}

	for _, tc := range cases {
		m, err := ParseMoney(tc.in)
		if tc.ok && err != nil {
			t.Errorf("ParseMoney(%q): unexpected error %v", tc.in, err)
			continue
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("ParseMoney(%q): expected error", tc.in)
			}
			continue
		}
		if m.Cents() != tc.cents {
			t.Errorf("ParseMoney(%q): expected %d cents, got %d", tc.in, tc.cents, m.Cents())
		}
	}
}

func TestMoneyFromCents(t *testing.T) {
	m := MoneyFromCents(1234)
	if got := m.String(); got != "12.34" {
		t.Errorf("expected 12.34, got %s", got)
	}
	if m.Cents() != 1234 {
		t.Errorf("expected 1234 cents, got %d", m.Cents())
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := MoneyFromCents(100).Validate(); err != nil {
		t.Errorf("positive amount should validate: %v", err)
	}
	if err := MoneyFromCents(0).Validate(); err == nil {
		t.Error("zero amount should not validate")
	}
	if err := MoneyFromCents(-100).Validate(); err == nil {
		t.Error("negative amount should not validate")
	}
}
