package core

import (
	"errors"
	"testing"
)

func validTransaction() Transaction {
	return Transaction{
		ID:          "3f0c9f52-13be-4c46-a2ad-92e2f1f0a001",
		Date:        NewDate(2026, 8, 24),
		Description: "Groceries",
		Amount:      MoneyFromCents(4250),
		Kind:        Expense,
		Primary:     "Food",
		Secondary:   "Supermarket",
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTransaction().Validate(); err != nil {
		t.Fatalf("valid transaction should pass: %v", err)
	}

	tx := validTransaction()
	tx.ID = " "
	if !errors.Is(tx.Validate(), ErrEmptyID) {
		t.Error("expected ErrEmptyID")
	}

	tx = validTransaction()
	tx.Description = ""
	if !errors.Is(tx.Validate(), ErrEmptyDescription) {
		t.Error("expected ErrEmptyDescription")
	}

	tx = validTransaction()
	tx.Amount = Money{}
	if !errors.Is(tx.Validate(), ErrInvalidAmount) {
		t.Error("expected ErrInvalidAmount")
	}

	tx = validTransaction()
	tx.Primary = ""
	if !errors.Is(tx.Validate(), ErrEmptyPrimary) {
		t.Error("expected ErrEmptyPrimary")
	}

	tx = validTransaction()
	tx.Kind = "transfer"
	if tx.Validate() == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(2026, 8, 24)
	if err != nil {
		t.Fatalf("valid date should parse: %v", err)
	}
	if d.Year() != 2026 || d.Month() != 8 || d.Day() != 24 {
		t.Errorf("unexpected components: %d-%d-%d", d.Year(), d.Month(), d.Day())
	}

	// Leap day.
	if _, err := ParseDate(2024, 2, 29); err != nil {
		t.Errorf("2024-02-29 should parse: %v", err)
	}

	cases := []struct {
		name             string
		year, month, day int
		want             error
	}{
		{"month too large", 2026, 13, 1, ErrInvalidMonth},
		{"month zero", 2026, 0, 1, ErrInvalidMonth},
		{"day zero", 2026, 8, 0, ErrInvalidDay},
		{"day too large", 2026, 8, 32, ErrInvalidDay},
		// time.Date would normalize these into real days of the next month.
		{"february 30th", 2026, 2, 30, ErrInvalidDay},
		{"february 29th outside leap year", 2026, 2, 29, ErrInvalidDay},
		{"april 31st", 2026, 4, 31, ErrInvalidDay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseDate(tc.year, tc.month, tc.day); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestWriteRequestValidate(t *testing.T) {
	req := WriteRequest{Op: OpCreate, Collection: "transactions", Entity: validTransaction()}
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request should pass: %v", err)
	}

	req.Op = "upsert"
	if !errors.Is(req.Validate(), ErrInvalidOp) {
		t.Error("expected ErrInvalidOp")
	}

	req = WriteRequest{Op: OpCreate, Entity: validTransaction()}
	if !errors.Is(req.Validate(), ErrEmptyCollection) {
		t.Error("expected ErrEmptyCollection")
	}

	// A delete carries only the id.
	req = WriteRequest{Op: OpDelete, Collection: "transactions", Entity: Transaction{ID: "abc"}}
	if err := req.Validate(); err != nil {
		t.Errorf("delete with id only should pass: %v", err)
	}

	req.Entity.ID = ""
	if !errors.Is(req.Validate(), ErrEmptyID) {
		t.Error("expected ErrEmptyID for delete without id")
	}
}
