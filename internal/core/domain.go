package core

import (
	"errors"
	"strings"
	"time"
)

const (
	OpCreate WriteOp = "create"
	OpUpdate WriteOp = "update"
	OpDelete WriteOp = "delete"

	Expense TransactionKind = "expense"
	Income  TransactionKind = "income"
)

type (
	// WriteOp is the kind of mutation a write request carries.
	WriteOp string

	// TransactionKind distinguishes money going out from money coming in.
	TransactionKind string

	Date struct {
		time.Time
	}

	// Transaction is the user-owned finance entry every write operates on.
	Transaction struct {
		ID          string
		Date        Date
		Description string
		Amount      Money
		Kind        TransactionKind
		Primary     string // Primary category
		Secondary   string // Secondary category
	}

	// WriteRequest is the unit of work moved between the router, the queue
	// and the remote repository.
	WriteRequest struct {
		Op         WriteOp
		Collection string
		Entity     Transaction
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyID          = errors.New("empty transaction id")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyPrimary     = errors.New("empty primary category")
	ErrInvalidOp        = errors.New("invalid write operation")
	ErrEmptyCollection  = errors.New("empty target collection")
)

// NewDate creates a new Date from year, month, day. Components are taken as
// given; callers holding untrusted input go through ParseDate.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate validates raw calendar components and returns the Date.
// time.Date silently normalizes impossible inputs (Feb 30 becomes Mar 2), so
// the normalized result is compared back against the components.
func ParseDate(year, month, day int) (Date, error) {
	if month < 1 || month > 12 {
		return Date{}, ErrInvalidMonth
	}
	if day < 1 || day > 31 {
		return Date{}, ErrInvalidDay
	}
	d := NewDate(year, month, day)
	y, m, dd := d.Date()
	if y != year || int(m) != month || dd != day {
		return Date{}, ErrInvalidDay
	}
	return d, nil
}

// Validate only guards against the zero value: a constructed Date is always
// a real calendar day, component range checks belong in ParseDate.
func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (k TransactionKind) Validate() error {
	switch k {
	case Expense, Income:
		return nil
	default:
		return errors.New("invalid transaction kind")
	}
}

func (op WriteOp) Validate() error {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return nil
	default:
		return ErrInvalidOp
	}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Primary) == "" {
		return ErrEmptyPrimary
	}
	return nil
}

func (r WriteRequest) Validate() error {
	if err := r.Op.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Collection) == "" {
		return ErrEmptyCollection
	}
	// Deletes only need the entity id; the rest of the entity may be zero.
	if r.Op == OpDelete {
		if strings.TrimSpace(r.Entity.ID) == "" {
			return ErrEmptyID
		}
		return nil
	}
	return r.Entity.Validate()
}
