package core

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the only textual date format the ledger reads or writes.
const DateLayout = "02-01-2006"

const (
	Income  Category = "Income"
	Expense Category = "Expense"
)

type (
	Category string

	Date struct {
		time.Time
	}

	Record struct {
		Date        Date
		Amount      decimal.Decimal
		Category    Category
		Description string
	}
)

var dateShape = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)

// Categories lists every valid category in display order.
func Categories() []Category {
	return []Category{Income, Expense}
}

func (c Category) Validate() error {
	switch c {
	case Income, Expense:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCategory, string(c))
	}
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory accepts the full category word exactly as stored.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping t's calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses DD-MM-YYYY text. Blank input and any other shape are
// rejected with ErrDateFormat.
func ParseDate(s string) (Date, error) {
	if !dateShape.MatchString(s) {
		return Date{}, fmt.Errorf("%w: %q", ErrDateFormat, s)
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrDateFormat, s)
	}
	return Date{Time: t}, nil
}

// String renders the date in DateLayout.
func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Compare returns -1, 0 or +1 as d is before, equal to or after other.
// Only the calendar day counts; any clock part is ignored.
func (d Date) Compare(other Date) int {
	return DateOf(d.Time).Time.Compare(DateOf(other.Time).Time)
}

func (r Record) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, r.Amount.String())
	}
	return r.Category.Validate()
}
