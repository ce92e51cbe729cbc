// Package entry collects record fields from an interactive terminal. Each
// prompt repeats until the answer validates; only closed input ends it early.
package entry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// ErrInputClosed is returned when input ends before a valid answer was given.
var ErrInputClosed = errors.New("input closed before a valid answer was entered")

const (
	PromptDate        = "Enter the date of the transaction (DD-MM-YYYY): "
	PromptAmount      = "Enter the amount of the transaction: "
	PromptCategory    = "Enter 'I' for Income or 'E' for Expense: "
	PromptDescription = "Enter a brief description of the transaction: "
	PromptStart       = "Enter the start date (DD-MM-YYYY): "
	PromptEnd         = "Enter the end date (DD-MM-YYYY): "

	msgInvalidDate     = "Invalid date format. Please use DD-MM-YYYY."
	msgInvalidAmount   = "Invalid amount. Please enter a valid amount."
	msgInvalidCategory = "Invalid category. Please enter 'I' for Income or 'E' for Expense."
)

var categoryCodes = map[string]core.Category{
	"I": core.Income,
	"E": core.Expense,
}

type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	now func() time.Time
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, now: time.Now}
}

// WithClock overrides the source of "today" for defaulted dates.
func (p *Prompter) WithClock(now func() time.Time) *Prompter {
	p.now = now
	return p
}

// Date asks for a DD-MM-YYYY date. With allowDefault a blank answer means today.
func (p *Prompter) Date(prompt string, allowDefault bool) (core.Date, error) {
	return ask(p, prompt, msgInvalidDate, func(s string) (core.Date, error) {
		s = strings.TrimSpace(s)
		if allowDefault && s == "" {
			return core.DateOf(p.now()), nil
		}
		return core.ParseDate(s)
	})
}

// Amount asks for a positive decimal amount.
func (p *Prompter) Amount(prompt string) (decimal.Decimal, error) {
	return ask(p, prompt, msgInvalidAmount, core.ParseUserAmount)
}

// Category asks for the single-letter code and resolves it to the full word.
func (p *Prompter) Category(prompt string) (core.Category, error) {
	return ask(p, prompt, msgInvalidCategory, func(s string) (core.Category, error) {
		c, ok := categoryCodes[strings.ToUpper(strings.TrimSpace(s))]
		if !ok {
			return "", fmt.Errorf("%w: %q", core.ErrInvalidCategory, s)
		}
		return c, nil
	})
}

// Description returns the answer as typed; any text is accepted.
func (p *Prompter) Description(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	return p.readLine()
}

// Record runs the full entry flow: date (defaulting to today), amount,
// category and description.
func (p *Prompter) Record() (core.Record, error) {
	date, err := p.Date(PromptDate, true)
	if err != nil {
		return core.Record{}, err
	}
	amount, err := p.Amount(PromptAmount)
	if err != nil {
		return core.Record{}, err
	}
	category, err := p.Category(PromptCategory)
	if err != nil {
		return core.Record{}, err
	}
	desc, err := p.Description(PromptDescription)
	if err != nil {
		return core.Record{}, err
	}
	return core.Record{Date: date, Amount: amount, Category: category, Description: desc}, nil
}

// Range asks for start and end dates, neither of which may be defaulted.
func (p *Prompter) Range() (core.Date, core.Date, error) {
	start, err := p.Date(PromptStart, false)
	if err != nil {
		return core.Date{}, core.Date{}, err
	}
	end, err := p.Date(PromptEnd, false)
	if err != nil {
		return core.Date{}, core.Date{}, err
	}
	return start, end, nil
}

// ask repeats prompt until parse accepts the answer.
func ask[T any](p *Prompter, prompt, invalid string, parse func(string) (T, error)) (T, error) {
	for {
		fmt.Fprint(p.out, prompt)
		line, err := p.readLine()
		if err != nil {
			var zero T
			return zero, err
		}
		v, err := parse(line)
		if err == nil {
			return v, nil
		}
		fmt.Fprintln(p.out, invalid)
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrInputClosed
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
