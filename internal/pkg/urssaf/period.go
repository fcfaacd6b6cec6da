package urssaf

import (
	"errors"
	"fmt"
	"time"
)

// Frequency is how often revenue is declared to URSSAF.
type Frequency string

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

var ErrInvalidPeriod = errors.New("period must be formatted as YYYY-MM")

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Quarter returns 1..4.
func (p Period) Quarter() int {
	return (int(p.Month)-1)/3 + 1
}

// Start returns midnight UTC on the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Add moves the period by n months.
func (p Period) Add(months int) Period {
	return PeriodOf(p.Start().AddDate(0, months, 0))
}

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool {
	return p.Start().Before(o.Start())
}

// Declaration is one URSSAF declaration window and its deadline.
type Declaration struct {
	Label    string    `json:"label"`
	From     Period    `json:"-"`
	To       Period    `json:"-"`
	Deadline time.Time `json:"deadline"`
}

// endOfMonth returns the last day of the month as a UTC date.
func endOfMonth(p Period) time.Time {
	return p.Add(1).Start().AddDate(0, 0, -1)
}

// DeclarationFor returns the declaration covering p: the month itself for a
// monthly declarant, the calendar quarter otherwise. The deadline is the last day
// of the month following the covered window.
func DeclarationFor(p Period, freq Frequency) Declaration {
	if freq == Quarterly {
		first := Period{Year: p.Year, Month: time.Month((p.Quarter()-1)*3 + 1)}
		last := first.Add(2)
		return Declaration{
			Label:    fmt.Sprintf("%04d-T%d", p.Year, p.Quarter()),
			From:     first,
			To:       last,
			Deadline: endOfMonth(last.Add(1)),
		}
	}
	return Declaration{
		Label:    p.String(),
		From:     p,
		To:       p,
		Deadline: endOfMonth(p.Add(1)),
	}
}

// NextDeclaration returns the earliest declaration whose deadline is today or later.
func NextDeclaration(now time.Time, freq Frequency) Declaration {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	current := PeriodOf(now)
	// the previous month (or quarter) is always the oldest candidate still open
	for _, offset := range []int{-3, -2, -1, 0} {
		decl := DeclarationFor(current.Add(offset), freq)
		if !decl.Deadline.Before(today) {
			return decl
		}
	}
	return DeclarationFor(current, freq)
}

// Covers reports whether the period belongs to the declaration window.
func (d Declaration) Covers(p Period) bool {
	return !p.Before(d.From) && !d.To.Before(p)
}
