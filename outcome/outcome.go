/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package outcome decides who pays the bill and words the verdict.
//
// Compute is a pure function of its Request and the RandomSource it is given.
// The only random step is a single permutation draw, so a test can pin the
// exact output by passing a FixedPerm.
package outcome

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Mode selects how the bill is handled.
type Mode int

const (
	OnePays Mode = iota
	SplitAll
	SplitSome
)

var (
	// ErrInsufficientParticipants is returned when fewer than two names are given.
	ErrInsufficientParticipants = errors.New("at least 2 participants are required")

	// ErrInvalidSplitTarget is returned when a split-some target is outside [1, roster size].
	ErrInvalidSplitTarget = errors.New("split target must be between 1 and the number of participants")

	// ErrInvalidAmount is returned for negative, non-finite or unrepresentable amounts.
	ErrInvalidAmount = errors.New("bill amount must be a finite, non-negative number")

	// ErrUnknownMode is returned for a Mode outside the three defined values.
	ErrUnknownMode = errors.New("unknown bill mode")

	// ErrBadPermutation is returned when a RandomSource is missing or misbehaves.
	ErrBadPermutation = errors.New("random source returned an invalid permutation")
)

func (m Mode) String() string {
	switch m {
	case OnePays:
		return "one-pays"
	case SplitAll:
		return "split-all"
	case SplitSome:
		return "split-some"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the wire names "one-pays", "split-all" and "split-some".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "one-pays":
		return OnePays, nil
	case "split-all":
		return SplitAll, nil
	case "split-some":
		return SplitSome, nil
	default:
		return OnePays, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m Mode) valid() bool {
	return m == OnePays || m == SplitAll || m == SplitSome
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}

	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}

	*m = parsed

	return nil
}

// Request is a snapshot of the selection state at the moment of computing.
type Request struct {
	Roster []string
	Mode   Mode

	// Amount is nil when no bill amount was entered. A zero amount is shown.
	Amount *float64

	// SplitTarget is only read in SplitSome mode.
	SplitTarget int
}

// Outcome is the result of one computation.
type Outcome struct {
	Mode Mode

	// Selected holds the payer for OnePays, the whole roster for SplitAll and
	// the drawn subset, in draw order, for SplitSome.
	Selected []string

	HasAmount bool
	Total     Paise
	Share     Paise

	// Message is newline-delimited, ready for display.
	Message string
}

// Compute validates req and produces a fresh Outcome.
func Compute(req Request, src RandomSource) (Outcome, error) {
	n := len(req.Roster)
	if n < 2 {
		return Outcome{}, fmt.Errorf("%w: have %d", ErrInsufficientParticipants, n)
	}

	if !req.Mode.valid() {
		return Outcome{}, fmt.Errorf("%w: %d", ErrUnknownMode, int(req.Mode))
	}

	if req.Mode == SplitSome && (req.SplitTarget < 1 || req.SplitTarget > n) {
		return Outcome{}, fmt.Errorf("%w: got %d for %d participants", ErrInvalidSplitTarget, req.SplitTarget, n)
	}

	out := Outcome{Mode: req.Mode}

	if req.Amount != nil {
		total, err := ToPaise(*req.Amount)
		if err != nil {
			return Outcome{}, err
		}

		out.HasAmount = true
		out.Total = total
	}

	switch req.Mode {
	case OnePays:
		perm, err := draw(src, n)
		if err != nil {
			return Outcome{}, err
		}

		out.Selected = []string{req.Roster[perm[0]]}
		out.Share = out.Total
		out.Message = onePaysMessage(out)

	case SplitAll:
		out.Selected = append([]string(nil), req.Roster...)
		out.Share = out.Total.Split(n)
		out.Message = splitAllMessage(out)

	case SplitSome:
		perm, err := draw(src, n)
		if err != nil {
			return Outcome{}, err
		}

		k := min(req.SplitTarget, n)

		out.Selected = make([]string, 0, k)
		for _, idx := range perm[:k] {
			out.Selected = append(out.Selected, req.Roster[idx])
		}
		out.Share = out.Total.Split(k)
		out.Message = splitSomeMessage(out)
	}

	return out, nil
}

// ShareText flattens a result message into the single line copied to the clipboard.
func ShareText(message string) string {
	return "Who Pays Result: " + strings.ReplaceAll(message, "\n", " ")
}

// JoinNames lists names as "A", "A & B" or "A, B & C".
func JoinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}

	last := len(names) - 1

	return strings.Join(names[:last], ", ") + " & " + names[last]
}

func onePaysMessage(out Outcome) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("RIP %s. You're paying 💳", out.Selected[0]))
	if out.HasAmount {
		b.WriteString(fmt.Sprintf("\n\nTotal bill: %s 💸", out.Total))
	}
	b.WriteString("\n\nBetter luck next time! 🎲")

	return b.String()
}

func splitAllMessage(out Outcome) string {
	if out.HasAmount {
		return fmt.Sprintf("Everyone pays %s. Friendship saved 💖", out.Share)
	}

	return "You all split it evenly!\n\nFriendship saved 🤝✨"
}

func splitSomeMessage(out Outcome) string {
	var b strings.Builder

	names := JoinNames(out.Selected)

	switch {
	case out.HasAmount && len(out.Selected) == 1:
		b.WriteString(fmt.Sprintf("%s will pay %s 😬", names, out.Share))
	case out.HasAmount:
		b.WriteString(fmt.Sprintf("%s will each pay %s 😬", names, out.Share))
	default:
		b.WriteString("These lucky folks are splitting:\n" + names)
	}
	b.WriteString("\n\nThe rest of you are free! 🎉")

	return b.String()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
