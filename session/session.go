/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package session holds the form state of one party and the pure reducer
// that moves it forward.
//
// Reduce never runs the outcome engine and never schedules anything. The host
// computes outcomes and paces their delivery, then feeds the results back in
// as Reveal, Fail and HideConfetti actions.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Seednode/whopays/outcome"
	"github.com/Seednode/whopays/roster"
)

// DefaultSplitPreset is the split-some preset selected on a new party.
const DefaultSplitPreset = 2

// SplitPresets are the quick-pick split sizes offered next to the custom field.
var SplitPresets = []int{2, 3, 4}

const splitCountHint = "Enter a number less than or equal to number of names."

// Notice is a transient message for the client that caused it.
type Notice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type State struct {
	Roster roster.Roster
	Mode   outcome.Mode

	SplitPreset int
	CustomSplit string
	SplitError  string

	// Amount is the raw bill field; empty means no amount.
	Amount string

	Result   *outcome.Outcome
	Loading  bool
	Confetti bool

	Notice *Notice
}

func New() State {
	return State{
		Mode:        outcome.OnePays,
		SplitPreset: DefaultSplitPreset,
	}
}

type Action interface {
	isAction()
}

type (
	AddName        struct{ Name string }
	RemoveName     struct{ Name string }
	SelectMode     struct{ Mode outcome.Mode }
	SelectPreset   struct{ Count int }
	SetCustomSplit struct{ Text string }
	SetAmount      struct{ Text string }
	RequestCompute struct{}
	Reveal         struct{ Outcome outcome.Outcome }
	Fail           struct{ Err error }
	HideConfetti   struct{}
	Reset          struct{}
	DismissNotice  struct{}
)

func (AddName) isAction()        {}
func (RemoveName) isAction()     {}
func (SelectMode) isAction()     {}
func (SelectPreset) isAction()   {}
func (SetCustomSplit) isAction() {}
func (SetAmount) isAction()      {}
func (RequestCompute) isAction() {}
func (Reveal) isAction()         {}
func (Fail) isAction()           {}
func (HideConfetti) isAction()   {}
func (Reset) isAction()          {}
func (DismissNotice) isAction()  {}

// Reduce returns the state that follows s after a. It never mutates s.
func Reduce(s State, a Action) State {
	s.Notice = nil

	switch a := a.(type) {
	case AddName:
		next, err := s.Roster.Add(a.Name)
		switch {
		case errors.Is(err, roster.ErrDuplicateName):
			s.Notice = &Notice{
				Title:       "Already added!",
				Description: "This person is already in the list 👀",
			}
		case err == nil:
			s.Roster = next
			s.SplitError = validateCustomSplit(s.CustomSplit, s.Roster.Len())
		}

	case RemoveName:
		s.Roster = s.Roster.Remove(a.Name)
		s.SplitError = validateCustomSplit(s.CustomSplit, s.Roster.Len())

	case SelectMode:
		if _, err := a.Mode.MarshalText(); err == nil {
			s.Mode = a.Mode
		}

	case SelectPreset:
		s.SplitPreset = a.Count
		s.CustomSplit = ""
		s.SplitError = ""

	case SetCustomSplit:
		s.CustomSplit = a.Text
		s.SplitError = validateCustomSplit(a.Text, s.Roster.Len())

	case SetAmount:
		s.Amount = a.Text

	case RequestCompute:
		if notice := s.blocker(); notice != nil {
			s.Notice = notice

			return s
		}

		s.Loading = true
		s.Confetti = false
		s.Result = nil

	case Reveal:
		result := a.Outcome
		s.Result = &result
		s.Loading = false
		s.Confetti = true

	case Fail:
		s.Loading = false
		s.Notice = NoticeFor(a.Err)

	case HideConfetti:
		s.Confetti = false

	case Reset:
		s.Result = nil
		s.Loading = false
		s.Confetti = false

	case DismissNotice:
	}

	return s
}

// CanCompute mirrors whether the compute button is enabled.
func (s State) CanCompute() bool {
	return s.blocker() == nil
}

// SplitTarget is the custom split count when valid, the preset otherwise.
func (s State) SplitTarget() int {
	if strings.TrimSpace(s.CustomSplit) != "" && s.SplitError == "" {
		if n, err := strconv.Atoi(strings.TrimSpace(s.CustomSplit)); err == nil {
			return n
		}
	}

	return s.SplitPreset
}

// Request builds the engine request for the current selection.
func (s State) Request() (outcome.Request, error) {
	amount, err := ParseAmount(s.Amount)
	if err != nil {
		return outcome.Request{}, err
	}

	return outcome.Request{
		Roster:      s.Roster.Names(),
		Mode:        s.Mode,
		Amount:      amount,
		SplitTarget: s.SplitTarget(),
	}, nil
}

// ParseAmount reads the bill field. Blank input means no amount.
func ParseAmount(text string) (*float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", outcome.ErrInvalidAmount, text)
	}

	return &v, nil
}

// NoticeFor turns an engine error into the notice shown to the user.
func NoticeFor(err error) *Notice {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, outcome.ErrInsufficientParticipants):
		return &Notice{
			Title:       "Hold up!",
			Description: "You need at least 2 people to cause financial chaos 😅",
		}
	case errors.Is(err, outcome.ErrInvalidSplitTarget):
		return &Notice{
			Title:       "Fix the error first!",
			Description: "Please enter a valid number of people to split between.",
		}
	case errors.Is(err, outcome.ErrInvalidAmount):
		return &Notice{
			Title:       "That bill looks off",
			Description: "Enter the amount as a plain number, like 1500.",
		}
	default:
		return &Notice{
			Title:       "The chaos gods are confused",
			Description: "Something went wrong. Please try again.",
		}
	}
}

func (s State) blocker() *Notice {
	n := s.Roster.Len()

	if n < 2 {
		return NoticeFor(outcome.ErrInsufficientParticipants)
	}

	if s.Mode == outcome.SplitSome {
		target := s.SplitTarget()
		if s.SplitError != "" || target < 1 || target > n {
			return NoticeFor(outcome.ErrInvalidSplitTarget)
		}
	}

	return nil
}

func validateCustomSplit(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	v, err := strconv.Atoi(text)
	if err != nil || v < 1 || v > n {
		return splitCountHint
	}

	return ""
}
