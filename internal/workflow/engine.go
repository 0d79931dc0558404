package workflow

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"prodtrack-backend/internal/model"
	"prodtrack-backend/internal/parse"
)

var (
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrDestinationRequired   = errors.New("destination machine required")
	ErrDestinationNotAllowed = errors.New("destination machine not allowed")
)

// Routing tells where the follow-up of a closed order goes.
type Routing int

const (
	RouteNone           Routing = iota // no follow-up
	RouteFixed                         // a fixed downstream machine
	RouteSameMachine                   // back to the machine that closed it
	RouteOperatorChoice                // the operator picks, optionally among Allowed
)

// Outcome is the result of closing an order in a given phase.
type Outcome struct {
	Status  model.StatusID
	Route   Routing
	Machine string   // RouteFixed only
	Allowed []string // RouteOperatorChoice only; empty means any machine
}

var closeTable = map[model.PhaseID]Outcome{
	model.PhaseTDI: {Status: model.StatusTerminated, Route: RouteFixed, Machine: "IMB"},
	model.PhaseAVV: {Status: model.StatusTerminated, Route: RouteFixed, Machine: "IMB"},
	model.PhaseTST: {Status: model.StatusTerminated, Route: RouteFixed, Machine: "IMB"},
	model.PhaseTSB: {Status: model.StatusTerminated, Route: RouteOperatorChoice, Allowed: []string{"SBV", "SBN"}},
	model.PhaseMAM: {Status: model.StatusTerminated, Route: RouteOperatorChoice},
	model.PhaseMLT: {Status: model.StatusTerminated, Route: RouteSameMachine},
	model.PhaseROT: {Status: model.StatusTerminated, Route: RouteFixed, Machine: "CAS"},
	model.PhaseMST: {Status: model.StatusOutbound, Route: RouteFixed, Machine: "IMB"},
}

// CloseOutcome looks up what closing an order in phase produces.
func CloseOutcome(phase model.PhaseID) Outcome {
	if o, ok := closeTable[phase]; ok {
		return o
	}
	return Outcome{Status: model.StatusTerminated, Route: RouteNone}
}

// Spawns reports whether closing creates a follow-up order.
func (o Outcome) Spawns() bool {
	return o.Route != RouteNone
}

// NeedsPick reports whether the operator must choose the destination.
func (o Outcome) NeedsPick() bool {
	return o.Route == RouteOperatorChoice
}

// Allows reports whether machineID is an acceptable operator choice.
func (o Outcome) Allows(machineID string) bool {
	if o.Route != RouteOperatorChoice {
		return false
	}
	return len(o.Allowed) == 0 || slices.Contains(o.Allowed, machineID)
}

// Choices filters machines down to the ones the operator may pick.
func (o Outcome) Choices(machines []model.Machine) []model.Machine {
	var out []model.Machine
	for _, m := range machines {
		if o.Allows(m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// Destination resolves the follow-up machine. picked is only consulted for
// RouteOperatorChoice.
func (o Outcome) Destination(source, picked string) (string, error) {
	switch o.Route {
	case RouteFixed:
		return o.Machine, nil
	case RouteSameMachine:
		return source, nil
	case RouteOperatorChoice:
		if picked == "" {
			return "", ErrDestinationRequired
		}
		if !o.Allows(picked) {
			return "", fmt.Errorf("%w: %s", ErrDestinationNotAllowed, picked)
		}
		return picked, nil
	default:
		return "", nil
	}
}

// CanStart reports whether an order in status s may enter production.
func CanStart(s model.StatusID) bool {
	return s == model.StatusWaiting || s == model.StatusOutbound
}

// CanClose reports whether an order in status s may be terminated.
func CanClose(s model.StatusID) bool {
	return s == model.StatusInProduction
}

// Start moves order into production in phase at now.
func Start(order model.WorkOrder, phase model.PhaseID, now time.Time) (model.WorkOrder, error) {
	if !CanStart(order.StatusID) {
		return model.WorkOrder{}, fmt.Errorf("%w: cannot start order in status %s", ErrInvalidTransition, order.StatusID)
	}
	order.PhaseID = phase
	order.StatusID = model.StatusInProduction
	order.StartedAt = &now
	return order, nil
}

// WorkedKg interprets the operator's worked-weight entry. When the entry holds
// no integer the order's requested weight is used.
func WorkedKg(entry string, order model.WorkOrder) *int {
	n, ok := parse.LeadingInt(entry)
	if !ok {
		if order.RequestedKg == nil {
			return nil
		}
		kg := *order.RequestedKg
		return &kg
	}
	kg := parse.ClampSmallInt(n)
	return &kg
}

// Closure is a terminated order together with the follow-up it spawns.
type Closure struct {
	Order    model.WorkOrder
	Outcome  Outcome
	FollowUp *model.WorkOrder
}

// Close terminates order at now. destination is the operator's pick and is
// ignored unless the phase routes by operator choice.
func Close(order model.WorkOrder, workedKg *int, destination string, now time.Time) (Closure, error) {
	if !CanClose(order.StatusID) {
		return Closure{}, fmt.Errorf("%w: cannot close order in status %s", ErrInvalidTransition, order.StatusID)
	}

	outcome := CloseOutcome(order.PhaseID)
	closed := order
	closed.StatusID = outcome.Status
	closed.EndedAt = &now
	closed.WorkedKg = workedKg

	c := Closure{Order: closed, Outcome: outcome}
	if !outcome.Spawns() {
		return c, nil
	}

	machineID, err := outcome.Destination(order.MachineID, destination)
	if err != nil {
		return Closure{}, err
	}
	// Copies the weight recorded at close, not the one the order had before.
	followUp := FollowUp(closed, machineID, now)
	c.FollowUp = &followUp
	return c, nil
}

// FollowUp copies the material attributes of src into a new waiting order at
// machineID, queued at now.
func FollowUp(src model.WorkOrder, machineID string, now time.Time) model.WorkOrder {
	return model.WorkOrder{
		ID:            now,
		MachineID:     machineID,
		PhaseID:       src.PhaseID,
		StatusID:      model.StatusWaiting,
		Sheet:         src.Sheet,
		CoilCode:      src.CoilCode,
		CoilKg:        src.CoilKg,
		Thickness:     src.Thickness,
		Width:         src.Width,
		Alloy:         src.Alloy,
		PhysicalState: src.PhysicalState,
		Confirmation:  src.Confirmation,
		ClientID:      src.ClientID,
		RequestedKg:   copyInt(src.RequestedKg),
		WorkedKg:      copyInt(src.WorkedKg),
		Measure:       src.Measure,
		QueuedAt:      &now,
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
