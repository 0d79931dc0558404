package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"prodtrack-backend/internal/model"
	"prodtrack-backend/internal/store"
	"prodtrack-backend/internal/workflow"
)

// ErrNoHandoff is returned for unknown, used or expired handoff tokens.
var ErrNoHandoff = errors.New("handoff not found or expired")

// Handoff is a terminate waiting for the operator to pick where the
// follow-up goes. Nothing is written until the pick.
type Handoff struct {
	OrderID  time.Time       `json:"order_id"`
	PhaseID  model.PhaseID   `json:"phase_id"`
	WorkedKg *int            `json:"worked_kg"`
	Choices  []model.Machine `json:"choices"`
}

// HandoffView is a handoff with its token and expiry.
type HandoffView struct {
	Token string `json:"token"`
	Handoff
	ExpiresAt time.Time `json:"expires_at"`
}

// TerminateResult reports a terminate. Exactly one of FollowUp and Handoff
// is set when the phase spawns a follow-up.
type TerminateResult struct {
	Order    model.WorkOrder  `json:"order"`
	FollowUp *model.WorkOrder `json:"follow_up,omitempty"`
	Handoff  *HandoffView     `json:"handoff,omitempty"`
}

// Terminate closes an order in production. workedEntry is the operator's
// weight entry. When the phase lets the operator route the follow-up and no
// destination is given, a handoff is returned and the order stays in
// production.
func (s *Service) Terminate(ctx context.Context, id time.Time, workedEntry, destination string) (TerminateResult, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return TerminateResult{}, err
	}
	if !workflow.CanClose(order.StatusID) {
		return TerminateResult{}, fmt.Errorf("%w: order is %s", workflow.ErrInvalidTransition, order.StatusID)
	}

	worked := workflow.WorkedKg(workedEntry, order)
	outcome := workflow.CloseOutcome(order.PhaseID)
	if outcome.NeedsPick() && destination == "" {
		view, err := s.openHandoff(ctx, order, outcome, worked)
		if err != nil {
			return TerminateResult{}, err
		}
		return TerminateResult{Order: order, Handoff: &view}, nil
	}
	return s.close(ctx, order, worked, destination)
}

func (s *Service) openHandoff(ctx context.Context, order model.WorkOrder, outcome workflow.Outcome, worked *int) (HandoffView, error) {
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		return HandoffView{}, err
	}
	h := Handoff{
		OrderID:  order.ID,
		PhaseID:  order.PhaseID,
		WorkedKg: worked,
		Choices:  outcome.Choices(machines),
	}
	token := s.handoffs.Put(h)
	log.Printf("Order %s waits for a destination (%d choices)", order.ID.Format(time.RFC3339Nano), len(h.Choices))
	return s.Handoff(token)
}

// close commits the close and its follow-up together, then notifies.
func (s *Service) close(ctx context.Context, order model.WorkOrder, worked *int, destination string) (TerminateResult, error) {
	outcome := workflow.CloseOutcome(order.PhaseID)
	if outcome.NeedsPick() {
		if err := s.checkMachine(ctx, destination); err != nil {
			if errors.Is(err, ErrInvalidInput) {
				return TerminateResult{}, fmt.Errorf("%w: %s", workflow.ErrDestinationNotAllowed, destination)
			}
			return TerminateResult{}, err
		}
	}

	closure, err := workflow.Close(order, worked, destination, s.timestamp())
	if err != nil {
		return TerminateResult{}, err
	}
	if err := s.store.CloseOrder(ctx, closure.Order, closure.FollowUp); err != nil {
		return TerminateResult{}, err
	}

	log.Printf("Order %s closed as %s", order.ID.Format(time.RFC3339Nano), closure.Order.StatusID)
	if closure.FollowUp != nil {
		log.Printf("Follow-up %s queued on %s", closure.FollowUp.ID.Format(time.RFC3339Nano), closure.FollowUp.MachineID)
		if s.notifier != nil {
			s.notifier.NotifyFollowUp(*closure.FollowUp)
		}
	}
	return TerminateResult{Order: closure.Order, FollowUp: closure.FollowUp}, nil
}

// Handoff returns a pending handoff.
func (s *Service) Handoff(token string) (HandoffView, error) {
	h, exp, ok := s.handoffs.Get(token)
	if !ok {
		return HandoffView{}, ErrNoHandoff
	}
	return HandoffView{Token: token, Handoff: h, ExpiresAt: exp}, nil
}

// PickDestination completes a handoff. An invalid pick keeps the handoff
// open; once the order is closed or gone the handoff is spent.
func (s *Service) PickDestination(ctx context.Context, token, machineID string) (TerminateResult, error) {
	h, ok := s.handoffs.Take(token)
	if !ok {
		return TerminateResult{}, ErrNoHandoff
	}

	order, err := s.store.GetOrder(ctx, h.OrderID)
	if err == nil {
		var res TerminateResult
		res, err = s.close(ctx, order, h.WorkedKg, machineID)
		if err == nil {
			return res, nil
		}
	}

	if !spent(err) {
		s.handoffs.Restore(token, h)
	}
	return TerminateResult{}, err
}

// spent reports whether err means the handoff can never succeed.
func spent(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrConflict) ||
		errors.Is(err, workflow.ErrInvalidTransition)
}

// CancelHandoff abandons a pending terminate. The order stays in production.
func (s *Service) CancelHandoff(token string) error {
	if !s.handoffs.Drop(token) {
		return ErrNoHandoff
	}
	return nil
}
