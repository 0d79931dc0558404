// Package tracker runs the operator-facing operations of the production
// floor: loading reference data, listing a machine's orders for a day and
// moving orders through the workflow.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"prodtrack-backend/internal/model"
	"prodtrack-backend/internal/parse"
	"prodtrack-backend/internal/pending"
	"prodtrack-backend/internal/scan"
	"prodtrack-backend/internal/store"
	"prodtrack-backend/internal/workflow"
)

var (
	// ErrInvalidInput is returned for malformed or unknown request values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrReferenceUnavailable is returned when machines or phases cannot be loaded.
	ErrReferenceUnavailable = errors.New("reference data unavailable")
)

// FollowUpNotifier is told about every committed follow-up order.
type FollowUpNotifier interface {
	NotifyFollowUp(order model.WorkOrder)
}

// Service ties the store, the workflow rules and the pending workflow state
// together.
type Service struct {
	store    store.Store
	scans    *scan.Service
	handoffs *pending.Store[Handoff]
	notifier FollowUpNotifier
	now      func() time.Time
}

// NewService creates a tracker. notifier may be nil.
func NewService(s store.Store, scans *scan.Service, notifier FollowUpNotifier, handoffTTL time.Duration) *Service {
	return &Service{
		store:    s,
		scans:    scans,
		handoffs: pending.New[Handoff](handoffTTL),
		notifier: notifier,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// timestamp is the current time as stored in order ids.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// --- Reference data ---

// Bootstrap is what a station needs on startup.
type Bootstrap struct {
	Machines       []model.Machine `json:"machines"`
	Phases         []model.Phase   `json:"phases"`
	Selected       *model.Machine  `json:"selected"`
	NeedsSelection bool            `json:"needs_selection"`
}

// Bootstrap loads machines and phases and resolves the machine remembered
// for deviceID. A remembered machine that no longer exists is dropped.
func (s *Service) Bootstrap(ctx context.Context, deviceID string) (Bootstrap, error) {
	var b Bootstrap

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		machines, err := s.store.ListMachines(gctx)
		b.Machines = machines
		return err
	})
	g.Go(func() error {
		phases, err := s.store.ListPhases(gctx)
		b.Phases = phases
		return err
	})
	if err := g.Wait(); err != nil {
		log.Printf("Failed to load reference data: %v", err)
		return Bootstrap{NeedsSelection: true}, fmt.Errorf("%w: %v", ErrReferenceUnavailable, err)
	}

	b.NeedsSelection = true
	if deviceID == "" {
		return b, nil
	}
	selected, err := s.store.GetSelection(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("Failed to read selection for device %s: %v", deviceID, err)
		}
		return b, nil
	}
	for i := range b.Machines {
		if b.Machines[i].ID == selected {
			m := b.Machines[i]
			b.Selected = &m
			b.NeedsSelection = false
			break
		}
	}
	return b, nil
}

// SelectMachine remembers machineID for deviceID.
func (s *Service) SelectMachine(ctx context.Context, deviceID, machineID string) (model.Machine, error) {
	if deviceID == "" {
		return model.Machine{}, fmt.Errorf("%w: device id is required", ErrInvalidInput)
	}
	m, err := s.store.GetMachine(ctx, machineID)
	if err != nil {
		return model.Machine{}, err
	}
	if err := s.store.SaveSelection(ctx, deviceID, m.ID); err != nil {
		return model.Machine{}, fmt.Errorf("failed to save selection: %w", err)
	}
	return m, nil
}

// --- Order list ---

// Session is the operator's current view: a machine and a calendar day.
type Session struct {
	MachineID string
	Date      string // YYYY-MM-DD, empty for today (UTC)
}

// OrderList is the result of an order list query.
type OrderList struct {
	MachineID     string            `json:"machine_id"`
	Date          string            `json:"date"`
	Orders        []store.OrderView `json:"orders"`
	TotalWorkedKg int               `json:"total_worked_kg"`
}

// Orders lists the session machine's orders created on the session day.
func (s *Service) Orders(ctx context.Context, sess Session) (OrderList, error) {
	if sess.MachineID == "" {
		return OrderList{}, fmt.Errorf("%w: machine id is required", ErrInvalidInput)
	}
	from, to, err := parse.Day(sess.Date, s.now())
	if err != nil {
		return OrderList{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	orders, err := s.store.ListOrders(ctx, sess.MachineID, from, to)
	if err != nil {
		log.Printf("Order list fetch failed for %s on %s: %v", sess.MachineID, from.Format(parse.DayLayout), err)
		return OrderList{}, err
	}
	if orders == nil {
		orders = []store.OrderView{}
	}
	return OrderList{
		MachineID:     sess.MachineID,
		Date:          from.Format(parse.DayLayout),
		Orders:        orders,
		TotalWorkedKg: TotalWorkedKg(orders),
	}, nil
}

// TotalWorkedKg sums the worked weight of orders, counting missing values as 0.
func TotalWorkedKg(orders []store.OrderView) int {
	total := 0
	for _, o := range orders {
		if o.WorkedKg != nil {
			total += *o.WorkedKg
		}
	}
	return total
}

// --- Transitions ---

func (s *Service) checkPhase(ctx context.Context, phase model.PhaseID) error {
	if _, err := s.store.GetPhase(ctx, phase); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: unknown phase %q", ErrInvalidInput, phase)
		}
		return err
	}
	return nil
}

func (s *Service) checkMachine(ctx context.Context, machineID string) error {
	if _, err := s.store.GetMachine(ctx, machineID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: unknown machine %q", ErrInvalidInput, machineID)
		}
		return err
	}
	return nil
}

// StartOrder puts a waiting or outbound order into production in phase.
func (s *Service) StartOrder(ctx context.Context, id time.Time, phase model.PhaseID) (model.WorkOrder, error) {
	if err := s.checkPhase(ctx, phase); err != nil {
		return model.WorkOrder{}, err
	}
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return model.WorkOrder{}, err
	}
	started, err := workflow.Start(order, phase, s.timestamp())
	if err != nil {
		return model.WorkOrder{}, err
	}
	if err := s.store.StartOrder(ctx, started); err != nil {
		return model.WorkOrder{}, err
	}
	log.Printf("Order %s started in phase %s on %s", started.ID.Format(time.RFC3339Nano), phase, started.MachineID)
	return started, nil
}

// StartScanned creates an order in production from a staged sheet. edited,
// when given, replaces the staged values. The sheet is consumed only if the
// order is stored.
func (s *Service) StartScanned(ctx context.Context, token, machineID string, phase model.PhaseID, edited *scan.Sheet) (model.WorkOrder, error) {
	if err := s.checkMachine(ctx, machineID); err != nil {
		return model.WorkOrder{}, err
	}
	if err := s.checkPhase(ctx, phase); err != nil {
		return model.WorkOrder{}, err
	}

	sheet, err := s.scans.Claim(token)
	if err != nil {
		return model.WorkOrder{}, err
	}
	if edited != nil {
		sheet = edited.Normalize()
	}

	order := sheet.Order(machineID, phase, s.timestamp())
	if err := s.store.CreateOrder(ctx, order, sheet.Client()); err != nil {
		s.scans.Restore(token, sheet)
		return model.WorkOrder{}, err
	}
	log.Printf("Order %s created from sheet #%d on %s", order.ID.Format(time.RFC3339Nano), sheet.Sheet, machineID)
	return order, nil
}

// Reassign moves an order to another machine without touching its status.
func (s *Service) Reassign(ctx context.Context, id time.Time, machineID string) (model.WorkOrder, error) {
	if err := s.checkMachine(ctx, machineID); err != nil {
		return model.WorkOrder{}, err
	}
	if err := s.store.ReassignOrder(ctx, id, machineID); err != nil {
		return model.WorkOrder{}, err
	}
	return s.store.GetOrder(ctx, id)
}
