package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prodtrack-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	ListMachines(ctx context.Context) ([]model.Machine, error)
	ListPhases(ctx context.Context) ([]model.Phase, error)
	GetMachine(ctx context.Context, id string) (model.Machine, error)
	GetPhase(ctx context.Context, id model.PhaseID) (model.Phase, error)
	UpsertMachines(ctx context.Context, machines []model.Machine) error
	UpsertPhases(ctx context.Context, phases []model.Phase) error

	GetSelection(ctx context.Context, deviceID string) (string, error)
	SaveSelection(ctx context.Context, deviceID, machineID string) error

	ListOrders(ctx context.Context, machineID string, from, to time.Time) ([]OrderView, error)
	GetOrder(ctx context.Context, id time.Time) (model.WorkOrder, error)
	CreateOrder(ctx context.Context, order model.WorkOrder, client model.Client) error
	StartOrder(ctx context.Context, started model.WorkOrder) error
	CloseOrder(ctx context.Context, closed model.WorkOrder, followUp *model.WorkOrder) error
	ReassignOrder(ctx context.Context, id time.Time, machineID string) error

	SaveSubscription(ctx context.Context, sub model.PushSubscription, machineIDs []string) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscribedMachines(ctx context.Context, endpoint string) ([]string, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// --- Reference data ---

func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("name").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

func (s *gormStore) ListPhases(ctx context.Context) ([]model.Phase, error) {
	var phases []model.Phase
	if err := s.db.WithContext(ctx).Order("name").Find(&phases).Error; err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	return phases, nil
}

func (s *gormStore) GetMachine(ctx context.Context, id string) (model.Machine, error) {
	var m model.Machine
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return model.Machine{}, notFound(fmt.Sprintf("machine %q", id), err)
	}
	return m, nil
}

func (s *gormStore) GetPhase(ctx context.Context, id model.PhaseID) (model.Phase, error) {
	var p model.Phase
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return model.Phase{}, notFound(fmt.Sprintf("phase %q", id), err)
	}
	return p, nil
}

func (s *gormStore) UpsertMachines(ctx context.Context, machines []model.Machine) error {
	if len(machines) == 0 {
		return nil
	}
	log.Printf("Batch upserting %d machines...", len(machines))
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(&machines).Error
}

func (s *gormStore) UpsertPhases(ctx context.Context, phases []model.Phase) error {
	if len(phases) == 0 {
		return nil
	}
	log.Printf("Batch upserting %d phases...", len(phases))
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&phases).Error
}

// --- Station selection ---

func (s *gormStore) GetSelection(ctx context.Context, deviceID string) (string, error) {
	var sel model.StationSelection
	if err := s.db.WithContext(ctx).First(&sel, "device_id = ?", deviceID).Error; err != nil {
		return "", notFound(fmt.Sprintf("selection for device %q", deviceID), err)
	}
	return sel.MachineID, nil
}

func (s *gormStore) SaveSelection(ctx context.Context, deviceID, machineID string) error {
	sel := model.StationSelection{DeviceID: deviceID, MachineID: machineID}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"machine_id", "updated_at"}),
	}).Create(&sel).Error
}

// --- Work orders ---

// ListOrders returns the orders of machineID whose id falls in [from, to],
// oldest first, with reference names resolved.
func (s *gormStore) ListOrders(ctx context.Context, machineID string, from, to time.Time) ([]OrderView, error) {
	var rows []OrderView
	err := s.db.WithContext(ctx).
		Table("work_orders AS w").
		Select("w.*, " +
			"COALESCE(m.name, '') AS machine_name, " +
			"COALESCE(p.name, '') AS phase_name, " +
			"COALESCE(st.name, '') AS status_name, " +
			"COALESCE(c.name, '') AS client_name").
		Joins("LEFT JOIN machines m ON m.id = w.machine_id").
		Joins("LEFT JOIN phases p ON p.id = w.phase_id").
		Joins("LEFT JOIN statuses st ON st.id = w.status_id").
		Joins("LEFT JOIN clients c ON c.id = w.client_id").
		Where("w.machine_id = ? AND w.id >= ? AND w.id <= ?", machineID, from, to).
		Order("w.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for machine %s: %w", machineID, err)
	}
	return rows, nil
}

func (s *gormStore) GetOrder(ctx context.Context, id time.Time) (model.WorkOrder, error) {
	var o model.WorkOrder
	if err := s.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return model.WorkOrder{}, notFound(fmt.Sprintf("order %s", id.Format(time.RFC3339Nano)), err)
	}
	return o, nil
}

// CreateOrder inserts a new order, creating its client first when the client
// id is unknown.
func (s *gormStore) CreateOrder(ctx context.Context, order model.WorkOrder, client model.Client) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&client).Error; err != nil {
			return fmt.Errorf("failed to create client %s: %w", client.ID, err)
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
}

// StartOrder persists a start transition. It only applies to orders that are
// still waiting or outbound.
func (s *gormStore) StartOrder(ctx context.Context, started model.WorkOrder) error {
	res := s.db.WithContext(ctx).Model(&model.WorkOrder{}).
		Where("id = ? AND status_id IN ?", started.ID, []model.StatusID{model.StatusWaiting, model.StatusOutbound}).
		Updates(map[string]any{
			"phase_id":   started.PhaseID,
			"status_id":  started.StatusID,
			"started_at": started.StartedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to start order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(s.db.WithContext(ctx), started.ID)
	}
	return nil
}

// CloseOrder persists a terminate transition and its follow-up in one
// transaction. It only applies to orders still in production.
func (s *gormStore) CloseOrder(ctx context.Context, closed model.WorkOrder, followUp *model.WorkOrder) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.WorkOrder{}).
			Where("id = ? AND status_id = ?", closed.ID, model.StatusInProduction).
			Updates(map[string]any{
				"status_id": closed.StatusID,
				"ended_at":  closed.EndedAt,
				"worked_kg": closed.WorkedKg,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to close order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, closed.ID)
		}

		if followUp != nil {
			if err := tx.Create(followUp).Error; err != nil {
				return fmt.Errorf("failed to create follow-up order at %s: %w", followUp.MachineID, err)
			}
		}
		return nil
	})
}

func (s *gormStore) ReassignOrder(ctx context.Context, id time.Time, machineID string) error {
	res := s.db.WithContext(ctx).Model(&model.WorkOrder{}).
		Where("id = ?", id).
		Update("machine_id", machineID)
	if res.Error != nil {
		return fmt.Errorf("failed to reassign order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero affected rows when the value is unchanged.
		if err := missingOrConflict(s.db.WithContext(ctx), id); !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return nil
}

// --- Push subscriptions ---

// SaveSubscription creates or replaces a subscription and its machine bindings.
func (s *gormStore) SaveSubscription(ctx context.Context, sub model.PushSubscription, machineIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&sub).Error; err != nil {
			return err
		}

		var machines []model.Machine
		if len(machineIDs) > 0 {
			if err := tx.Where("id IN ?", machineIDs).Find(&machines).Error; err != nil {
				return err
			}
		}

		return tx.Model(&sub).Association("Machines").Replace(&machines)
	})
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(&sub).Association("Machines").Clear(); err != nil {
			return err
		}
		return tx.Delete(&sub).Error
	})
}

func (s *gormStore) SubscribedMachines(ctx context.Context, endpoint string) ([]string, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Machines").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, notFound("subscription", err)
	}
	ids := make([]string, len(sub.Machines))
	for i, m := range sub.Machines {
		ids[i] = m.ID
	}
	return ids, nil
}

// --- Helpers ---

func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// missingOrConflict explains why a guarded update on order id matched nothing.
func missingOrConflict(db *gorm.DB, id time.Time) error {
	var n int64
	if err := db.Model(&model.WorkOrder{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check order: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", id.Format(time.RFC3339Nano), ErrNotFound)
	}
	return fmt.Errorf("order %s: %w", id.Format(time.RFC3339Nano), ErrConflict)
}
