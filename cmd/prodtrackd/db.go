package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"prodtrack-backend/config"
	"prodtrack-backend/internal/db"
	"prodtrack-backend/internal/model"
	"prodtrack-backend/internal/store"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}
	return cfg, nil
}

func connectFromConfig(cmd *cobra.Command) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize %s database: %w", cfg.Database.Driver, err)
	}
	return cfg, gormDB, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := connectFromConfig(cmd); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the configured machines and phases",
		Long:  "Upserts the machines and phases listed under reference in the config file. Existing rows keep their id and get the configured name.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(cmd)
			if err != nil {
				return err
			}
			return runSeed(cmd, cfg.Reference, store.NewGormStore(gormDB))
		},
	}
}

func runSeed(cmd *cobra.Command, ref config.ReferenceConfig, s store.Store) error {
	ctx := context.Background()

	machines := make([]model.Machine, len(ref.Machines))
	for i, e := range ref.Machines {
		machines[i] = model.Machine{ID: e.ID, Name: e.Name}
	}
	if err := s.UpsertMachines(ctx, machines); err != nil {
		return fmt.Errorf("seed machines: %w", err)
	}

	phases := make([]model.Phase, len(ref.Phases))
	for i, e := range ref.Phases {
		phases[i] = model.Phase{ID: model.PhaseID(e.ID), Name: e.Name}
	}
	if err := s.UpsertPhases(ctx, phases); err != nil {
		return fmt.Errorf("seed phases: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d machines and %d phases\n", len(machines), len(phases))
	return nil
}
