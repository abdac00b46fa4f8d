// Command seed loads equipment, users, spare parts and PM schedules from a
// YAML fixture file into the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/deve1070/cmms-sub000/internal/config"
	"github.com/deve1070/cmms-sub000/internal/db"
	"github.com/deve1070/cmms-sub000/internal/inventory"
	"github.com/deve1070/cmms-sub000/internal/logging"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/deve1070/cmms-sub000/internal/pm"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type fixtures struct {
	Equipment []models.Equipment `yaml:"equipment"`
	Users     []models.User      `yaml:"users"`
	Parts     []partFixture      `yaml:"spare_parts"`
	Schedules []scheduleFixture  `yaml:"pm_schedules"`
}

type partFixture struct {
	Name            string `yaml:"name"`
	Quantity        int    `yaml:"quantity"`
	MinimumQuantity int    `yaml:"minimum_quantity"`
	Unit            string `yaml:"unit"`
	Location        string `yaml:"location"`
	Category        string `yaml:"category"`
	Supplier        string `yaml:"supplier"`
	UnitCost        string `yaml:"unit_cost"`
}

type scheduleFixture struct {
	EquipmentID      string    `yaml:"equipment_id"`
	TaskDescription  string    `yaml:"task_description"`
	Frequency        string    `yaml:"frequency"`
	NextDueDate      time.Time `yaml:"next_due_date"`
	AssignedToUserID string    `yaml:"assigned_to_user_id"`
	Priority         string    `yaml:"priority"`
	Notes            string    `yaml:"notes"`
	IsActive         *bool     `yaml:"is_active"`
}

type counts struct {
	Equipment, Users, Parts, Schedules int
}

func decodeFixtures(r io.Reader) (*fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f fixtures
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &f, nil
}

// seed writes f to store. Equipment and users are upserted by id; parts and
// schedules are always inserted as new records.
func seed(ctx context.Context, store db.Store, f *fixtures, log logrus.FieldLogger) (counts, error) {
	var c counts
	for _, e := range f.Equipment {
		if e.ID == "" {
			return c, fmt.Errorf("equipment %q has no id", e.Name)
		}
		if err := store.Equipment().InsertEquipment(ctx, e); err != nil {
			return c, fmt.Errorf("equipment %s: %w", e.ID, err)
		}
		c.Equipment++
	}
	for _, u := range f.Users {
		if u.ID == "" || !models.IsValidRole(u.Role) {
			return c, fmt.Errorf("user %q: id and a valid role are required", u.Username)
		}
		if err := store.Users().InsertUser(ctx, u); err != nil {
			return c, fmt.Errorf("user %s: %w", u.ID, err)
		}
		c.Users++
	}

	ledger := inventory.NewLedger(store.SpareParts(), log)
	for _, p := range f.Parts {
		cost := decimal.Zero
		if p.UnitCost != "" {
			var err error
			if cost, err = decimal.NewFromString(p.UnitCost); err != nil {
				return c, fmt.Errorf("part %s unit_cost: %w", p.Name, err)
			}
		}
		if _, err := ledger.CreatePart(ctx, inventory.PartInput{
			Name:            p.Name,
			Quantity:        p.Quantity,
			MinimumQuantity: p.MinimumQuantity,
			Unit:            p.Unit,
			Location:        p.Location,
			Category:        p.Category,
			Supplier:        p.Supplier,
			UnitCost:        cost,
		}); err != nil {
			return c, fmt.Errorf("part %s: %w", p.Name, err)
		}
		c.Parts++
	}

	schedules := pm.NewSchedules(store.Schedules(), log, nil)
	for _, s := range f.Schedules {
		if _, err := store.Equipment().FindEquipmentByID(ctx, s.EquipmentID); err != nil {
			return c, fmt.Errorf("schedule %q: %w", s.TaskDescription, err)
		}
		if _, err := schedules.Create(ctx, pm.ScheduleInput{
			EquipmentID:      s.EquipmentID,
			TaskDescription:  s.TaskDescription,
			Frequency:        s.Frequency,
			NextDueDate:      s.NextDueDate,
			AssignedToUserID: s.AssignedToUserID,
			Priority:         s.Priority,
			Notes:            s.Notes,
			IsActive:         s.IsActive,
		}); err != nil {
			return c, fmt.Errorf("schedule %q: %w", s.TaskDescription, err)
		}
		c.Schedules++
	}
	return c, nil
}

func main() {
	path := flag.String("file", "fixtures.yaml", "fixture file to load")
	flag.Parse()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	file, err := os.Open(*path)
	if err != nil {
		log.WithError(err).Fatal("failed to open fixtures")
	}
	defer file.Close()
	f, err := decodeFixtures(file)
	if err != nil {
		log.WithError(err).Fatal("invalid fixtures")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	store := db.NewMongoStore(client, cfg.Mongo.DBName, cfg.Mongo.Transactions)
	defer store.Close(context.Background())
	if err := store.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Fatal("failed to create indexes")
	}

	c, err := seed(ctx, store, f, log)
	if err != nil {
		log.WithError(err).Fatal("seeding failed")
	}
	log.WithFields(logrus.Fields{
		"equipment":    c.Equipment,
		"users":        c.Users,
		"spare_parts":  c.Parts,
		"pm_schedules": c.Schedules,
	}).Info("fixtures loaded")
}
