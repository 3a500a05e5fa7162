/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dispatchstore persists RoomDispatcher *definitions* (not rooms —
// spec.md's Non-goals only exclude persisting rooms across restarts) so an
// operator's dispatchers survive a process restart. Modeled on the
// teacher's gorm conventions (string UUID primary key, TableName method,
// plain struct tags) in internal/models.
package dispatchstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/friendsincode/relaycast/internal/dispatch"
	"github.com/friendsincode/relaycast/internal/relaytypes"
)

// DispatcherRecord is the durable row for one dispatcher definition.
type DispatcherRecord struct {
	ID                string `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	AdminPasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	Pattern           string `gorm:"type:text;not null" json:"pattern"`
	Kind              string `gorm:"type:varchar(16);not null" json:"kind"`
	Policy            string `gorm:"type:varchar(32);not null" json:"policy"`
	TimeoutSeconds    int    `gorm:"not null" json:"timeout_seconds"`
	ReturnRoomPrefix  string `gorm:"type:varchar(255)" json:"return_room_prefix,omitempty"`
	AddRandomPostfix  bool   `gorm:"not null;default:false" json:"add_random_postfix"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (DispatcherRecord) TableName() string {
	return "dispatcher_definitions"
}

// Store persists DispatcherRecords and rehydrates dispatch.Dispatcher
// instances from them at startup.
type Store struct {
	db *gorm.DB
}

// New wraps an already-opened *gorm.DB (sqlite/postgres/mysql, whichever
// driver the operator configured).
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate runs GORM auto-migration for the dispatcher definitions table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&DispatcherRecord{}); err != nil {
		return fmt.Errorf("dispatchstore: migrate: %w", err)
	}
	return nil
}

// Save upserts a dispatcher definition by name. adminPassword is hashed
// before it ever reaches the database.
func (s *Store) Save(name, adminPassword, pattern string, kind relaytypes.RoomKind, policy dispatch.Policy, timeout time.Duration, returnRoomPrefix string, addRandomPostfix bool) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("dispatchstore: hash admin password: %w", err)
	}

	rec := DispatcherRecord{
		ID:                uuid.New().String(),
		Name:              name,
		AdminPasswordHash: string(hash),
		Pattern:           pattern,
		Kind:              string(kind),
		Policy:            string(policy),
		TimeoutSeconds:    int(timeout.Seconds()),
		ReturnRoomPrefix:  returnRoomPrefix,
		AddRandomPostfix:  addRandomPostfix,
	}

	if err := s.db.Where("name = ?", name).Assign(rec).FirstOrCreate(&DispatcherRecord{}).Error; err != nil {
		return fmt.Errorf("dispatchstore: save %q: %w", name, err)
	}
	return nil
}

// Delete removes the definition for name.
func (s *Store) Delete(name string) error {
	if err := s.db.Where("name = ?", name).Delete(&DispatcherRecord{}).Error; err != nil {
		return fmt.Errorf("dispatchstore: delete %q: %w", name, err)
	}
	return nil
}

// LoadAll returns every persisted dispatcher record, for rehydration at
// startup into an in-memory dispatch.Manager.
func (s *Store) LoadAll() ([]DispatcherRecord, error) {
	var recs []DispatcherRecord
	if err := s.db.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("dispatchstore: load all: %w", err)
	}
	return recs, nil
}
