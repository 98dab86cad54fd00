////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

// Package storage is nilVM's SQLite bookkeeping layer (SPEC_FULL.md §6
// expansion): used_nonces, preprocessing_offsets, account_balances,
// add_funds_transfers and blob_expirations, behind a gorm.DB connection.
// It is grounded on the teacher's storage/database.go + storage.go split
// (a low-level gorm-wrapped database type plus a Storage façade exposing
// business methods) generalized from Postgres-backed client registration
// to SQLite-backed billing/preprocessing/nonce bookkeeping.
package storage

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NillionNetwork/nilvm/internal/identity"
)

// UsedNonce is one row of the used_nonces table (spec.md §3: "Nonces
// used: per service, tagged {AuthToken, Receipt, ...}, stored with
// expires_at, keyed (nonce, kind); evicted when past expiration").
type UsedNonce struct {
	Nonce     []byte    `gorm:"primaryKey;column:nonce"`
	Kind      string    `gorm:"primaryKey;column:kind"`
	ExpiresAt time.Time `gorm:"not null"`
}

// PreprocessingOffset persists the high-water marks internal/preprocessing's
// in-memory Pool counters track, so a restarted node does not regenerate
// material it already has (spec.md Non-goals excludes durability of
// in-flight *compute* state, but preprocessing pool counters are
// cluster-consensus state, not per-compute state, so they are persisted
// here).
type PreprocessingOffset struct {
	Element         string `gorm:"primaryKey"`
	Generated       uint64 `gorm:"not null"`
	CandidateDelete uint64 `gorm:"not null"`
	Deleted         uint64 `gorm:"not null"`
}

// AccountBalance is one client's prepaid compute balance.
type AccountBalance struct {
	AccountID []byte `gorm:"primaryKey"`
	Balance   int64  `gorm:"not null"`
}

// AddFundsTransfer records one top-up applied to an AccountBalance,
// keyed by its idempotency nonce so a retried AddFunds call cannot
// double-credit.
type AddFundsTransfer struct {
	TransferID []byte    `gorm:"primaryKey"`
	AccountID  []byte    `gorm:"not null;index"`
	Amount     int64     `gorm:"not null"`
	AppliedAt  time.Time `gorm:"not null"`
}

// BlobExpiration tracks the retention deadline for one stored value/program
// blob so a periodic sweep (out of this package) knows what to evict from
// the ObjectStore.
type BlobExpiration struct {
	BlobID    []byte    `gorm:"primaryKey"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// Store is the gorm-backed façade over all five tables, matching the
// teacher's DatabaseImpl{db *gorm.DB} shape.
type Store struct {
	db *gorm.DB
}

// Open opens (and if necessary creates) the SQLite database at path and
// migrates every table this package owns.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.New(jww.TRACE, logger.Config{LogLevel: logger.Warn}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "storage: opening sqlite database")
	}
	if err := db.AutoMigrate(&UsedNonce{}, &PreprocessingOffset{}, &AccountBalance{}, &AddFundsTransfer{}, &BlobExpiration{}); err != nil {
		return nil, errors.Wrap(err, "storage: migrating schema")
	}
	return &Store{db: db}, nil
}

// MarkUsed implements identity.NonceStore over the used_nonces table. A
// (nonce, kind) pair whose prior row has already expired is treated as
// free again and its row is refreshed in place, rather than permanently
// blocking that nonce value; only a still-live prior use is rejected.
func (s *Store) MarkUsed(kind identity.NonceKind, nonce [16]byte, expiresAt time.Time) error {
	row := UsedNonce{Nonce: nonce[:], Kind: string(kind), ExpiresAt: expiresAt}
	err := s.db.Create(&row).Error
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return errors.Wrap(err, "storage: recording used nonce")
	}

	var existing UsedNonce
	if lookupErr := s.db.First(&existing, "nonce = ? AND kind = ?", nonce[:], string(kind)).Error; lookupErr == nil {
		if time.Now().After(existing.ExpiresAt) {
			return s.db.Model(&existing).Update("expires_at", expiresAt).Error
		}
	}
	return identity.ErrNonceReused
}

// EvictExpiredNonces deletes every used_nonces row whose expiry has
// passed, matching spec.md §3's "evicted when past expiration".
func (s *Store) EvictExpiredNonces(now time.Time) (int64, error) {
	res := s.db.Where("expires_at < ?", now).Delete(&UsedNonce{})
	return res.RowsAffected, res.Error
}

func isUniqueViolation(err error) bool {
	// sqlite's driver reports this as a plain string rather than a typed
	// sentinel; gorm's ErrDuplicatedKey covers the common path, matched
	// first so most callers don't depend on driver-specific text.
	return errors.Is(err, gorm.ErrDuplicatedKey) || (err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed"))
}
