////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/NillionNetwork/nilvm/internal/metrics"
)

// accountTag shortens an account id to the label metrics.AccountBalance
// dashboards it under, rather than exporting every raw account id as a
// label value.
func accountTag(accountID []byte) string {
	s := hex.EncodeToString(accountID)
	if len(s) > 16 {
		s = s[:16]
	}
	return s
}

// ErrInsufficientFunds is returned by Debit when an account's balance
// cannot cover the requested amount.
var ErrInsufficientFunds = errors.New("storage: insufficient funds")

// Balance returns an account's current balance, zero if the account has
// never received funds.
func (s *Store) Balance(accountID []byte) (int64, error) {
	var row AccountBalance
	err := s.db.First(&row, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "storage: reading account balance")
	}
	return row.Balance, nil
}

// AddFunds credits amount to accountID, idempotent on transferID: a
// transfer already recorded is a no-op rather than a double credit,
// matching spec.md §6's billing-correctness requirement.
func (s *Store) AddFunds(transferID, accountID []byte, amount int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing AddFundsTransfer
		err := tx.First(&existing, "transfer_id = ?", transferID).Error
		if err == nil {
			return nil // already applied
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "storage: checking transfer idempotency")
		}

		if err := tx.Create(&AddFundsTransfer{
			TransferID: transferID,
			AccountID:  accountID,
			Amount:     amount,
			AppliedAt:  time.Now(),
		}).Error; err != nil {
			return errors.Wrap(err, "storage: recording transfer")
		}

		var balance AccountBalance
		err = tx.First(&balance, "account_id = ?", accountID).Error
		var newBalance int64
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			newBalance = amount
			err = tx.Create(&AccountBalance{AccountID: accountID, Balance: amount}).Error
		case err != nil:
			return errors.Wrap(err, "storage: reading balance for credit")
		default:
			newBalance = balance.Balance + amount
			err = tx.Model(&balance).Update("balance", newBalance).Error
		}
		if err != nil {
			return err
		}
		metrics.AccountBalance.WithLabelValues(accountTag(accountID)).Set(float64(newBalance))
		return nil
	})
}

// Debit subtracts amount from accountID's balance, failing with
// ErrInsufficientFunds rather than letting a balance go negative — the
// compute orchestrator calls this on admission (spec.md §4.7 step 1).
func (s *Store) Debit(accountID []byte, amount int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var balance AccountBalance
		err := tx.First(&balance, "account_id = ?", accountID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInsufficientFunds
		}
		if err != nil {
			return errors.Wrap(err, "storage: reading balance for debit")
		}
		if balance.Balance < amount {
			return ErrInsufficientFunds
		}
		newBalance := balance.Balance - amount
		if err := tx.Model(&balance).Update("balance", newBalance).Error; err != nil {
			return err
		}
		metrics.AccountBalance.WithLabelValues(accountTag(accountID)).Set(float64(newBalance))
		return nil
	})
}
