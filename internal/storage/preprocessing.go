////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/NillionNetwork/nilvm/internal/preprocessing"
)

// LoadOffsets returns the persisted preprocessing.Snapshot for element,
// or the zero snapshot if the node has never generated that element
// before (a fresh pool with everything starting at zero).
func (s *Store) LoadOffsets(element preprocessing.Element) (preprocessing.Snapshot, error) {
	var row PreprocessingOffset
	err := s.db.First(&row, "element = ?", element.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return preprocessing.Snapshot{}, nil
	}
	if err != nil {
		return preprocessing.Snapshot{}, errors.Wrap(err, "storage: loading preprocessing offsets")
	}
	return preprocessing.Snapshot{
		Generated:       row.Generated,
		CandidateDelete: row.CandidateDelete,
		Deleted:         row.Deleted,
	}, nil
}

// SaveOffsets persists element's current Pool counters, so a restarted
// node resumes numbering where the cluster left off instead of
// regenerating already-consumed material.
func (s *Store) SaveOffsets(element preprocessing.Element, snap preprocessing.Snapshot) error {
	row := PreprocessingOffset{
		Element:         element.String(),
		Generated:       snap.Generated,
		CandidateDelete: snap.CandidateDelete,
		Deleted:         snap.Deleted,
	}
	return s.db.Save(&row).Error
}
