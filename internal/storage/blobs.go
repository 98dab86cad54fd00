////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package storage

import "time"

// TrackBlob records that blobID expires at expiresAt, so a later sweep
// knows to evict it from the ObjectStore. Saving is idempotent: a
// re-submitted blob simply refreshes its deadline.
func (s *Store) TrackBlob(blobID []byte, expiresAt time.Time) error {
	return s.db.Save(&BlobExpiration{BlobID: blobID, ExpiresAt: expiresAt}).Error
}

// ExpiredBlobs returns every tracked blob ID whose deadline has passed
// as of now, for the caller to remove from the ObjectStore and then
// acknowledge via ForgetBlob.
func (s *Store) ExpiredBlobs(now time.Time) ([][]byte, error) {
	var rows []BlobExpiration
	if err := s.db.Where("expires_at < ?", now).Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([][]byte, len(rows))
	for i, r := range rows {
		ids[i] = r.BlobID
	}
	return ids, nil
}

// ForgetBlob removes blobID's expiration tracking row once it has been
// evicted from the ObjectStore.
func (s *Store) ForgetBlob(blobID []byte) error {
	return s.db.Delete(&BlobExpiration{}, "blob_id = ?", blobID).Error
}
