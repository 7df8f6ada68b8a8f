package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket  = []byte("config")  // version, timestamps, vault ID - unencrypted
	MastersBucket = []byte("masters") // identity -> MasterRecord JSON
	IndexBucket   = []byte("index")   // identity -> name -> Entry JSON - unencrypted
	BlobsBucket   = []byte("blobs")   // identity -> name -> envelope bytes
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigVaultID  = []byte("vault_id")
)

// FormatVersion is written on Initialize.
const FormatVersion = "1"

var (
	ErrNotFound       = errors.New("not found")
	ErrExists         = errors.New("already exists")
	ErrNotInitialized = errors.New("vault not initialized")
)

// Storage provides BBolt-based storage for passvault
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a passvault database
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database. It is a no-op when a failed Compact left
// nothing open.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure for a new vault
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, MastersBucket, IndexBucket, BlobsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if err := config.Put(ConfigVersion, []byte(FormatVersion)); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

func touch(tx *bolt.Tx) error {
	modified, _ := time.Now().MarshalBinary()
	return tx.Bucket(ConfigBucket).Put(ConfigModified, modified)
}

func (s *Storage) getTime(key []byte) (time.Time, error) {
	var t time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		data := config.Get(key)
		if data == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return t.UnmarshalBinary(data)
	})
	return t, err
}

// GetCreated returns when the vault was initialized.
func (s *Storage) GetCreated() (time.Time, error) {
	return s.getTime(ConfigCreated)
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	return s.getTime(ConfigModified)
}

// GetVaultID retrieves the vault ID from config bucket
func (s *Storage) GetVaultID() (string, error) {
	var vaultID string
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		data := config.Get(ConfigVaultID)
		if data == nil {
			return fmt.Errorf("vault_id: %w", ErrNotFound)
		}
		vaultID = string(data)
		return nil
	})
	return vaultID, err
}

// GetOrCreateVaultID retrieves existing vault ID or generates a new one
func (s *Storage) GetOrCreateVaultID() (string, error) {
	vaultID, err := s.GetVaultID()
	if err == nil {
		return vaultID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		// Another process may have won the race since the read above.
		if existing := config.Get(ConfigVaultID); existing != nil {
			vaultID = string(existing)
			return nil
		}
		vaultID = uuid.NewString()
		return config.Put(ConfigVaultID, []byte(vaultID))
	})
	if err != nil {
		return "", fmt.Errorf("failed to store vault ID: %w", err)
	}
	return vaultID, nil
}

// CreateMaster stores rec for a new identity, assigning an ID when empty.
func (s *Storage) CreateMaster(rec *MasterRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Created.IsZero() {
		rec.Created = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		masters := tx.Bucket(MastersBucket)
		if masters == nil {
			return ErrNotInitialized
		}
		if masters.Get([]byte(rec.Username)) != nil {
			return fmt.Errorf("master %q: %w", rec.Username, ErrExists)
		}
		if err := putJSON(masters, rec.Username, rec); err != nil {
			return err
		}
		return touch(tx)
	})
}

// GetMaster returns the record stored for username.
func (s *Storage) GetMaster(username string) (*MasterRecord, error) {
	var rec *MasterRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		masters := tx.Bucket(MastersBucket)
		if masters == nil {
			return ErrNotInitialized
		}
		data := masters.Get([]byte(username))
		if data == nil {
			return fmt.Errorf("master %q: %w", username, ErrNotFound)
		}
		rec = &MasterRecord{}
		return json.Unmarshal(data, rec)
	})
	return rec, err
}

// UpdateMasterHash replaces the hash of an existing record, keeping its ID.
func (s *Storage) UpdateMasterHash(username, hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		masters := tx.Bucket(MastersBucket)
		if masters == nil {
			return ErrNotInitialized
		}
		rec, err := getMaster(masters, username)
		if err != nil {
			return err
		}
		rec.PasswordHash = hash
		return putJSON(masters, username, rec)
	})
}

// ListMasters returns every stored identity sorted by username.
func (s *Storage) ListMasters() ([]MasterRecord, error) {
	var recs []MasterRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		masters := tx.Bucket(MastersBucket)
		if masters == nil {
			return ErrNotInitialized
		}
		return masters.ForEach(func(k, v []byte) error {
			var rec MasterRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt master record %q: %w", k, err)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}

// PutSecret stores entry and its envelope for owner, replacing any previous
// secret of the same name. A replaced entry keeps its ID and creation time.
func (s *Storage) PutSecret(owner string, entry Entry, envelope []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		index, blobs, err := ownerBuckets(tx, owner, true)
		if err != nil {
			return err
		}
		if prev := index.Get([]byte(entry.Name)); prev != nil {
			var old Entry
			if err := json.Unmarshal(prev, &old); err == nil {
				entry.ID = old.ID
				entry.Created = old.Created
			}
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.Touch(time.Now())
		if err := putJSON(index, entry.Name, entry); err != nil {
			return err
		}
		if err := blobs.Put([]byte(entry.Name), envelope); err != nil {
			return err
		}
		return touch(tx)
	})
}

// ReplaceSecret overwrites the secret stored under oldName with entry and
// envelope, moving it when entry.Name differs. The ID and creation time of
// the old entry are kept. Moving onto a name in use returns ErrExists.
func (s *Storage) ReplaceSecret(owner, oldName string, entry Entry, envelope []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		index, blobs, err := ownerBuckets(tx, owner, false)
		if err != nil {
			return err
		}
		prev := index.Get([]byte(oldName))
		if prev == nil {
			return fmt.Errorf("secret %q: %w", oldName, ErrNotFound)
		}
		var old Entry
		if err := json.Unmarshal(prev, &old); err != nil {
			return err
		}

		if entry.Name != oldName {
			if index.Get([]byte(entry.Name)) != nil {
				return fmt.Errorf("secret %q: %w", entry.Name, ErrExists)
			}
			if err := index.Delete([]byte(oldName)); err != nil {
				return err
			}
			if err := blobs.Delete([]byte(oldName)); err != nil {
				return err
			}
		}

		entry.ID = old.ID
		entry.Created = old.Created
		entry.Touch(time.Now())
		if err := putJSON(index, entry.Name, entry); err != nil {
			return err
		}
		if err := blobs.Put([]byte(entry.Name), envelope); err != nil {
			return err
		}
		return touch(tx)
	})
}

// GetSecret returns the entry and envelope bytes stored under name.
func (s *Storage) GetSecret(owner, name string) (*Entry, []byte, error) {
	var (
		entry *Entry
		data  []byte
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		index, blobs, err := ownerBuckets(tx, owner, false)
		if err != nil {
			return err
		}
		raw := index.Get([]byte(name))
		blob := blobs.Get([]byte(name))
		if raw == nil || blob == nil {
			return fmt.Errorf("secret %q: %w", name, ErrNotFound)
		}
		entry = &Entry{}
		if err := json.Unmarshal(raw, entry); err != nil {
			return err
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), blob...)
		return nil
	})
	return entry, data, err
}

// RemoveSecret deletes name from owner's index and blobs.
func (s *Storage) RemoveSecret(owner, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		index, blobs, err := ownerBuckets(tx, owner, false)
		if err != nil {
			return err
		}
		if index.Get([]byte(name)) == nil {
			return fmt.Errorf("secret %q: %w", name, ErrNotFound)
		}
		if err := index.Delete([]byte(name)); err != nil {
			return err
		}
		if err := blobs.Delete([]byte(name)); err != nil {
			return err
		}
		return touch(tx)
	})
}

// ListEntries returns owner's public entries sorted by name.
func (s *Storage) ListEntries(owner string) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		index, _, err := ownerBuckets(tx, owner, false)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return index.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt index entry %q: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, err
}

// RekeyFunc returns the replacement for one envelope.
type RekeyFunc func(name string, envelope []byte) ([]byte, error)

// Rekey rewrites every envelope of owner through fn and stores rec in place
// of owner's master record, all in one transaction. If rec.Username differs
// from owner the secrets move to the new identity. The record ID and creation
// time of the old record are preserved. Nothing is written if fn fails.
func (s *Storage) Rekey(owner string, rec MasterRecord, fn RekeyFunc) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		masters := tx.Bucket(MastersBucket)
		if masters == nil {
			return ErrNotInitialized
		}
		old, err := getMaster(masters, owner)
		if err != nil {
			return err
		}
		renamed := rec.Username != owner
		if renamed && masters.Get([]byte(rec.Username)) != nil {
			return fmt.Errorf("master %q: %w", rec.Username, ErrExists)
		}

		rec.ID = old.ID
		rec.Created = old.Created
		rec.Rotated = time.Now()

		srcIndex, srcBlobs, err := ownerBuckets(tx, owner, true)
		if err != nil {
			return err
		}
		rewritten := make(map[string][]byte)
		err = srcBlobs.ForEach(func(k, v []byte) error {
			next, err := fn(string(k), append([]byte(nil), v...))
			if err != nil {
				return fmt.Errorf("failed to re-encrypt %q: %w", k, err)
			}
			rewritten[string(k)] = next
			return nil
		})
		if err != nil {
			return err
		}

		dstIndex, dstBlobs := srcIndex, srcBlobs
		if renamed {
			if dstIndex, dstBlobs, err = ownerBuckets(tx, rec.Username, true); err != nil {
				return err
			}
			if err := srcIndex.ForEach(func(k, v []byte) error {
				return dstIndex.Put(k, v)
			}); err != nil {
				return err
			}
			if err := deleteOwner(tx, owner); err != nil {
				return err
			}
			if err := masters.Delete([]byte(owner)); err != nil {
				return err
			}
		}
		for name, data := range rewritten {
			if err := dstBlobs.Put([]byte(name), data); err != nil {
				return err
			}
		}
		if err := putJSON(masters, rec.Username, rec); err != nil {
			return err
		}
		return touch(tx)
	})
}

func ownerBuckets(tx *bolt.Tx, owner string, create bool) (index, blobs *bolt.Bucket, err error) {
	indexRoot, blobsRoot := tx.Bucket(IndexBucket), tx.Bucket(BlobsBucket)
	if indexRoot == nil || blobsRoot == nil {
		return nil, nil, ErrNotInitialized
	}
	if create {
		if index, err = indexRoot.CreateBucketIfNotExists([]byte(owner)); err != nil {
			return nil, nil, err
		}
		if blobs, err = blobsRoot.CreateBucketIfNotExists([]byte(owner)); err != nil {
			return nil, nil, err
		}
		return index, blobs, nil
	}
	index, blobs = indexRoot.Bucket([]byte(owner)), blobsRoot.Bucket([]byte(owner))
	if index == nil || blobs == nil {
		return nil, nil, fmt.Errorf("owner %q: %w", owner, ErrNotFound)
	}
	return index, blobs, nil
}

func deleteOwner(tx *bolt.Tx, owner string) error {
	for _, root := range [][]byte{IndexBucket, BlobsBucket} {
		err := tx.Bucket(root).DeleteBucket([]byte(owner))
		if err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
	}
	return nil
}

func getMaster(masters *bolt.Bucket, username string) (*MasterRecord, error) {
	data := masters.Get([]byte(username))
	if data == nil {
		return nil, fmt.Errorf("master %q: %w", username, ErrNotFound)
	}
	rec := &MasterRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("corrupt master record %q: %w", username, err)
	}
	return rec, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// Compact creates a compacted copy of the database, removing unused space.
// Deleted secrets leave their old envelope bytes in free pages until then.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return copyBucket(srcBucket, dstBucket)
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	db, err := bolt.Open(srcPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		s.db = nil
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	s.db = db

	return nil
}

// copyBucket copies keys and nested buckets; nested buckets show up in
// ForEach with a nil value.
func copyBucket(src, dst *bolt.Bucket) error {
	return src.ForEach(func(k, v []byte) error {
		if v != nil {
			return dst.Put(k, v)
		}
		child, err := dst.CreateBucketIfNotExists(k)
		if err != nil {
			return err
		}
		return copyBucket(src.Bucket(k), child)
	})
}
