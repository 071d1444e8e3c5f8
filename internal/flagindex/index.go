// Package flagindex implements the flag-state index: a purely in-memory
// nested map, account -> folder -> uid -> flags hash, that is the
// authoritative source of "what UIDs do I know about" during
// reconciliation. The envelope store is consulted only to materialize
// bodies and headers.
package flagindex

import (
	"context"
	"sort"
	"sync"

	"github.com/mailforge/mailforge/internal/logger"
)

// UIDFlags is one entry of a folder's uid-to-flags-hash snapshot.
type UIDFlags struct {
	UID       uint32
	FlagsHash uint64
}

type folderIndex struct {
	mu   sync.RWMutex
	uids map[uint32]uint64
}

func newFolderIndex() *folderIndex {
	return &folderIndex{uids: make(map[uint32]uint64)}
}

// Index is the flag-state index. Zero value is not usable; construct with
// New.
type Index struct {
	log logger.Logger

	mu      sync.RWMutex
	folders map[string]map[string]*folderIndex // account -> folder -> index
}

func New(log logger.Logger) *Index {
	return &Index{
		log:     log,
		folders: make(map[string]map[string]*folderIndex),
	}
}

func (idx *Index) folderFor(accountID, folderID string, create bool) *folderIndex {
	idx.mu.RLock()
	accFolders, ok := idx.folders[accountID]
	if ok {
		fi, ok := accFolders[folderID]
		idx.mu.RUnlock()
		if ok {
			return fi
		}
	} else {
		idx.mu.RUnlock()
	}
	if !create {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	accFolders, ok = idx.folders[accountID]
	if !ok {
		accFolders = make(map[string]*folderIndex)
		idx.folders[accountID] = accFolders
	}
	fi, ok := accFolders[folderID]
	if !ok {
		fi = newFolderIndex()
		accFolders[folderID] = fi
	}
	return fi
}

// Update inserts or overwrites the flags hash for one UID. Single-UID
// writes never read-modify-write: the critical section is a plain map
// assignment.
func (idx *Index) Update(accountID, folderID string, uid uint32, flagsHash uint64) {
	fi := idx.folderFor(accountID, folderID, true)
	fi.mu.Lock()
	fi.uids[uid] = flagsHash
	fi.mu.Unlock()
}

// GetUIDMap returns every (uid, flagsHash) pair with uid >= minUID, sorted
// ascending by UID.
func (idx *Index) GetUIDMap(accountID, folderID string, minUID uint32) []UIDFlags {
	fi := idx.folderFor(accountID, folderID, false)
	if fi == nil {
		return nil
	}

	fi.mu.RLock()
	out := make([]UIDFlags, 0, len(fi.uids))
	for uid, hash := range fi.uids {
		if uid >= minUID {
			out = append(out, UIDFlags{UID: uid, FlagsHash: hash})
		}
	}
	fi.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Delete drops a single UID from a folder's index; used when a full-sync
// window walk finds a locally-known UID the server no longer reports.
func (idx *Index) Delete(accountID, folderID string, uid uint32) {
	fi := idx.folderFor(accountID, folderID, false)
	if fi == nil {
		return
	}
	fi.mu.Lock()
	delete(fi.uids, uid)
	fi.mu.Unlock()
}

// MaxUID returns the largest UID locally known for the folder, or 0 if the
// folder is empty or unknown.
func (idx *Index) MaxUID(accountID, folderID string) uint32 {
	fi := idx.folderFor(accountID, folderID, false)
	if fi == nil {
		return 0
	}

	fi.mu.RLock()
	defer fi.mu.RUnlock()
	var max uint32
	for uid := range fi.uids {
		if uid > max {
			max = uid
		}
	}
	return max
}

// EnvelopeCleaner is the subset of the envelope store the index's cleanup
// methods drive; satisfied by the repository layer.
type EnvelopeCleaner interface {
	CleanByFolder(ctx context.Context, accountID, folderID string, batchSize int) (int64, error)
	CleanByAccount(ctx context.Context, accountID string, batchSize int) (int64, error)
}

// CleanFolder drops the in-memory index for one folder, then drives the
// store's batched deletion of its envelopes until it reports zero rows
// affected.
func (idx *Index) CleanFolder(ctx context.Context, store EnvelopeCleaner, accountID, folderID string, batchSize int) error {
	idx.mu.Lock()
	if accFolders, ok := idx.folders[accountID]; ok {
		delete(accFolders, folderID)
	}
	idx.mu.Unlock()

	for {
		n, err := store.CleanByFolder(ctx, accountID, folderID, batchSize)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// CleanAccount drops the in-memory index for every folder of the account,
// then drives the store's batched deletion across the account until
// exhausted.
func (idx *Index) CleanAccount(ctx context.Context, store EnvelopeCleaner, accountID string, batchSize int) error {
	idx.mu.Lock()
	delete(idx.folders, accountID)
	idx.mu.Unlock()

	for {
		n, err := store.CleanByAccount(ctx, accountID, batchSize)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// MinimalEnvelopeScanner is the subset of the envelope store the startup
// load needs: the full list of minimal envelopes for one account, used to
// rebuild the in-memory index at startup.
type MinimalEnvelopeScanner interface {
	ScanMinimal(ctx context.Context, accountID string) ([]MinimalEnvelope, error)
}

// MinimalEnvelope is the row shape the startup load consumes.
type MinimalEnvelope struct {
	FolderID  string
	UID       uint32
	FlagsHash uint64
}

// AccountLister is the subset of the account repository LoadState needs.
type AccountLister interface {
	ListEnabledAccountIDs(ctx context.Context) ([]string, error)
}

// LoadState rebuilds the index from the minimal-envelope table for every
// enabled account, with at most maxConcurrent accounts scanned at once.
func (idx *Index) LoadState(ctx context.Context, accounts AccountLister, store MinimalEnvelopeScanner, maxConcurrent int) error {
	accountIDs, err := accounts.ListEnabledAccountIDs(ctx)
	if err != nil {
		return err
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, accountID := range accountIDs {
		accountID := accountID
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			rows, err := store.ScanMinimal(ctx, accountID)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				if idx.log != nil {
					idx.log.Errorf("flagindex: startup scan failed for account %s: %v", accountID, err)
				}
				return
			}
			for _, row := range rows {
				idx.Update(accountID, row.FolderID, row.UID, row.FlagsHash)
			}
		}()
	}

	wg.Wait()
	return firstErr
}
