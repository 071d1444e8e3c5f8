// Package uidset compresses and parses IMAP UID sequence sets in the
// canonical form the reconciler sends on the wire: sorted ascending, runs of
// two or more consecutive UIDs collapsed into "start:end", singletons left
// bare, comma-separated, optionally chunked to bound command line length.
package uidset

import (
	"sort"
	"strconv"
	"strings"
)

// DefaultChunkSize is the number of comma-separated terms per chunk when
// Chunk is used with concurrent UID FETCH batches.
const DefaultChunkSize = 6

// Compress sorts and dedups uids, then renders the canonical compressed
// form. An empty input yields an empty string.
func Compress(uids []uint32) string {
	sorted := sortDedup(uids)
	if len(sorted) == 0 {
		return ""
	}

	var terms []string
	i := 0
	for i < len(sorted) {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		if j > i {
			terms = append(terms, strconv.FormatUint(uint64(sorted[i]), 10)+":"+strconv.FormatUint(uint64(sorted[j]), 10))
		} else {
			terms = append(terms, strconv.FormatUint(uint64(sorted[i]), 10))
		}
		i = j + 1
	}
	return strings.Join(terms, ",")
}

// Chunk compresses uids and splits the resulting terms into groups of size
// terms each (DefaultChunkSize if size <= 0), returning one compressed
// string per chunk. Used to keep individual UID FETCH commands small while
// fetch batches run concurrently.
func Chunk(uids []uint32, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	sorted := sortDedup(uids)
	if len(sorted) == 0 {
		return nil
	}

	var allTerms []string
	i := 0
	for i < len(sorted) {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		if j > i {
			allTerms = append(allTerms, strconv.FormatUint(uint64(sorted[i]), 10)+":"+strconv.FormatUint(uint64(sorted[j]), 10))
		} else {
			allTerms = append(allTerms, strconv.FormatUint(uint64(sorted[i]), 10))
		}
		i = j + 1
	}

	var chunks []string
	for i := 0; i < len(allTerms); i += size {
		end := i + size
		if end > len(allTerms) {
			end = len(allTerms)
		}
		chunks = append(chunks, strings.Join(allTerms[i:end], ","))
	}
	return chunks
}

// Parse expands a canonical (or arbitrary well-formed) compressed sequence
// set back into a sorted, deduplicated slice of UIDs. "*" is not supported;
// callers resolve it against the mailbox's highest UID before calling Parse.
func Parse(set string) ([]uint32, error) {
	set = strings.TrimSpace(set)
	if set == "" {
		return nil, nil
	}

	var out []uint32
	for _, term := range strings.Split(set, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if idx := strings.Index(term, ":"); idx >= 0 {
			startStr, endStr := term[:idx], term[idx+1:]
			start, err := strconv.ParseUint(startStr, 10, 32)
			if err != nil {
				return nil, err
			}
			end, err := strconv.ParseUint(endStr, 10, 32)
			if err != nil {
				return nil, err
			}
			if end < start {
				start, end = end, start
			}
			for u := start; u <= end; u++ {
				out = append(out, uint32(u))
			}
		} else {
			u, err := strconv.ParseUint(term, 10, 32)
			if err != nil {
				return nil, err
			}
			out = append(out, uint32(u))
		}
	}
	return sortDedup(out), nil
}

func sortDedup(uids []uint32) []uint32 {
	if len(uids) == 0 {
		return nil
	}
	cp := make([]uint32, len(uids))
	copy(cp, uids)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })

	out := cp[:1]
	for _, u := range cp[1:] {
		if u != out[len(out)-1] {
			out = append(out, u)
		}
	}
	return out
}
