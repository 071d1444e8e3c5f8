package imapsync

import (
	"context"
	"io"
	"sync"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"golang.org/x/sync/errgroup"

	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/uidset"
)

// fetchItemsMetadata pulls everything buildEnvelope needs for a rich or
// minimal row without downloading any body content.
var fetchItemsMetadata = []goimap.FetchItem{
	goimap.FetchEnvelope,
	goimap.FetchBodyStructure,
	goimap.FetchFlags,
	goimap.FetchInternalDate,
	goimap.FetchRFC822Size,
	goimap.FetchUid,
}

// fetchItemsFlags is the fast-path / reconcile-window item set: just enough
// to diff against the flag index.
var fetchItemsFlags = []goimap.FetchItem{
	goimap.FetchUid,
	goimap.FetchFlags,
}

const fetchFullMessageItem = goimap.FetchItem("BODY.PEEK[]")

// uidFetchSet runs a single UID FETCH for an already-bounded set of UIDs,
// draining the message channel into a slice.
func uidFetchSet(c *client.Client, uids []uint32, items []goimap.FetchItem) ([]*goimap.Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	seqSet, err := goimap.ParseSeqSet(uidset.Compress(uids))
	if err != nil {
		return nil, mailerrors.NewProtocolError("imap.seqset", err)
	}

	messages := make(chan *goimap.Message, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var out []*goimap.Message
	for m := range messages {
		out = append(out, m)
	}
	if err := <-done; err != nil {
		return nil, mailerrors.NewProtocolError("imap.uidfetch", err)
	}
	return out, nil
}

// uidFetchConcurrent splits uids into groups of batchSize and runs the UID
// FETCH for each group concurrently, bounded by concurrency in-flight
// commands on the single shared connection.
func uidFetchConcurrent(ctx context.Context, c *client.Client, uids []uint32, items []goimap.FetchItem, batchSize, concurrency int) ([]*goimap.Message, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var batches [][]uint32
	for i := 0; i < len(uids); i += batchSize {
		end := i + batchSize
		if end > len(uids) {
			end = len(uids)
		}
		batches = append(batches, uids[i:end])
	}

	var (
		mu  sync.Mutex
		out []*goimap.Message
	)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			msgs, err := uidFetchSet(c, batch, items)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, msgs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchMSNRange runs a plain (non-UID) FETCH over a sequence-number window,
// used by the MSN-paginated rebuild branch for accounts with no date_since
// filter configured.
func fetchMSNRange(c *client.Client, start, end uint32, items []goimap.FetchItem) ([]*goimap.Message, error) {
	seqSet := new(goimap.SeqSet)
	seqSet.AddRange(start, end)

	messages := make(chan *goimap.Message, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	var out []*goimap.Message
	for m := range messages {
		out = append(out, m)
	}
	if err := <-done; err != nil {
		return nil, mailerrors.NewProtocolError("imap.fetch", err)
	}
	return out, nil
}

// uidFetchFrom runs a single UID FETCH covering [start, *) — used by the
// new-mail path, which only ever needs to learn about UIDs beyond what the
// flag index already knows.
func uidFetchFrom(c *client.Client, start uint32, items []goimap.FetchItem) ([]*goimap.Message, error) {
	seqSet := new(goimap.SeqSet)
	seqSet.AddRange(start, 0)

	messages := make(chan *goimap.Message, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var out []*goimap.Message
	for m := range messages {
		out = append(out, m)
	}
	if err := <-done; err != nil {
		return nil, mailerrors.NewProtocolError("imap.uidfetch.from", err)
	}
	return out, nil
}

// uidFetchFlagRange runs a single UID FETCH of (uid, flags) over a bounded
// UID range — the full-sync path's per-window primitive.
func uidFetchFlagRange(c *client.Client, start, end uint32) ([]*goimap.Message, error) {
	seqSet := new(goimap.SeqSet)
	seqSet.AddRange(start, end)

	messages := make(chan *goimap.Message, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, fetchItemsFlags, messages)
	}()

	var out []*goimap.Message
	for m := range messages {
		out = append(out, m)
	}
	if err := <-done; err != nil {
		return nil, mailerrors.NewProtocolError("imap.uidfetch.window", err)
	}
	return out, nil
}

// fetchFullMessage retrieves the complete RFC 822 source of a single UID,
// used when the bounce extractor or the EmailAddedToFolder hook needs the
// raw bytes rather than the parsed envelope/bodystructure.
func fetchFullMessage(c *client.Client, uid uint32) ([]byte, error) {
	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uid)

	messages := make(chan *goimap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, []goimap.FetchItem{fetchFullMessageItem}, messages)
	}()

	var raw []byte
	for m := range messages {
		for section, literal := range m.Body {
			if literal == nil {
				continue
			}
			if len(section.Path) == 0 && section.Specifier == goimap.EntireSpecifier {
				data, err := io.ReadAll(literal)
				if err == nil {
					raw = data
				}
			}
		}
	}
	if err := <-done; err != nil {
		return nil, mailerrors.NewProtocolError("imap.uidfetch.full", err)
	}
	return raw, nil
}
