package core

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// discoverSegments enumerates dir non-recursively, pairs .data/.hint
// files sharing a file-id stem, and returns the discovered segments
// sorted by ascending file-id (oldest first), plus the file-ids of any
// orphaned .hint files (a .hint file without a .data sibling, ignored
// for recovery purposes but reported so Open can log it). A .data file
// without a .hint sibling is returned with hasHint=false.
func discoverSegments(dir string) (segments []*Segment, hasHints []bool, orphanHints []FileID, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read directory %q: %w", dir, err)
	}

	dataIDs := mapset.NewSet[int64]()
	hintIDs := mapset.NewSet[int64]()

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, dataExt):
			if id, ok := parseFileIDStem(strings.TrimSuffix(name, dataExt)); ok {
				dataIDs.Add(id)
			}
		case strings.HasSuffix(name, hintExt):
			if id, ok := parseFileIDStem(strings.TrimSuffix(name, hintExt)); ok {
				hintIDs.Add(id)
			}
		}
	}

	ids := dataIDs.ToSlice()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	segments = make([]*Segment, 0, len(ids))
	hasHints = make([]bool, 0, len(ids))
	for _, id := range ids {
		seg, hasHint, err := openSegment(dir, FileID(id))
		if err != nil {
			for _, s := range segments {
				_ = s.Close()
			}
			return nil, nil, nil, err
		}
		segments = append(segments, seg)
		hasHints = append(hasHints, hasHint)
	}

	// A .hint file without a .data sibling is orphaned debris, most
	// likely left behind by a merge that crashed after removing the old
	// data file but before removing its hint. It is harmless and ignored
	// for recovery, but Open logs it so an operator notices the litter.
	for _, id := range hintIDs.Difference(dataIDs).ToSlice() {
		orphanHints = append(orphanHints, FileID(id))
	}
	sort.Slice(orphanHints, func(i, j int) bool { return orphanHints[i] < orphanHints[j] })

	return segments, hasHints, orphanHints, nil
}

func parseFileIDStem(stem string) (int64, bool) {
	id, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// createNewSegment creates a fresh, empty segment pair in dir, named
// after the current wall-clock nanosecond timestamp. Two callers racing
// on the same nanosecond will have the second's O_EXCL create fail;
// this function retries with a freshly minted timestamp until it wins.
func createNewSegment(dir string) (*Segment, error) {
	for attempt := 0; attempt < 1000; attempt++ {
		id := FileID(time.Now().UnixNano())
		seg, err := createSegment(dir, id)
		if err == nil {
			return seg, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("create new segment in %q: exhausted retries on file-id collision", dir)
}
