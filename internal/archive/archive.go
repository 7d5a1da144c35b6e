package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/abhisek/mca/internal/thresholds"
)

const (
	segmentPrefix = "feedback-"
	segmentSuffix = ".jsonl.zst"
)

// FeedbackArchive writes evicted feedback into numbered zstd-compressed
// JSONL segments, one segment per Archive call.
type FeedbackArchive struct {
	mu   sync.Mutex
	dir  string
	next int
}

// New opens (creating if needed) an archive rooted at dir.
func New(dir string) (*FeedbackArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	segs, err := Segments(dir)
	if err != nil {
		return nil, err
	}
	next := 1
	if n := len(segs); n > 0 {
		next = segmentIndex(segs[n-1]) + 1
	}
	return &FeedbackArchive{dir: dir, next: next}, nil
}

// Dir returns the archive directory.
func (a *FeedbackArchive) Dir() string { return a.dir }

// Archive implements thresholds.Archiver.
func (a *FeedbackArchive) Archive(entries []thresholds.FeedbackEntry) error {
	if len(entries) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	path := SegmentPath(a.dir, a.next)
	if err := writeSegment(path, entries); err != nil {
		return err
	}
	a.next++
	return nil
}

func writeSegment(path string, entries []thresholds.FeedbackEntry) error {
	tmp := path + ".tmp"
	dest, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}

	encoder, err := zstd.NewWriter(dest)
	if err != nil {
		dest.Close()
		os.Remove(tmp)
		return fmt.Errorf("create zstd encoder: %w", err)
	}

	enc := json.NewEncoder(encoder)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			encoder.Close()
			dest.Close()
			os.Remove(tmp)
			return fmt.Errorf("encode entry %s: %w", e.ID, err)
		}
	}

	if err := encoder.Close(); err != nil {
		dest.Close()
		os.Remove(tmp)
		return fmt.Errorf("finalize compression: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close segment: %w", err)
	}
	return os.Rename(tmp, path)
}

// SegmentPath returns the path of segment n in dir.
func SegmentPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%06d%s", segmentPrefix, n, segmentSuffix))
}

// Segments lists segment files in dir in write order.
func Segments(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, segmentPrefix+"*"+segmentSuffix))
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	sort.Slice(matches, func(i, j int) bool { return segmentIndex(matches[i]) < segmentIndex(matches[j]) })
	return matches, nil
}

func segmentIndex(path string) int {
	base := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), segmentPrefix), segmentSuffix)
	n, err := strconv.Atoi(base)
	if err != nil {
		return 0
	}
	return n
}

// ReadSegment decodes one segment.
func ReadSegment(path string) ([]thresholds.FeedbackEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	decoder, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	var out []thresholds.FeedbackEntry
	sc := bufio.NewScanner(decoder)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e thresholds.FeedbackEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("decompress %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// ReadAll decodes every segment in dir, oldest first.
func ReadAll(dir string) ([]thresholds.FeedbackEntry, error) {
	segs, err := Segments(dir)
	if err != nil {
		return nil, err
	}
	var out []thresholds.FeedbackEntry
	for _, s := range segs {
		entries, err := ReadSegment(s)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}
