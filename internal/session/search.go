package session

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	units "github.com/docker/go-units"
)

// FindByTag returns ids of sessions carrying the given tag.
func (s *Store) FindByTag(tag string) ([]string, error) {
	return s.scan(func(sess *Session) bool {
		return sess.HasTag(tag)
	})
}

// FindByName returns ids of sessions whose name contains the query,
// case-insensitively.
func (s *Store) FindByName(query string) ([]string, error) {
	q := strings.ToLower(query)
	return s.scan(func(sess *Session) bool {
		return strings.Contains(strings.ToLower(sess.Name), q)
	})
}

// FindByContent returns ids of sessions where any entry contains the query,
// case-insensitively.
func (s *Store) FindByContent(query string) ([]string, error) {
	q := strings.ToLower(query)
	return s.scan(func(sess *Session) bool {
		for _, e := range sess.Entries {
			if strings.Contains(strings.ToLower(e.Content), q) {
				return true
			}
		}
		return false
	})
}

// Search matches the query against name, description and entry content, and
// additionally requires every tag in tags to be present on the session.
func (s *Store) Search(query string, tags []string) ([]string, error) {
	q := strings.ToLower(query)
	return s.scan(func(sess *Session) bool {
		for _, t := range tags {
			if !sess.HasTag(t) {
				return false
			}
		}
		if q == "" {
			return true
		}
		haystack := strings.ToLower(sess.Name + " " + sess.Description)
		if strings.Contains(haystack, q) {
			return true
		}
		for _, e := range sess.Entries {
			if strings.Contains(strings.ToLower(e.Content), q) {
				return true
			}
		}
		return false
	})
}

// ByDateRange returns ids of sessions created within [from, to].
func (s *Store) ByDateRange(from, to time.Time) ([]string, error) {
	return s.scan(func(sess *Session) bool {
		return !sess.CreatedAt.Before(from) && !sess.CreatedAt.After(to)
	})
}

// BySize returns ids of sessions whose file size falls within
// [minBytes, maxBytes]. A zero bound is unbounded on that side.
func (s *Store) BySize(minBytes, maxBytes int64) ([]string, error) {
	ids, err := s.allIDs()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, id := range ids {
		info, err := os.Stat(s.filePath(id))
		if err != nil {
			continue
		}
		size := info.Size()
		if (minBytes == 0 || size >= minBytes) && (maxBytes == 0 || size <= maxBytes) {
			out = append(out, id)
		}
	}
	return out, nil
}

// RecentlyModified returns up to limit session ids ordered by file
// modification time, newest first.
func (s *Store) RecentlyModified(limit int) ([]string, error) {
	ids, err := s.allIDs()
	if err != nil {
		return nil, err
	}

	type entry struct {
		id    string
		mtime time.Time
	}
	var entries []entry
	for _, id := range ids {
		info, err := os.Stat(s.filePath(id))
		if err != nil {
			continue
		}
		entries = append(entries, entry{id, info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].mtime.After(entries[j].mtime)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.id)
	}
	return out, nil
}

// CleanupOlderThan deletes sessions whose files have not been modified for
// more than the given number of days. Returns the number deleted.
func (s *Store) CleanupOlderThan(days int) (int, error) {
	ids, err := s.allIDs()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	deleted := 0
	for _, id := range ids {
		info, err := os.Stat(s.filePath(id))
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := s.Delete(id); err != nil {
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

// TokenCount returns the session's accumulated token total, falling back to
// a length-based estimate when no provider usage has been recorded.
func (s *Store) TokenCount(id string) (int, error) {
	sess, err := s.Load(id)
	if err != nil {
		return 0, err
	}
	if sess.TotalTokens > 0 {
		return sess.TotalTokens, nil
	}

	total := 0
	for _, e := range sess.Entries {
		total += len(e.Content) / 4
	}
	return total, nil
}

// Stats summarizes the whole store: session count, total bytes on disk (raw
// and human-readable), and total tokens.
func (s *Store) Stats() (map[string]string, error) {
	ids, err := s.allIDs()
	if err != nil {
		return nil, err
	}

	var totalBytes int64
	totalTokens := 0
	for _, id := range ids {
		info, err := os.Stat(s.filePath(id))
		if err != nil {
			continue
		}
		totalBytes += info.Size()
		if n, err := s.TokenCount(id); err == nil {
			totalTokens += n
		}
	}

	return map[string]string{
		"total_sessions":   fmt.Sprintf("%d", len(ids)),
		"total_size_bytes": fmt.Sprintf("%d", totalBytes),
		"total_size":       units.HumanSize(float64(totalBytes)),
		"total_tokens":     fmt.Sprintf("%d", totalTokens),
	}, nil
}

func (s *Store) scan(match func(*Session) bool) ([]string, error) {
	ids, err := s.allIDs()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, id := range ids {
		sess, err := s.Load(id)
		if err != nil {
			continue
		}
		if match(sess) {
			out = append(out, id)
		}
	}
	return out, nil
}
