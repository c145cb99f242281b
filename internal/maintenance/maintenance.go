package maintenance

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// StartKeepalive issues a periodic harmless GET so hosting platforms with
// idle-shutdown policies keep the process alive. A failed ping is only worth
// a log line.
func StartKeepalive(ctx context.Context, url string, interval time.Duration) {
	if url == "" {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	client := &http.Client{Timeout: 30 * time.Second}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
				if err != nil {
					log.Printf("keepalive: bad url: %v", err)
					return
				}
				res, err := client.Do(req)
				if err != nil {
					log.Printf("keepalive: ping failed: %v", err)
					continue
				}
				res.Body.Close()
			}
		}
	}()
}

// StartMediaJanitor periodically deletes stale temporary media files from
// the designated directories.
func StartMediaJanitor(ctx context.Context, dirs []string, maxAge, interval time.Duration) {
	if len(dirs) == 0 {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				SweepStaleFiles(dirs, maxAge)
			}
		}
	}()
}

// SweepStaleFiles removes regular files older than maxAge from each
// directory. Subdirectories are left alone. Missing directories and
// per-file removal failures are logged and skipped.
func SweepStaleFiles(dirs []string, maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Printf("janitor: read %s: %v", dir, err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				log.Printf("janitor: remove %s: %v", path, err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		log.Printf("janitor: removed %d stale media files", removed)
	}
	return removed
}
