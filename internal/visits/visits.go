// Package visits records privacy-conscious page views: client IPs are salted
// and hashed before storage, Do Not Track is honored and rows older than the
// retention window are purged.
package visits

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	Retention  = 12 * 30 * 24 * time.Hour
)

// HTMX fragments load inside a page view, so they are not visits themselves.
var skippedPrefixes = []string{
	"/static/", "/images/", "/admin/", "/api/", "/favicon", "/privacy", "/health",
	"/contact-form", "/work-content", "/education-content",
}

// Visit is one tracked page view.
type Visit struct {
	ID        int64     `json:"id"`
	HashedIP  string    `json:"hashed_ip"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

type Stats struct {
	TotalVisitors    int64   `json:"total_visitors"`
	UniqueVisitors   int64   `json:"unique_visitors"`
	VisitorsToday    int64   `json:"visitors_today"`
	VisitorsThisWeek int64   `json:"visitors_this_week"`
	RecentVisitors   []Visit `json:"recent_visitors"`
}

// Tracker writes visits to the visitors table.
type Tracker struct {
	db   *sql.DB
	salt string
	now  func() time.Time
	wg   sync.WaitGroup
}

// NewTracker creates the visitors table and a fresh per-process salt, so
// hashes cannot be joined across restarts.
func NewTracker(ctx context.Context, db *sql.DB) (*Tracker, error) {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS visitors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hashed_ip TEXT NOT NULL,
		user_agent TEXT,
		path TEXT,
		timestamp TEXT NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create visitors table: %w", err)
	}

	salt, err := RandomToken()
	if err != nil {
		return nil, err
	}

	log.Println("Privacy: Visitor tracking enabled with hashed IP addresses")
	return &Tracker{db: db, salt: salt, now: time.Now}, nil
}

// RandomToken returns 32 random bytes hex encoded.
func RandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashIP returns a salted, truncated hash that is stable for one process.
func (t *Tracker) HashIP(ip string) string {
	hash := sha256.New()
	hash.Write([]byte(ip + t.salt))
	return hex.EncodeToString(hash.Sum(nil))[:16]
}

// Middleware records page views in the background.
func (t *Tracker) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.Method != "GET" || skipped(path) || c.GetHeader("DNT") == "1" {
			c.Next()
			return
		}

		ip, ua := c.ClientIP(), c.GetHeader("User-Agent")
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if err := t.Record(context.Background(), ip, ua, path); err != nil {
				log.Printf("Error recording visitor: %v", err)
			}
		}()
		c.Next()
	}
}

// Wait blocks until background writes started by Middleware finish.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func skipped(path string) bool {
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Record stores one visit.
func (t *Tracker) Record(ctx context.Context, ip, userAgent, path string) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO visitors (hashed_ip, user_agent, path, timestamp)
		VALUES (?, ?, ?, ?)
	`, t.HashIP(ip), userAgent, path, t.now().UTC().Format(timeLayout))
	return err
}

// Cleanup deletes visits older than Retention.
func (t *Tracker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := t.now().UTC().Add(-Retention).Format(timeLayout)
	result, err := t.db.ExecContext(ctx, `DELETE FROM visitors WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up visitors: %w", err)
	}

	rowsDeleted, _ := result.RowsAffected()
	if rowsDeleted > 0 {
		log.Printf("Privacy cleanup: Removed %d visitor records older than 12 months", rowsDeleted)
	}
	return rowsDeleted, nil
}

// Stats aggregates the visitors table for the admin dashboard.
func (t *Tracker) Stats(ctx context.Context, recent int) (*Stats, error) {
	now := t.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Format(timeLayout)
	week := now.Add(-7 * 24 * time.Hour).Format(timeLayout)

	stats := &Stats{RecentVisitors: []Visit{}}
	err := t.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT hashed_ip),
			COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0)
		FROM visitors
	`, today, week).Scan(&stats.TotalVisitors, &stats.UniqueVisitors, &stats.VisitorsToday, &stats.VisitorsThisWeek)
	if err != nil {
		return nil, fmt.Errorf("failed to count visitors: %w", err)
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT id, hashed_ip, COALESCE(user_agent, ''), COALESCE(path, ''), timestamp
		FROM visitors
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, recent)
	if err != nil {
		return nil, fmt.Errorf("failed to list visitors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v Visit
		var ts string
		if err := rows.Scan(&v.ID, &v.HashedIP, &v.UserAgent, &v.Path, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan visitor: %w", err)
		}
		if v.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			log.Printf("[warn] operation=visits.stats id=%d bad timestamp %q: %v", v.ID, ts, err)
		}
		stats.RecentVisitors = append(stats.RecentVisitors, v)
	}
	return stats, rows.Err()
}
