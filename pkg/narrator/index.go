package narrator

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// Index is a derived, rebuildable SQLite-backed search cache over
// narration entries. The JSONL narration file remains the source of
// truth; Index is rebuilt from it whenever it is missing or stale
// (SPEC_FULL.md §6).
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if needed) the SQLite file at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS narration (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		t TEXT NOT NULL,
		text TEXT NOT NULL,
		creatures TEXT
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (i *Index) Close() error { return i.db.Close() }

// Stale reports whether the index file is older than the narration source
// file, or missing entirely.
func Stale(indexPath, sourcePath string) bool {
	idxInfo, err := os.Stat(indexPath)
	if err != nil {
		return true
	}
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return false
	}
	return srcInfo.ModTime().After(idxInfo.ModTime())
}

// Rebuild truncates the index table and repopulates it from entries.
func (i *Index) Rebuild(ctx context.Context, entries []models.NarrationEntry) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM narration"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO narration (t, text, creatures) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Timestamp, e.Text, joinCreatures(e.CreaturesMentioned)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Append inserts a single new entry without a full rebuild.
func (i *Index) Append(ctx context.Context, e models.NarrationEntry) error {
	_, err := i.db.ExecContext(ctx, "INSERT INTO narration (t, text, creatures) VALUES (?, ?, ?)",
		e.Timestamp, e.Text, joinCreatures(e.CreaturesMentioned))
	return err
}

// Search performs a substring/keyword LIKE search over narration text,
// newest first, bounded by limit (the `search_narration` narrator tool,
// spec.md §4.10).
func (i *Index) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := i.db.QueryContext(ctx,
		"SELECT t, text FROM narration WHERE text LIKE ? ORDER BY id DESC LIMIT ?",
		"%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t, text string
		if err := rows.Scan(&t, &text); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("[%s] %s", t, text))
	}
	return out, rows.Err()
}

func joinCreatures(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}
