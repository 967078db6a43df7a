package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sharetube/officedj/internal/repository/likes"
	_ "modernc.org/sqlite"
)

type repo struct {
	db *sql.DB
}

// Open opens or creates the likes database at path.
func Open(path string) (*repo, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// a single writer avoids SQLITE_BUSY on concurrent toggles
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS songs (
			video_id    TEXT PRIMARY KEY,
			title       TEXT NOT NULL DEFAULT '',
			artist      TEXT NOT NULL DEFAULT '',
			thumbnail   TEXT NOT NULL DEFAULT '',
			total_likes INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS votes (
			video_id   TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (video_id, user_id)
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &repo{db: db}, nil
}

func (r *repo) Close() error {
	return r.db.Close()
}

// Toggle flips the vote of a user on a song and returns the new state.
func (r *repo) Toggle(ctx context.Context, params *likes.ToggleParams) (likes.Likes, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return likes.Likes{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE video_id = ? AND user_id = ?`, params.VideoID, params.UserID)
	if err != nil {
		return likes.Likes{}, fmt.Errorf("delete vote: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return likes.Likes{}, fmt.Errorf("rows affected: %w", err)
	}

	liked := removed == 0
	if liked {
		if _, err := tx.ExecContext(ctx, `INSERT INTO votes (video_id, user_id) VALUES (?, ?)`, params.VideoID, params.UserID); err != nil {
			return likes.Likes{}, fmt.Errorf("insert vote: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO songs (video_id, title, artist, thumbnail, total_likes)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(video_id) DO UPDATE SET
				title = excluded.title,
				artist = excluded.artist,
				thumbnail = excluded.thumbnail,
				total_likes = songs.total_likes + 1
		`, params.VideoID, orUnknown(params.Title), orUnknown(params.Artist), params.Thumbnail); err != nil {
			return likes.Likes{}, fmt.Errorf("upsert song: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE songs SET total_likes = MAX(total_likes - 1, 0) WHERE video_id = ?
		`, params.VideoID); err != nil {
			return likes.Likes{}, fmt.Errorf("decrement likes: %w", err)
		}
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT total_likes FROM songs WHERE video_id = ?`, params.VideoID).Scan(&total); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return likes.Likes{}, fmt.Errorf("read likes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return likes.Likes{}, fmt.Errorf("commit: %w", err)
	}

	return likes.Likes{TotalLikes: total, Liked: liked}, nil
}

// Get returns the like count of a song and whether userId voted for it.
// An empty userId only reads the count.
func (r *repo) Get(ctx context.Context, videoId, userId string) (likes.Likes, error) {
	var res likes.Likes
	err := r.db.QueryRowContext(ctx, `SELECT total_likes FROM songs WHERE video_id = ?`, videoId).Scan(&res.TotalLikes)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return likes.Likes{}, fmt.Errorf("read likes: %w", err)
	}

	if userId == "" {
		return res, nil
	}

	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM votes WHERE video_id = ? AND user_id = ?`, videoId, userId).Scan(&one)
	switch {
	case err == nil:
		res.Liked = true
	case errors.Is(err, sql.ErrNoRows):
	default:
		return likes.Likes{}, fmt.Errorf("read vote: %w", err)
	}

	return res, nil
}

// Top returns the most liked songs.
func (r *repo) Top(ctx context.Context, limit int) ([]likes.Song, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT video_id, title, artist, thumbnail, total_likes
		FROM songs
		WHERE total_likes > 0
		ORDER BY total_likes DESC, video_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top songs: %w", err)
	}
	defer rows.Close()

	songs := make([]likes.Song, 0, limit)
	for rows.Next() {
		var s likes.Song
		if err := rows.Scan(&s.VideoID, &s.Title, &s.Artist, &s.Thumbnail, &s.TotalLikes); err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, s)
	}

	return songs, rows.Err()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
