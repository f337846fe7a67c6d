package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/models"
)

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS guilds (
	guild_id             TEXT PRIMARY KEY,
	notifications_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS guild_categories (
	guild_id    TEXT NOT NULL REFERENCES guilds(guild_id) ON DELETE CASCADE,
	category_id TEXT NOT NULL,
	channel_id  TEXT NOT NULL,
	role_id     TEXT,
	PRIMARY KEY (guild_id, category_id)
);
`

// SQLiteStore keeps guild configs in a SQLite database file.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	logger logger.Logger
}

type SQLiteParams struct {
	Path   string
	Logger logger.Logger
}

func NewSQLiteStore(p SQLiteParams) *SQLiteStore {
	return &SQLiteStore{
		path:   p.Path,
		logger: logger.OrNop(p.Logger),
	}
}

func sqliteFileDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
}

func (s *SQLiteStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	if s.path == "" {
		return errors.New("store: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	database, err := sql.Open("sqlite3", sqliteFileDSN(s.path))
	if err != nil {
		return err
	}
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	if err = database.PingContext(ctx); err != nil {
		_ = database.Close()
		return err
	}
	if _, err = database.ExecContext(ctx, schema); err != nil {
		_ = database.Close()
		return fmt.Errorf("apply schema: %w", err)
	}

	s.db = database
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, guildID string) (models.GuildStreamConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return models.GuildStreamConfig{}, false, errors.New("store is not open")
	}

	var active bool
	err := s.db.QueryRowContext(ctx,
		`SELECT notifications_active FROM guilds WHERE guild_id = ?`, guildID,
	).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GuildStreamConfig{}, false, nil
	}
	if err != nil {
		return models.GuildStreamConfig{}, false, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category_id, channel_id, role_id FROM guild_categories WHERE guild_id = ?`, guildID,
	)
	if err != nil {
		return models.GuildStreamConfig{}, false, err
	}
	defer rows.Close()

	cfg := models.GuildStreamConfig{
		GuildID:             guildID,
		NotificationsActive: active,
		Categories:          map[string]models.CategorySetting{},
	}
	for rows.Next() {
		var (
			categoryID string
			channelID  string
			roleID     sql.NullString
		)
		if err := rows.Scan(&categoryID, &channelID, &roleID); err != nil {
			return models.GuildStreamConfig{}, false, err
		}
		cfg.Categories[categoryID] = models.CategorySetting{
			ChannelID: channelID,
			RoleID:    roleID.String,
		}
	}
	if err := rows.Err(); err != nil {
		return models.GuildStreamConfig{}, false, err
	}
	return cfg, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, guildID, categoryID string, setting models.CategorySetting) error {
	if err := validateIDs(guildID, categoryID, setting); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New("store is not open")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO guilds (guild_id, notifications_active) VALUES (?, 1) ON CONFLICT(guild_id) DO NOTHING`,
		guildID,
	); err != nil {
		_ = tx.Rollback()
		return err
	}

	var role sql.NullString
	if setting.HasMention() {
		role = sql.NullString{String: setting.RoleID, Valid: true}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO guild_categories (guild_id, category_id, channel_id, role_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(guild_id, category_id) DO UPDATE SET channel_id = excluded.channel_id, role_id = excluded.role_id`,
		guildID, categoryID, setting.ChannelID, role,
	); err != nil {
		_ = tx.Rollback()
		s.logger.ErrorW("failed to upsert category setting",
			"error", err,
			"guild_id", guildID,
			"category_id", categoryID,
		)
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) Remove(ctx context.Context, guildID, categoryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return false, errors.New("store is not open")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM guild_categories WHERE guild_id = ? AND category_id = ?`, guildID, categoryID,
	)
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	if n == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM guilds WHERE guild_id = ?
		 AND NOT EXISTS (SELECT 1 FROM guild_categories WHERE guild_id = ?)`,
		guildID, guildID,
	); err != nil {
		_ = tx.Rollback()
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) SetNotificationsActive(ctx context.Context, guildID string, active bool) error {
	if guildID == "" {
		return errors.New("store: guild id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New("store is not open")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guilds (guild_id, notifications_active) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET notifications_active = excluded.notifications_active`,
		guildID, active,
	)
	return err
}

func (s *SQLiteStore) ListGuilds(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not open")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT guild_id FROM guilds ORDER BY guild_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
