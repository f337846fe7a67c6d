package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/models"
)

var _ Store = (*JSONStore)(nil)

const notificationsActiveKey = "notifications_active"

// JSONStore keeps all guild configs in a single JSON file. Every operation
// re-reads the file and, when it changes something, rewrites it; nothing is
// cached between calls.
type JSONStore struct {
	path   string
	logger logger.Logger

	// mu serialises read-modify-write cycles within this process.
	mu sync.Mutex
}

type JSONParams struct {
	Path   string
	Logger logger.Logger
}

func NewJSONStore(p JSONParams) *JSONStore {
	return &JSONStore{
		path:   p.Path,
		logger: logger.OrNop(p.Logger),
	}
}

func (s *JSONStore) Get(_ context.Context, guildID string) (models.GuildStreamConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return models.GuildStreamConfig{}, false, err
	}

	rec, ok := file[guildID]
	if !ok {
		return models.GuildStreamConfig{}, false, nil
	}
	return rec.toModel(guildID), true, nil
}

func (s *JSONStore) Set(_ context.Context, guildID, categoryID string, setting models.CategorySetting) error {
	if err := validateIDs(guildID, categoryID, setting); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}

	rec, ok := file[guildID]
	if !ok {
		rec = newGuildRecord()
	}
	rec.Categories[categoryID] = setting
	file[guildID] = rec

	s.logger.DebugW("saving category setting",
		"guild_id", guildID,
		"category_id", categoryID,
		"channel_id", setting.ChannelID,
		"role_id", setting.RoleID,
	)
	return s.write(file)
}

func (s *JSONStore) Remove(_ context.Context, guildID, categoryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return false, err
	}

	rec, ok := file[guildID]
	if !ok {
		return false, nil
	}
	if _, ok := rec.Categories[categoryID]; !ok {
		return false, nil
	}

	delete(rec.Categories, categoryID)
	if len(rec.Categories) == 0 {
		delete(file, guildID)
	} else {
		file[guildID] = rec
	}

	if err := s.write(file); err != nil {
		return false, err
	}
	return true, nil
}

func (s *JSONStore) SetNotificationsActive(_ context.Context, guildID string, active bool) error {
	if guildID == "" {
		return errors.New("store: guild id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}

	rec, ok := file[guildID]
	if !ok {
		rec = newGuildRecord()
	}
	rec.NotificationsActive = active
	file[guildID] = rec

	return s.write(file)
}

func (s *JSONStore) ListGuilds(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(file))
	for id := range file {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) read() (map[string]guildRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]guildRecord{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]guildRecord{}, nil
	}

	file := map[string]guildRecord{}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return file, nil
}

// write replaces the file via a temp file and rename so readers never see a
// partially written document.
func (s *JSONStore) write(file map[string]guildRecord) error {
	data, err := json.MarshalIndent(file, "", "    ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// guildRecord is the on-disk shape of one guild: the notifications_active
// flag sits next to the category entries in the same object.
type guildRecord struct {
	NotificationsActive bool
	Categories          map[string]models.CategorySetting
}

type categoryRecord struct {
	RoleID          *json.Number `json:"role_id"`
	StreamChannelID json.Number  `json:"stream_channel_id"`
}

func newGuildRecord() guildRecord {
	return guildRecord{
		NotificationsActive: true,
		Categories:          map[string]models.CategorySetting{},
	}
}

func (r guildRecord) toModel(guildID string) models.GuildStreamConfig {
	cfg := models.GuildStreamConfig{
		GuildID:             guildID,
		NotificationsActive: r.NotificationsActive,
		Categories:          make(map[string]models.CategorySetting, len(r.Categories)),
	}
	for id, setting := range r.Categories {
		cfg.Categories[id] = setting
	}
	return cfg
}

func (r guildRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Categories)+1)
	out[notificationsActiveKey] = r.NotificationsActive
	for id, setting := range r.Categories {
		rec := categoryRecord{StreamChannelID: json.Number(setting.ChannelID)}
		if setting.HasMention() {
			role := json.Number(setting.RoleID)
			rec.RoleID = &role
		}
		out[id] = rec
	}
	return json.Marshal(out)
}

func (r *guildRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = newGuildRecord()
	for key, value := range raw {
		if key == notificationsActiveKey {
			if err := json.Unmarshal(value, &r.NotificationsActive); err != nil {
				return fmt.Errorf("%s: %w", notificationsActiveKey, err)
			}
			continue
		}

		// Anything that is not an object is not a category entry.
		trimmed := bytes.TrimSpace(value)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}

		var rec categoryRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return fmt.Errorf("category %s: %w", key, err)
		}
		setting := models.CategorySetting{ChannelID: rec.StreamChannelID.String()}
		if rec.RoleID != nil {
			setting.RoleID = rec.RoleID.String()
		}
		r.Categories[key] = setting
	}
	return nil
}

func validateIDs(guildID, categoryID string, setting models.CategorySetting) error {
	if guildID == "" {
		return errors.New("store: guild id is required")
	}
	if categoryID == "" {
		return errors.New("store: category id is required")
	}
	if !isSnowflake(setting.ChannelID) {
		return fmt.Errorf("store: invalid channel id %q", setting.ChannelID)
	}
	if setting.HasMention() && !isSnowflake(setting.RoleID) {
		return fmt.Errorf("store: invalid role id %q", setting.RoleID)
	}
	return nil
}

func isSnowflake(id string) bool {
	if id == "" {
		return false
	}
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}
