package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

const (
	LevelsDir    = "levels"
	SettingsFile = "settings.yaml"
)

var _ service.ConfigManager = (*Manager)(nil)

// Manager loads levels and operator settings from a config directory:
//
//	<dir>/settings.yaml
//	<dir>/levels/<id>.yaml
type Manager struct {
	configDir string
	levels    map[string]engine.Level
	settings  engine.Settings
	// runtime webhook overrides from the environment, never written back
	webhookURL    string
	webhookSecret string
	mu            sync.RWMutex
}

// NewManager creates a configuration manager, creating the directory layout if needed.
// When no level files exist the built-in levels are served.
func NewManager(configDir string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Join(configDir, LevelsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configDir: configDir,
		levels:    make(map[string]engine.Level),
	}
	if err := m.loadSettings(); err != nil {
		return nil, err
	}
	if err := m.loadLevels(); err != nil {
		return nil, err
	}
	if len(m.levels) == 0 {
		for _, l := range engine.DefaultLevels(m.settings) {
			m.levels[l.ID] = l
		}
		log.Info().Int("levels", len(m.levels)).Msg("no level files found, using built-in levels")
	}
	return m, nil
}

// LoadLevelFile reads one YAML or JSON level file. Fields missing from the
// file take their values from settings.
func LoadLevelFile(path string, settings engine.Settings) (*engine.Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read level file: %w", err)
	}

	level := engine.NewLevel(settings)
	if err := yaml.Unmarshal(data, &level); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", engine.ErrInvalidConfiguration, filepath.Base(path), err)
	}
	if level.ID == "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		level.ID = slug.Make(base)
	}
	if err := engine.ValidateLevel(&level); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &level, nil
}

// Level returns a level by id
func (m *Manager) Level(id string) (*engine.Level, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.levels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrLevelNotFound, id)
	}
	l.Values = append([]string(nil), l.Values...)
	return &l, nil
}

// Levels returns every level ordered by size, then id
func (m *Manager) Levels() []engine.Level {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.Level, 0, len(m.levels))
	for _, l := range m.levels {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pairs != out[j].Pairs {
			return out[i].Pairs < out[j].Pairs
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SaveLevel validates and writes a level. A missing id is derived from the name.
func (m *Manager) SaveLevel(level engine.Level) (*engine.Level, error) {
	if level.ID == "" {
		level.ID = slug.Make(level.Name)
	}
	if !slug.IsSlug(level.ID) {
		return nil, fmt.Errorf("%w: level id %q must be lowercase letters, digits and dashes", engine.ErrInvalidConfiguration, level.ID)
	}
	if err := engine.ValidateLevel(&level); err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(&level)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal level: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.WriteFile(m.levelPath(level.ID), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write level file: %w", err)
	}
	m.levels[level.ID] = level
	return &level, nil
}

// DeleteLevel removes a level and its file
func (m *Manager) DeleteLevel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.levels[id]; !ok {
		return fmt.Errorf("%w: %q", engine.ErrLevelNotFound, id)
	}
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(m.configDir, LevelsDir, id+ext)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove level file: %w", err)
		}
	}
	delete(m.levels, id)
	return nil
}

// Settings returns the effective settings including environment overrides
func (m *Manager) Settings() engine.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.effectiveLocked()
}

// UpdateSettings validates and persists settings
func (m *Manager) UpdateSettings(s engine.Settings) (engine.Settings, error) {
	if err := engine.ValidateSettings(&s); err != nil {
		return engine.Settings{}, err
	}
	data, err := yaml.Marshal(&s)
	if err != nil {
		return engine.Settings{}, fmt.Errorf("failed to marshal settings: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.WriteFile(filepath.Join(m.configDir, SettingsFile), data, 0600); err != nil {
		return engine.Settings{}, fmt.Errorf("failed to write settings: %w", err)
	}
	m.settings = s
	// an explicit update wins over the startup environment
	m.webhookURL, m.webhookSecret = "", ""
	return m.effectiveLocked(), nil
}

// OverrideWebhook sets the webhook target for this process without writing it to disk
func (m *Manager) OverrideWebhook(url, secret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhookURL = url
	m.webhookSecret = secret
}

// WebhookEndpoint returns the current delivery target
func (m *Manager) WebhookEndpoint() (string, string) {
	s := m.Settings()
	return s.WebhookURL, s.WebhookSecret
}

func (m *Manager) effectiveLocked() engine.Settings {
	s := m.settings
	s.Streak.Tiers = append([]engine.StreakTier(nil), s.Streak.Tiers...)
	if m.webhookURL != "" {
		s.WebhookURL = m.webhookURL
	}
	if m.webhookSecret != "" {
		s.WebhookSecret = m.webhookSecret
	}
	return s
}

func (m *Manager) loadSettings() error {
	s, err := LoadSettingsFile(filepath.Join(m.configDir, SettingsFile))
	if err != nil {
		return err
	}
	m.settings = s
	return nil
}

// LoadSettingsFile reads settings overlaid on the defaults. A missing file yields the defaults.
func LoadSettingsFile(path string) (engine.Settings, error) {
	s := engine.DefaultSettings()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: %s: %v", engine.ErrInvalidConfiguration, filepath.Base(path), err)
	}
	if err := engine.ValidateSettings(&s); err != nil {
		return s, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// LevelFiles lists the level files in dir in name order
func LevelFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read levels directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml" && ext != ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func (m *Manager) loadLevels() error {
	files, err := LevelFiles(filepath.Join(m.configDir, LevelsDir))
	if err != nil {
		return err
	}
	for _, file := range files {
		level, err := LoadLevelFile(file, m.settings)
		if err != nil {
			return err
		}
		if _, dup := m.levels[level.ID]; dup {
			return fmt.Errorf("%w: duplicate level id %q", engine.ErrInvalidConfiguration, level.ID)
		}
		m.levels[level.ID] = *level
	}
	return nil
}

func (m *Manager) levelPath(id string) string {
	return filepath.Join(m.configDir, LevelsDir, id+".yaml")
}
