package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/repository"
	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
	"github.com/spec-kit/orderdesk/pkg/util/fileutil"
)

// Keys the storefront relies on being present in the settings document.
const (
	SettingsHiddenKey    = "h"
	SettingsRenamesKey   = "r"
	SettingsUpdatedAtKey = "updatedAt"
)

// Settings is the storefront configuration document. It is served verbatim.
type Settings map[string]any

// DefaultSettings returns an empty document with the required keys.
func DefaultSettings() Settings {
	return Settings{SettingsHiddenKey: []any{}, SettingsRenamesKey: map[string]any{}}
}

func (s Settings) hiddenCount() int {
	hidden, _ := s[SettingsHiddenKey].([]any)
	return len(hidden)
}

func (s Settings) updatedAt() (time.Time, bool) {
	raw, ok := s[SettingsUpdatedAtKey].(string)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	return ts, err == nil
}

func (s Settings) clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// SettingsService owns the storefront settings: one in-memory copy, persisted
// to the config store and mirrored to a JSON file on every save.
type SettingsService struct {
	mu       sync.RWMutex
	current  Settings
	config   repository.ConfigRepository
	filePath string
	logger   *zap.Logger
	now      func() time.Time
}

// SettingsDependencies bundles collaborators for SettingsService.
type SettingsDependencies struct {
	ConfigRepo repository.ConfigRepository
	FilePath   string
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewSettingsService constructs the service with default settings. Call Load at startup.
func NewSettingsService(deps SettingsDependencies) *SettingsService {
	svc := &SettingsService{
		current:  DefaultSettings(),
		config:   deps.ConfigRepo,
		filePath: deps.FilePath,
		logger:   deps.Logger,
		now:      deps.Clock,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

// Load reconciles the stored copy with the file mirror. The copy with the newer
// updatedAt wins; without timestamps the one hiding more items wins, ties going
// to the store. The winner is written back to whichever side lost.
func (s *SettingsService) Load(ctx context.Context) error {
	stored, err := s.loadStored(ctx)
	if err != nil {
		return err
	}
	mirrored, err := s.loadMirror()
	if err != nil {
		s.logger.Warn("settings mirror unreadable", zap.String("path", s.filePath), zap.Error(err))
	}

	var chosen Settings
	switch {
	case stored == nil && mirrored == nil:
		chosen = DefaultSettings()
	case stored == nil:
		chosen = mirrored
		s.logger.Info("settings loaded from file", zap.Int("hidden", chosen.hiddenCount()))
		if err := s.persistStored(ctx, chosen); err != nil {
			return err
		}
	case mirrored == nil:
		chosen = stored
		s.logger.Info("settings loaded from store", zap.Int("hidden", chosen.hiddenCount()))
		s.persistMirror(chosen)
	case preferMirror(stored, mirrored):
		chosen = mirrored
		s.logger.Info("settings file newer than store",
			zap.Int("file_hidden", mirrored.hiddenCount()), zap.Int("store_hidden", stored.hiddenCount()))
		if err := s.persistStored(ctx, chosen); err != nil {
			return err
		}
	default:
		chosen = stored
		s.logger.Info("settings loaded from store", zap.Int("hidden", chosen.hiddenCount()))
		s.persistMirror(chosen)
	}

	s.mu.Lock()
	s.current = withRequiredKeys(chosen)
	s.mu.Unlock()
	return nil
}

func preferMirror(stored, mirrored Settings) bool {
	storedAt, storedOK := stored.updatedAt()
	mirroredAt, mirroredOK := mirrored.updatedAt()
	switch {
	case storedOK && mirroredOK:
		return mirroredAt.After(storedAt)
	case mirroredOK != storedOK:
		return mirroredOK
	default:
		return mirrored.hiddenCount() > stored.hiddenCount()
	}
}

// Get returns a copy of the current settings.
func (s *SettingsService) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Save replaces the settings, filling in missing required keys and stamping updatedAt.
func (s *SettingsService) Save(ctx context.Context, settings Settings) (Settings, error) {
	if settings == nil {
		return nil, apperrors.NewInvalidInput("invalid settings", nil)
	}
	next := withRequiredKeys(settings.clone())
	next[SettingsUpdatedAtKey] = s.now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistStored(ctx, next); err != nil {
		return nil, err
	}
	s.persistMirror(next)
	s.current = next
	s.logger.Info("settings saved", zap.Int("hidden", next.hiddenCount()))
	return next.clone(), nil
}

func withRequiredKeys(settings Settings) Settings {
	if _, ok := settings[SettingsHiddenKey]; !ok {
		settings[SettingsHiddenKey] = []any{}
	}
	if _, ok := settings[SettingsRenamesKey]; !ok {
		settings[SettingsRenamesKey] = map[string]any{}
	}
	return settings
}

func (s *SettingsService) loadStored(ctx context.Context) (Settings, error) {
	raw, ok, err := s.config.Get(ctx, repository.ConfigKeyWebappSettings)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var settings Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		s.logger.Warn("stored settings unreadable", zap.Error(err))
		return nil, nil
	}
	return settings, nil
}

func (s *SettingsService) persistStored(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.config.Set(ctx, repository.ConfigKeyWebappSettings, string(raw)); err != nil {
		return fmt.Errorf("store settings: %w", err)
	}
	return nil
}

func (s *SettingsService) loadMirror() (Settings, error) {
	if s.filePath == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// persistMirror writes the file copy. The store is authoritative, so failures only warn.
func (s *SettingsService) persistMirror(settings Settings) {
	if s.filePath == "" {
		return
	}
	raw, err := json.MarshalIndent(settings, "", "  ")
	if err == nil {
		err = fileutil.WriteAtomic(s.filePath, raw)
	}
	if err != nil {
		s.logger.Warn("could not write settings mirror", zap.String("path", s.filePath), zap.Error(err))
	}
}
