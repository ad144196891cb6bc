/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"portraitdeck/internal/history"
	"portraitdeck/internal/imaging"
	applog "portraitdeck/internal/log"
	"portraitdeck/internal/slot"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	MaxUploadMB    int    `yaml:"max_upload_mb"`
	Workers        int    `yaml:"workers"` // parallel image decodes per upload
}

type SlotConfig struct {
	Kind          string `yaml:"kind"` // memory | file | sqlite
	Path          string `yaml:"path"`
	QuotaBytes    int    `yaml:"quota_bytes"`
	KeepBackups   int    `yaml:"keep_backups"`
	KeepRevisions int    `yaml:"keep_revisions"`
	Watch         bool   `yaml:"watch"`
}

type ImagesConfig struct {
	MaxWidth      int `yaml:"max_width"`
	MaxHeight     int `yaml:"max_height"`
	MaxPayloadLen int `yaml:"max_payload_len"`
	JPEGQuality   int `yaml:"jpeg_quality"`
	MaxPixels     int `yaml:"max_pixels"`
}

type HistoryConfig struct {
	MaxBytes   int `yaml:"max_bytes"`
	MaxDepth   int `yaml:"max_depth"`
	CoalesceMs int `yaml:"coalesce_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Server        ServerConfig  `yaml:"server"`
	Slot          SlotConfig    `yaml:"slot"`
	Images        ImagesConfig  `yaml:"images"`
	History       HistoryConfig `yaml:"history"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults. The slot lives next to the
// config file so that restarts keep the deck.
func Defaults() AppConfig {
	slotDir := "portraitdeck-slot"
	if p, err := ConfigPath(); err == nil {
		slotDir = filepath.Join(filepath.Dir(p), "slot")
	}
	return AppConfig{
		ConfigVersion: 1,
		Server:        ServerConfig{Addr: "127.0.0.1:8765", ReadTimeoutMs: 0, WriteTimeoutMs: 0, MaxUploadMB: 64, Workers: 4},
		Slot:          SlotConfig{Kind: slot.KindFile, Path: slotDir, QuotaBytes: 5 << 20},
		Images: ImagesConfig{
			MaxWidth:      imaging.DefaultMaxWidth,
			MaxHeight:     imaging.DefaultMaxHeight,
			MaxPayloadLen: imaging.DefaultMaxPayloadLen,
			JPEGQuality:   imaging.DefaultJPEGQuality,
			MaxPixels:     imaging.DefaultMaxPixels,
		},
		History: HistoryConfig{MaxBytes: 64 << 20, MaxDepth: 100, CoalesceMs: 800},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvAddr       = "PSD_ADDR"
	EnvWorkers    = "PSD_WORKERS"
	EnvSlotKind   = "PSD_SLOT_KIND"
	EnvSlotPath   = "PSD_SLOT_PATH"
	EnvSlotQuota  = "PSD_SLOT_QUOTA"
	EnvSlotWatch  = "PSD_SLOT_WATCH"
	EnvMaxPayload = "PSD_MAX_PAYLOAD"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "PSD_LOG_LEVEL"
	EnvLogFormat = "PSD_LOG_FORMAT"
	EnvLogSource = "PSD_LOG_SOURCE"
	EnvLogFile   = "PSD_LOG_FILE"
)

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "PortraitDeck")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "PortraitDeck")
	default: // linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "portraitdeck")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "portraitdeck")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	return LoadFile(path)
}

// LoadFile is Load for an explicit path. A missing file yields the defaults.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			applyEnvOverrides(&cfg)
			return cfg, err
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes cfg to path.
func SaveFile(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return slot.WriteFileAtomic(path, data)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// server
	if strings.TrimSpace(src.Server.Addr) != "" {
		dst.Server.Addr = strings.TrimSpace(src.Server.Addr)
	}
	if src.Server.ReadTimeoutMs != 0 {
		dst.Server.ReadTimeoutMs = src.Server.ReadTimeoutMs
	}
	if src.Server.WriteTimeoutMs != 0 {
		dst.Server.WriteTimeoutMs = src.Server.WriteTimeoutMs
	}
	if src.Server.MaxUploadMB != 0 {
		dst.Server.MaxUploadMB = src.Server.MaxUploadMB
	}
	if src.Server.Workers != 0 {
		dst.Server.Workers = src.Server.Workers
	}
	// slot
	if strings.TrimSpace(src.Slot.Kind) != "" {
		dst.Slot.Kind = strings.ToLower(strings.TrimSpace(src.Slot.Kind))
	}
	if strings.TrimSpace(src.Slot.Path) != "" {
		dst.Slot.Path = strings.TrimSpace(src.Slot.Path)
	}
	if src.Slot.QuotaBytes != 0 {
		dst.Slot.QuotaBytes = src.Slot.QuotaBytes
	}
	if src.Slot.KeepBackups != 0 {
		dst.Slot.KeepBackups = src.Slot.KeepBackups
	}
	if src.Slot.KeepRevisions != 0 {
		dst.Slot.KeepRevisions = src.Slot.KeepRevisions
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.Slot.Watch = src.Slot.Watch
	// images
	if src.Images.MaxWidth != 0 {
		dst.Images.MaxWidth = src.Images.MaxWidth
	}
	if src.Images.MaxHeight != 0 {
		dst.Images.MaxHeight = src.Images.MaxHeight
	}
	if src.Images.MaxPayloadLen != 0 {
		dst.Images.MaxPayloadLen = src.Images.MaxPayloadLen
	}
	if src.Images.JPEGQuality != 0 {
		dst.Images.JPEGQuality = src.Images.JPEGQuality
	}
	if src.Images.MaxPixels != 0 {
		dst.Images.MaxPixels = src.Images.MaxPixels
	}
	// history
	if src.History.MaxBytes != 0 {
		dst.History.MaxBytes = src.History.MaxBytes
	}
	if src.History.MaxDepth != 0 {
		dst.History.MaxDepth = src.History.MaxDepth
	}
	if src.History.CoalesceMs != 0 {
		dst.History.CoalesceMs = src.History.CoalesceMs
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSlotKind)); v != "" {
		cfg.Slot.Kind = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvSlotPath)); v != "" {
		cfg.Slot.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSlotQuota)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Slot.QuotaBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSlotWatch)); v != "" {
		cfg.Slot.Watch = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvMaxPayload)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Images.MaxPayloadLen = n
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env := map[string]string{
		"server.addr":            EnvAddr,
		"server.workers":         EnvWorkers,
		"slot.kind":              EnvSlotKind,
		"slot.path":              EnvSlotPath,
		"slot.quota_bytes":       EnvSlotQuota,
		"slot.watch":             EnvSlotWatch,
		"images.max_payload_len": EnvMaxPayload,
		"logging.level":          EnvLogLevel,
		"logging.format":         EnvLogFormat,
		"logging.source":         EnvLogSource,
		"logging.file":           EnvLogFile,
	}[key]
	if env != "" && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// SlotOptions converts the slot section for slot.Open.
func (c AppConfig) SlotOptions() slot.Options {
	return slot.Options{
		Kind:          c.Slot.Kind,
		Path:          c.Slot.Path,
		Quota:         c.Slot.QuotaBytes,
		KeepBackups:   c.Slot.KeepBackups,
		KeepRevisions: c.Slot.KeepRevisions,
		Watch:         c.Slot.Watch,
	}
}

// Normalizer builds the image normalizer from the images section.
func (c AppConfig) Normalizer() *imaging.Normalizer {
	return &imaging.Normalizer{
		MaxWidth:      c.Images.MaxWidth,
		MaxHeight:     c.Images.MaxHeight,
		MaxPayloadLen: c.Images.MaxPayloadLen,
		JPEGQuality:   c.Images.JPEGQuality,
		MaxPixels:     c.Images.MaxPixels,
	}
}

// HistoryConfig converts the history section.
func (c AppConfig) HistoryConfig() history.Config {
	return history.Config{
		MaxBytes:    c.History.MaxBytes,
		MaxDepth:    c.History.MaxDepth,
		MinInterval: time.Duration(c.History.CoalesceMs) * time.Millisecond,
	}
}

// LogOptions converts the logging section.
func (c AppConfig) LogOptions() applog.Options {
	return applog.Options{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.Source,
		File:      c.Logging.File,
	}
}

// Timeouts returns the HTTP read and write timeouts; zero means none.
func (s ServerConfig) Timeouts() (read, write time.Duration) {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond, time.Duration(s.WriteTimeoutMs) * time.Millisecond
}
