package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

// Settings are per-user editor preferences.
type Settings struct {
	AutoSave        bool   `json:"autoSave"`
	AutoSaveDelayMS int    `json:"autoSaveDelay"`
	Theme           Theme  `json:"theme"`
	EditorFontSize  int    `json:"editorFontSize"`
	PreviewFontSize int    `json:"previewFontSize"`
	WordWrap        bool   `json:"wordWrap"`
	LineNumbers     bool   `json:"lineNumbers"`
	ViewMode        string `json:"viewMode"`
}

func DefaultSettings() Settings {
	return Settings{
		AutoSave:        true,
		AutoSaveDelayMS: 3000,
		Theme:           ThemeSystem,
		EditorFontSize:  14,
		PreviewFontSize: 16,
		WordWrap:        true,
		LineNumbers:     false,
		ViewMode:        "split",
	}
}

func (s Settings) AutoSaveDelay() time.Duration {
	return time.Duration(s.AutoSaveDelayMS) * time.Millisecond
}

func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.AutoSaveDelayMS, validation.Required, validation.Min(500), validation.Max(60000)),
		validation.Field(&s.Theme, validation.Required, validation.In(ThemeSystem, ThemeLight, ThemeDark)),
		validation.Field(&s.EditorFontSize, validation.Required, validation.Min(8), validation.Max(48)),
		validation.Field(&s.PreviewFontSize, validation.Required, validation.Min(8), validation.Max(48)),
		validation.Field(&s.ViewMode, validation.In("editor", "preview", "split")),
	)
}

// WithDefaults fills zero values left by older stored rows.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.AutoSaveDelayMS == 0 {
		s.AutoSaveDelayMS = d.AutoSaveDelayMS
	}
	if s.Theme == "" {
		s.Theme = d.Theme
	}
	if s.EditorFontSize == 0 {
		s.EditorFontSize = d.EditorFontSize
	}
	if s.PreviewFontSize == 0 {
		s.PreviewFontSize = d.PreviewFontSize
	}
	if s.ViewMode == "" {
		s.ViewMode = d.ViewMode
	}
	return s
}
