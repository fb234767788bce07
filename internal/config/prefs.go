package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// The only durable state: the user's preferred display name.

const prefsFile = "prefs.json"

type prefs struct {
	DisplayName string `json:"displayName"`
}

func prefsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "roomclient", prefsFile), nil
}

func LoadDisplayNamePref() (string, error) {
	path, err := prefsPath()
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var p prefs
	if err := json.Unmarshal(b, &p); err != nil {
		return "", err
	}
	return p.DisplayName, nil
}

// SaveDisplayNamePref is best-effort: a failed write is logged, never
// surfaced to the session.
func SaveDisplayNamePref(name string) {
	path, err := prefsPath()
	if err != nil {
		log.Warn().Err(err).Str("module", "config").Msg("prefs dir unavailable")
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn().Err(err).Str("module", "config").Msg("prefs dir create")
		return
	}
	b, err := json.Marshal(prefs{DisplayName: name})
	if err != nil {
		log.Warn().Err(err).Str("module", "config").Msg("prefs encode")
		return
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		log.Warn().Err(err).Str("module", "config").Msg("prefs write")
	}
}
