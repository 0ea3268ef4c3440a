package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"kimland-sync/internal/types"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// ReadConfig reads a JSON5 file and merges <name>.local.<ext> over it when present.
// It returns os.ErrNotExist when neither file exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	allNotFound := true

	prefix, ext := splitExt(filepath.Base(name))
	localPath := filepath.Join(filepath.Dir(name), fmt.Sprintf("%s.local.%s", prefix, ext))

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(defaultFile) > 0 {
		if err := json5.Unmarshal(defaultFile, &out); err != nil {
			return out, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		allNotFound = false
	}

	localFile, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localFile) > 0 {
		var override T
		if err := json5.Unmarshal(localFile, &override); err != nil {
			return out, fmt.Errorf("failed to parse %s: %w", localPath, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		allNotFound = false
	}

	if allNotFound {
		return out, os.ErrNotExist
	}
	return out, nil
}

// FileConfig is the on-disk shape of the configuration. Durations are Go duration strings.
type FileConfig struct {
	BaseURL             string `json:"base_url"`
	LoginPagePath       string `json:"login_page_path"`
	LoginPostPath       string `json:"login_post_path"`
	IndexPath           string `json:"index_path"`
	LogoutPath          string `json:"logout_path"`
	SessionCookieName   string `json:"session_cookie_name"`
	VendorMarker        string `json:"vendor_marker"`
	RequestDelay        string `json:"request_delay"`
	MaxRetries          *int   `json:"max_retries"`
	Timeout             string `json:"timeout"`
	UseHeadlessBrowser  *bool  `json:"use_headless_browser"`
	UserAgent           string `json:"user_agent"`
	BatchItemDelay      string `json:"batch_item_delay"`
	AlternateQueryDelay string `json:"alternate_query_delay"`
	MaxAlternateQueries *int   `json:"max_alternate_queries"`
	MinPageLength       *int   `json:"min_page_length"`
	LargePageLength     *int   `json:"large_page_length"`
}

// LoadConfig layers the defaults, an optional JSON5 file and KIMLAND_* environment variables
func LoadConfig(path string) (*types.Config, error) {
	config := types.DefaultConfig()

	if path != "" {
		file, err := ReadConfig[FileConfig](path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := file.apply(config); err != nil {
				return nil, fmt.Errorf("invalid config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func (f FileConfig) apply(config *types.Config) error {
	override := types.Config{
		BaseURL:           f.BaseURL,
		LoginPagePath:     f.LoginPagePath,
		LoginPostPath:     f.LoginPostPath,
		IndexPath:         f.IndexPath,
		LogoutPath:        f.LogoutPath,
		SessionCookieName: f.SessionCookieName,
		VendorMarker:      f.VendorMarker,
		UserAgent:         f.UserAgent,
	}

	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{f.RequestDelay, &override.RequestDelay},
		{f.Timeout, &override.Timeout},
		{f.BatchItemDelay, &override.BatchItemDelay},
		{f.AlternateQueryDelay, &override.AlternateQueryDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return err
		}
		*d.dst = parsed
	}

	if err := mergo.Merge(config, override, mergo.WithOverride); err != nil {
		return err
	}

	// pointer fields so that an explicit zero or false in the file still applies
	if f.MaxRetries != nil {
		config.MaxRetries = *f.MaxRetries
	}
	if f.UseHeadlessBrowser != nil {
		config.UseHeadlessBrowser = *f.UseHeadlessBrowser
	}
	if f.MaxAlternateQueries != nil {
		config.MaxAlternateQueries = *f.MaxAlternateQueries
	}
	if f.MinPageLength != nil {
		config.MinPageLength = *f.MinPageLength
	}
	if f.LargePageLength != nil {
		config.LargePageLength = *f.LargePageLength
	}
	return nil
}

func applyEnv(config *types.Config) error {
	if v := os.Getenv("KIMLAND_BASE_URL"); v != "" {
		config.BaseURL = v
	}
	if v := os.Getenv("KIMLAND_BATCH_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid KIMLAND_BATCH_DELAY: %w", err)
		}
		config.BatchItemDelay = d
	}
	if v := os.Getenv("KIMLAND_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid KIMLAND_HEADLESS: %w", err)
		}
		config.UseHeadlessBrowser = b
	}
	return nil
}

// CredentialsFromEnv reads the remote login from KIMLAND_* variables
func CredentialsFromEnv() types.Credentials {
	return types.Credentials{
		LoginID:  os.Getenv("KIMLAND_LOGIN_ID"),
		Username: os.Getenv("KIMLAND_USERNAME"),
		Secret:   os.Getenv("KIMLAND_PASSWORD"),
	}
}
