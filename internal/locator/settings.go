package locator

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	DefaultNearestSearchMaxKm = 50.0
	DefaultSnapMaxM           = 250.0

	// kmPerDegree converts a search radius into a degree box. Longitude is not
	// corrected for latitude; exact ranking happens afterwards.
	kmPerDegree = 111.0

	maxPlanOptions = 10
)

// Settings are the map tunables read from app_settings.
type Settings struct {
	NearestSearchMaxKm        float64 `yaml:"nearest_search_max_km" json:"nearest_search_max_km"`
	SnapMaxM                  float64 `yaml:"snap_max_m" json:"snap_max_m"`
	AllowStraightlineFallback bool    `yaml:"allow_straightline_fallback" json:"allow_straightline_fallback"`
}

func DefaultSettings() Settings {
	return Settings{
		NearestSearchMaxKm: DefaultNearestSearchMaxKm,
		SnapMaxM:           DefaultSnapMaxM,
	}
}

// ResolveRadius applies the radius rules: absent means the configured maximum,
// larger values are clamped to it, and non-positive values are rejected.
func (s Settings) ResolveRadius(radiusKm *float64) (float64, error) {
	if radiusKm == nil {
		return s.NearestSearchMaxKm, nil
	}
	r := *radiusKm
	if !(r > 0) {
		return 0, ErrInvalidRadius
	}
	if r > s.NearestSearchMaxKm {
		return s.NearestSearchMaxKm, nil
	}
	return r, nil
}

func (s Settings) sanitize() Settings {
	d := DefaultSettings()
	if !(s.NearestSearchMaxKm > 0) {
		s.NearestSearchMaxKm = d.NearestSearchMaxKm
	}
	if !(s.SnapMaxM > 0) {
		s.SnapMaxM = d.SnapMaxM
	}
	return s
}

// loadSettings overlays stored values on the service defaults. Unparseable
// values are logged and ignored.
func (s *Service) loadSettings(ctx context.Context) (Settings, error) {
	out := s.defaults
	row, err := s.store.GetMapSettings(ctx)
	if err != nil {
		return Settings{}, err
	}

	if v, ok := parsePositive(s.log, "map_nearest_search_max_km", row.NearestSearchMaxKm); ok {
		out.NearestSearchMaxKm = v
	}
	if v, ok := parsePositive(s.log, "map_snap_max_m", row.SnapMaxM); ok {
		out.SnapMaxM = v
	}
	if row.AllowStraightlineFallback != nil {
		if b, ok := parseFlag(*row.AllowStraightlineFallback); ok {
			out.AllowStraightlineFallback = b
		} else {
			s.log.Warn().Str("key", "map_allow_straightline_fallback").Str("value", *row.AllowStraightlineFallback).Msg("ignoring invalid setting")
		}
	}
	return out.sanitize(), nil
}

func parsePositive(log zerolog.Logger, key string, raw *string) (float64, bool) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil || !(v > 0) {
		log.Warn().Str("key", key).Str("value", *raw).Msg("ignoring invalid setting")
		return 0, false
	}
	return v, true
}

func parseFlag(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "on":
		return true, true
	case "0", "f", "false", "no", "off", "":
		return false, true
	}
	return false, false
}
