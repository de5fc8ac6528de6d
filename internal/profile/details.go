package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/protocol"
)

// Details is a decoded profile fragment. Fields keeps everything the client
// sent; Seasons is the raw seasons value and SeasonStats its typed view.
type Details struct {
	Identity    string
	Fields      map[string]any
	Seasons     any
	SeasonStats []domain.Season
	HasSeasons  bool
}

// ParseDetails decodes payload.details from UpdateProfileData and
// UpdateProfileDataWithToonStats.
func ParseDetails(env protocol.Envelope) (Details, error) {
	var p protocol.ProfilePayload
	if err := env.Unmarshal(&p); err != nil {
		return Details{}, err
	}
	if len(p.Details) == 0 {
		return Details{}, fmt.Errorf("%s: missing details", env.Kind)
	}

	var fields map[string]any
	if err := json.Unmarshal(p.Details, &fields); err != nil {
		return Details{}, fmt.Errorf("failed to decode %s details: %w", env.Kind, err)
	}
	if fields == nil {
		return Details{}, fmt.Errorf("%s: missing details", env.Kind)
	}

	d := Details{Fields: fields}
	if tag, ok := fields["battle_tag_full"].(string); ok {
		d.Identity = strings.TrimSpace(tag)
	}

	if seasons, ok := fields["seasons"]; ok && seasons != nil {
		d.HasSeasons = true
		d.Seasons = seasons

		var typed struct {
			Seasons []domain.Season `json:"seasons"`
		}
		// an unexpected season shape leaves the typed view empty
		if err := json.Unmarshal(p.Details, &typed); err == nil {
			d.SeasonStats = typed.Seasons
		}
	}

	return d, nil
}

// HasIdentity reports whether the fragment names a usable identity.
func (d Details) HasIdentity() bool {
	return d.Identity != "" && !strings.EqualFold(d.Identity, "unknown")
}
