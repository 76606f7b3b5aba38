package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ProfileEnvPrefix prefixes environment overrides of the import profile.
// ROSTER_EMAIL_DOMAIN sets email_domain and ROSTER_ALIASES__LEAD_NAME sets
// aliases.lead_name.
const ProfileEnvPrefix = "ROSTER_"

// Profile customises how rosters are interpreted.
//
// Example YAML:
//
//	email_domain: ames.edu.eu
//	affirmative: [y, yes, "1", true, active, ja]
//	aliases:
//	  lead_name: [convenor, module leader]
//	  level: [fheq level]
type Profile struct {
	// Aliases adds header spellings per canonical field (module_code,
	// module_name, level, lead_name, in_use).
	Aliases     map[string][]string `koanf:"aliases"`
	Affirmative []string            `koanf:"affirmative"`
	EmailDomain string              `koanf:"email_domain"`
}

// LoadProfile reads the YAML profile at path (optional) and then applies
// ROSTER_ environment overrides.
func LoadProfile(path string) (*Profile, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load profile %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(ProfileEnvPrefix, ".", profileEnvKey), nil); err != nil {
		return nil, fmt.Errorf("load profile overrides: %w", err)
	}

	var p Profile
	if err := k.Unmarshal("", &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.normalize()
	return &p, nil
}

// profileEnvKey maps ROSTER_ALIASES__LEAD_NAME to aliases.lead_name.
func profileEnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, ProfileEnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (p *Profile) normalize() {
	p.EmailDomain = strings.TrimPrefix(strings.TrimSpace(p.EmailDomain), "@")

	words := p.Affirmative[:0]
	for _, w := range p.Affirmative {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	p.Affirmative = words

	aliases := make(map[string][]string, len(p.Aliases))
	for field, list := range p.Aliases {
		field = strings.ToLower(strings.TrimSpace(field))
		for _, a := range list {
			if a = strings.TrimSpace(a); a != "" {
				aliases[field] = append(aliases[field], a)
			}
		}
	}
	p.Aliases = aliases
}
