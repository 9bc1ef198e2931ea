package healthcare

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dshills/automed/conversation"
	"gopkg.in/yaml.v3"
)

// TeamFile is the YAML layout of a custom team:
//
//	round_limit: 6
//	personas:
//	  - name: Medical_Advisor
//	    instructions: |
//	      You are a medical advisor...
//	    temperature: 0.3
//	    max_turns: 2
type TeamFile struct {
	RoundLimit int           `yaml:"round_limit"`
	Personas   []PersonaSpec `yaml:"personas"`
}

// PersonaSpec is one persona entry of a TeamFile.
type PersonaSpec struct {
	Name         string  `yaml:"name"`
	Instructions string  `yaml:"instructions"`
	Temperature  float64 `yaml:"temperature"`
	MaxTurns     int     `yaml:"max_turns"`
}

// Team is a parsed team file.
type Team struct {
	Personas []conversation.Persona
	// RoundLimit is zero when the file sets none.
	RoundLimit int
}

// LoadTeam parses a YAML team file. Unknown fields are rejected. Errors wrap
// conversation.ErrInvalidConfiguration.
func LoadTeam(r io.Reader) (Team, error) {
	var file TeamFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return Team{}, fmt.Errorf("%w: team file is empty", conversation.ErrInvalidConfiguration)
		}
		return Team{}, fmt.Errorf("%w: parse team file: %v", conversation.ErrInvalidConfiguration, err)
	}

	if len(file.Personas) == 0 {
		return Team{}, fmt.Errorf("%w: team file lists no personas", conversation.ErrInvalidConfiguration)
	}
	if file.RoundLimit < 0 {
		return Team{}, fmt.Errorf("%w: team round limit %d is negative", conversation.ErrInvalidConfiguration, file.RoundLimit)
	}

	team := Team{
		Personas:   make([]conversation.Persona, 0, len(file.Personas)),
		RoundLimit: file.RoundLimit,
	}
	seen := make(map[string]bool, len(file.Personas))
	for i, spec := range file.Personas {
		p, err := conversation.NewPersona(spec.Name, spec.Instructions, conversation.Style{
			Temperature: spec.Temperature,
			MaxTurns:    spec.MaxTurns,
		})
		if err != nil {
			return Team{}, fmt.Errorf("persona %d: %w", i, err)
		}
		if seen[p.Name()] {
			return Team{}, fmt.Errorf("%w: duplicate persona %q", conversation.ErrInvalidConfiguration, p.Name())
		}
		seen[p.Name()] = true
		team.Personas = append(team.Personas, p)
	}

	return team, nil
}

// RoundLimitOr returns the team's round limit, or fallback when the file set
// none. A non-positive fallback means DefaultRoundLimit.
func (t Team) RoundLimitOr(fallback int) int {
	switch {
	case t.RoundLimit > 0:
		return t.RoundLimit
	case fallback > 0:
		return fallback
	default:
		return DefaultRoundLimit
	}
}

// LoadTeamFile reads and parses the team file at path.
func LoadTeamFile(path string) (Team, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return Team{}, fmt.Errorf("open team file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return LoadTeam(f)
}
