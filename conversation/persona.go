package conversation

import (
	"fmt"
	"strings"
)

// InitiatorName is the reserved speaker name of every session's opening
// message. No persona may use it.
const InitiatorName = "initiator"

// Style holds the model parameters of a persona.
type Style struct {
	// Temperature is passed to the provider. Must be within [0, 2].
	Temperature float64

	// MaxTurns caps how many messages the persona contributes to one
	// session. Zero means unlimited. Once reached, the persona's rounds are
	// skipped without calling the provider.
	MaxTurns int
}

// Persona is a named role with fixed instructions. Personas are immutable
// values and may be shared between sessions.
type Persona struct {
	name         string
	instructions string
	style        Style
}

// NewPersona validates and builds a Persona. Errors wrap ErrInvalidConfiguration.
func NewPersona(name, instructions string, style Style) (Persona, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return Persona{}, fmt.Errorf("%w: persona name is empty", ErrInvalidConfiguration)
	case strings.EqualFold(name, InitiatorName):
		return Persona{}, fmt.Errorf("%w: persona name %q is reserved", ErrInvalidConfiguration, InitiatorName)
	case style.Temperature < 0 || style.Temperature > 2:
		return Persona{}, fmt.Errorf("%w: persona %s: temperature %.2f outside [0, 2]", ErrInvalidConfiguration, name, style.Temperature)
	case style.MaxTurns < 0:
		return Persona{}, fmt.Errorf("%w: persona %s: max turns %d is negative", ErrInvalidConfiguration, name, style.MaxTurns)
	}

	return Persona{
		name:         name,
		instructions: instructions,
		style:        style,
	}, nil
}

// MustPersona is like NewPersona but panics on invalid input. Intended for
// package-level persona definitions.
func MustPersona(name, instructions string, style Style) Persona {
	p, err := NewPersona(name, instructions, style)
	if err != nil {
		panic(err)
	}
	return p
}

// Name returns the persona's unique name.
func (p Persona) Name() string { return p.name }

// Instructions returns the persona's system instructions.
func (p Persona) Instructions() string { return p.instructions }

// Style returns the persona's model parameters.
func (p Persona) Style() Style { return p.style }

// Temperature is shorthand for Style().Temperature.
func (p Persona) Temperature() float64 { return p.style.Temperature }
