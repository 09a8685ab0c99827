package services

import (
	"strings"

	"github.com/tbourn/go-agenda-agent/internal/intent"
)

// Office is one clinic location offered during booking.
type Office struct {
	Name     string
	Aliases  []string
	Location string
}

// DefaultOffices is the built-in gazetteer.
func DefaultOffices() []Office {
	return []Office{
		{Name: "Zambrano", Aliases: []string{"san pedro", "valle"}, Location: "Consultorio Zambrano, Av. Ricardo Margáin Zozaya 575, San Pedro Garza García, N.L."},
		{Name: "Centro", Aliases: []string{"monterrey centro", "downtown"}, Location: "Consultorio Centro, Av. Constitución 1500, Centro, Monterrey, N.L."},
		{Name: "Cumbres", Aliases: []string{"cumbres elite"}, Location: "Consultorio Cumbres, Av. Paseo de los Leones 3000, Cumbres, Monterrey, N.L."},
	}
}

// Gazetteer matches free text against office names and aliases.
type Gazetteer struct {
	offices []Office
}

// NewGazetteer returns a Gazetteer over offices, or DefaultOffices when empty.
func NewGazetteer(offices []Office) *Gazetteer {
	if len(offices) == 0 {
		offices = DefaultOffices()
	}
	return &Gazetteer{offices: append([]Office(nil), offices...)}
}

// Match returns the first office whose normalized name or alias occurs in
// text. Matching is accent- and case-insensitive.
func (g *Gazetteer) Match(text string) (Office, bool) {
	clean := intent.Normalize(text)
	if clean == "" {
		return Office{}, false
	}
	for _, o := range g.offices {
		for _, needle := range append([]string{o.Name}, o.Aliases...) {
			if n := intent.Normalize(needle); n != "" && strings.Contains(clean, n) {
				return o, true
			}
		}
	}
	return Office{}, false
}

// Names lists office names in gazetteer order.
func (g *Gazetteer) Names() []string {
	out := make([]string, 0, len(g.offices))
	for _, o := range g.offices {
		out = append(out, o.Name)
	}
	return out
}
