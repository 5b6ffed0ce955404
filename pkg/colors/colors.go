// Package colors mixes region colors into zone colors and picks distinct
// colors for neighbouring regions.
//
// Colors travel as six-digit hex strings without a leading hash, the way
// they appear in zone tables. Channels are capped at 254 on output because
// some GIS software treats a full 255 channel as transparent.
package colors

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// MaxValue is the largest channel value written by [Hex].
const MaxValue = 254

// MinGrayLevel is the value floor of hue mixers when the membership sum is
// close to zero.
const MinGrayLevel = 0.25

const weightTolerance = 1e-5

var (
	// ErrInvalidColor is returned for hex codes that cannot be parsed.
	ErrInvalidColor = errors.New("invalid color code")

	// ErrOverweight is returned when share weights sum to more than 1.
	ErrOverweight = errors.New("cannot mix over 1")

	// ErrUnknownMixer is returned by [Lookup] for an unregistered name.
	ErrUnknownMixer = errors.New("unknown color mixer")
)

// Share is one region's contribution to a zone color.
type Share struct {
	Color  string
	Weight float64
}

// Mixer combines weighted colors into one.
type Mixer func(shares []Share) (colorful.Color, error)

// Mixers maps configuration names to mixers.
var Mixers = map[string]Mixer{
	"additive":    MixAdditive,
	"subtractive": MixSubtractive,
	"maxhue":      MixMaxHue,
	"avghue":      MixAvgHue,
}

// DefaultMixer is used when a coloring element names none.
const DefaultMixer = "additive"

// Lookup returns the mixer registered under name.
func Lookup(name string) (Mixer, error) {
	if name == "" {
		name = DefaultMixer
	}
	mx, ok := Mixers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (must be one of: %s)", ErrUnknownMixer, name, strings.Join(MixerNames(), ", "))
	}
	return mx, nil
}

// MixerNames returns the registered mixer names in sorted order.
func MixerNames() []string {
	names := make([]string, 0, len(Mixers))
	for n := range Mixers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Parse decodes a hex code with or without a leading hash. An empty code
// is black.
func Parse(code string) (colorful.Color, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return colorful.Color{}, nil
	}
	if !strings.HasPrefix(code, "#") {
		code = "#" + code
	}
	c, err := colorful.Hex(code)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, strings.TrimPrefix(code, "#"))
	}
	return c, nil
}

// Hex encodes c as six lowercase hex digits with every channel capped at
// [MaxValue].
func Hex(c colorful.Color) string {
	ch := func(v float64) int {
		n := int(math.Max(0, v) * 255)
		return min(n, MaxValue)
	}
	return fmt.Sprintf("%02x%02x%02x", ch(c.R), ch(c.G), ch(c.B))
}

// Mix resolves the named mixer, mixes the shares and returns the hex code.
func Mix(name string, shares []Share) (string, error) {
	mx, err := Lookup(name)
	if err != nil {
		return "", err
	}
	c, err := mx(shares)
	if err != nil {
		return "", err
	}
	return Hex(c), nil
}

func totalWeight(shares []Share) (float64, error) {
	var sum float64
	for _, s := range shares {
		sum += s.Weight
	}
	if sum-1 > weightTolerance {
		return sum, fmt.Errorf("%w: got %g", ErrOverweight, sum)
	}
	return sum, nil
}

// MixAdditive sums the weighted channels. Weights below 1 darken the result.
func MixAdditive(shares []Share) (colorful.Color, error) {
	if _, err := totalWeight(shares); err != nil {
		return colorful.Color{}, err
	}
	var out colorful.Color
	for _, s := range shares {
		c, err := Parse(s.Color)
		if err != nil {
			return colorful.Color{}, err
		}
		out.R += c.R * s.Weight
		out.G += c.G * s.Weight
		out.B += c.B * s.Weight
	}
	return out, nil
}

func invert(c colorful.Color) colorful.Color {
	return colorful.Color{R: 1 - c.R, G: 1 - c.G, B: 1 - c.B}
}

// MixSubtractive mixes like paint: weights below 1 lighten the result.
func MixSubtractive(shares []Share) (colorful.Color, error) {
	inverted := make([]Share, len(shares))
	for i, s := range shares {
		c, err := Parse(s.Color)
		if err != nil {
			return colorful.Color{}, err
		}
		inverted[i] = Share{Color: invert(c).Hex(), Weight: s.Weight}
	}
	mixed, err := MixAdditive(inverted)
	if err != nil {
		return colorful.Color{}, err
	}
	return invert(mixed), nil
}

// MixMaxHue takes the hue of the heaviest share; saturation shows how
// dominant it is and value how complete the membership is.
func MixMaxHue(shares []Share) (colorful.Color, error) {
	if len(shares) == 0 {
		return colorful.Color{}, nil
	}
	heaviest := shares[0]
	for _, s := range shares[1:] {
		if s.Weight > heaviest.Weight {
			heaviest = s
		}
	}
	c, err := Parse(heaviest.Color)
	if err != nil {
		return colorful.Color{}, err
	}
	h, _, _ := c.Hsv()
	return mixHue(h, shares)
}

// MixAvgHue takes the hue of the additive mix.
func MixAvgHue(shares []Share) (colorful.Color, error) {
	if len(shares) == 0 {
		return colorful.Color{}, nil
	}
	mixed, err := MixAdditive(shares)
	if err != nil {
		return colorful.Color{}, err
	}
	h, _, _ := mixed.Hsv()
	return mixHue(h, shares)
}

func mixHue(hue float64, shares []Share) (colorful.Color, error) {
	sum, err := totalWeight(shares)
	if err != nil {
		return colorful.Color{}, err
	}
	var top float64
	for _, s := range shares {
		top = math.Max(top, s.Weight)
	}
	if top < weightTolerance {
		return colorful.Color{R: MinGrayLevel, G: MinGrayLevel, B: MinGrayLevel}, nil
	}
	value := MinGrayLevel + (1-MinGrayLevel)*sum
	return colorful.Hsv(hue, top/sum, value), nil
}
