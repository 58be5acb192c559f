package equalizer

import "fmt"

// BandCount is the number of bands a node's equalizer exposes, from 25Hz
// up to 16kHz.
const BandCount = 15

// Gain bounds accepted by a node. 0.25 means 200%, -0.25 mutes the band.
const (
	MinGain = -0.25
	MaxGain = 1.0
)

// Preset is a named 15-band equalizer curve.
type Preset struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Bands       [BandCount]float64 `json:"bands"`
}

// Validate checks every band gain is within the node's accepted range.
func (p Preset) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("preset name is required")
	}

	for i, gain := range p.Bands {
		if gain < MinGain || gain > MaxGain {
			return fmt.Errorf("band %d gain %v out of range [%v, %v]", i, gain, MinGain, MaxGain)
		}
	}
	return nil
}

// Builtins returns the stock presets every store is seeded with.
func Builtins() []Preset {
	return []Preset{
		{
			Name:        "Default",
			Description: "Default (no equalizer)",
		},
		{
			Name: "Boost",
			Description: "Emphasizes punchy bass and crisp mid-high tones. " +
				"Not suitable for tracks with deep or low bass.",
			Bands: [BandCount]float64{-0.075, 0.125, 0.125, 0.1, 0.1, 0.05, 0.075, 0, 0, 0, 0, 0, 0.125, 0.15, 0.05},
		},
		{
			Name:        "Metal/Rock",
			Description: "Experimental metal and rock equalizer. Expect clipping on bassy songs.",
			Bands:       [BandCount]float64{0, 0.1, 0.1, 0.15, 0.13, 0.1, 0, 0.125, 0.175, 0.175, 0.125, 0.125, 0.1, 0.075, 0},
		},
		{
			Name: "Piano",
			Description: "Suitable for piano tracks or tracks emphasizing female vocals. " +
				"Can double as a bass cutoff.",
			Bands: [BandCount]float64{-0.25, -0.25, -0.125, 0, 0.25, 0.25, 0, -0.25, -0.25, 0, 0, 0.5, 0.25, -0.025, 0},
		},
		{
			Name:        "Nightcore",
			Description: "Companion curve for sped-up playback.",
			Bands:       [BandCount]float64{-0.075, 0.125, 0.125, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			Name:        "Vaporwave",
			Description: "Companion curve for slowed playback.",
			Bands:       [BandCount]float64{-0.075, 0.125, 0.125, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			Name:        "Synth",
			Description: "Experimental curve for synth-heavy tracks.",
			Bands:       [BandCount]float64{-0.075, 0.325, 0.325, 0, 0.25, 0.25, 0, -0.35, -0.35, 0, 0, 0.8, 0.45, -0.025, 0},
		},
	}
}
