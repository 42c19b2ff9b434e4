// Package state owns the shared application state for one synchronization hub
// instance: the typed default values and a store that applies shallow
// merge-updates to the current value.
package state

// GridSize is the fixed number of squares in the music grid.
const GridSize = 64

// Waveform names accepted by the synthesis engine on the client side. The hub
// never validates them; they are listed here for the default state and tests.
const (
	WaveSine     = "sine"
	WaveSquare   = "square"
	WaveSawtooth = "sawtooth"
	WaveTriangle = "triangle"
)

// GridSquare is one cell of the music grid with its synthesis parameters for
// the primary oscillator and the LFO.
type GridSquare struct {
	Index        int     `json:"index"`
	Active       bool    `json:"active"`
	Expanded     bool    `json:"expanded"`
	Frequency    float64 `json:"frequency"`
	Waveform     string  `json:"waveform"`
	Gain         float64 `json:"gain"`
	Attack       float64 `json:"attack"`
	Decay        float64 `json:"decay"`
	LFOFrequency float64 `json:"lfoFrequency"`
	LFOWaveform  string  `json:"lfoWaveform"`
	LFOGain      float64 `json:"lfoGain"`
	LFODecay     float64 `json:"lfoDecay"`
	LFODepth     float64 `json:"lfoDepth"`
}

// Evolution tracks the automatic pattern-evolution settings.
type Evolution struct {
	IsEvolving     bool `json:"isEvolving"`
	EvolutionSpeed int  `json:"evolutionSpeed"`
	CurrentStep    int  `json:"currentStep"`
	MaxSteps       int  `json:"maxSteps"`
}

// ApplicationState is the single shared entity owned by one hub instance.
// CurrentStep is -1 while the sequencer is not running.
type ApplicationState struct {
	Key                string       `json:"key"`
	Scale              string       `json:"scale"`
	Chord              string       `json:"chord"`
	IsDarkMode         bool         `json:"isDarkMode"`
	IsKeyboardVisible  bool         `json:"isKeyboardVisible"`
	MasterVolume       float64      `json:"masterVolume"`
	Tempo              int          `json:"tempo"`
	IsSequencerRunning bool         `json:"isSequencerRunning"`
	CurrentStep        int          `json:"currentStep"`
	MusicGrid          []GridSquare `json:"musicGrid"`
	Evolution          Evolution    `json:"evolution"`
}

// DefaultState returns the hard-coded state a fresh hub instance starts from.
// The hub is amnesiac across restarts: unless a durable seed is supplied,
// recreating an instance resets to exactly these values.
func DefaultState() ApplicationState {
	grid := make([]GridSquare, GridSize)
	for i := range grid {
		grid[i] = GridSquare{
			Index:        i,
			Active:       false,
			Expanded:     false,
			Frequency:    220,
			Waveform:     WaveSine,
			Gain:         0.8,
			Attack:       0.01,
			Decay:        0.5,
			LFOFrequency: 1,
			LFOWaveform:  WaveSine,
			LFOGain:      0,
			LFODecay:     0.5,
			LFODepth:     0,
		}
	}

	return ApplicationState{
		Key:                "C",
		Scale:              "major",
		Chord:              "I",
		IsDarkMode:         false,
		IsKeyboardVisible:  false,
		MasterVolume:       0.7,
		Tempo:              99,
		IsSequencerRunning: false,
		CurrentStep:        -1,
		MusicGrid:          grid,
		Evolution: Evolution{
			IsEvolving:     false,
			EvolutionSpeed: 8,
			CurrentStep:    0,
			MaxSteps:       16,
		},
	}
}
