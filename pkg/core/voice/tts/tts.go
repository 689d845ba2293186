// Package tts turns answer text into an encoded audio clip.
package tts

import "context"

type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

type SynthesizeOptions struct {
	Voice  string
	Model  string
	Format string  // provider output format, e.g. "mp3_44100_128"
	Speed  float64 // 0 keeps the voice default
}

type Synthesis struct {
	Audio  []byte
	Format string
}
