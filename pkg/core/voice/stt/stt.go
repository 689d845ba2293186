// Package stt turns recorded speech into text.
package stt

import (
	"bytes"
	"context"
	"io"
)

type Provider interface {
	Name() string
	// Transcribe converts one complete clip.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error)
}

type TranscribeOptions struct {
	Model    string
	Language string // ISO code; empty lets the provider detect it
	Format   string // container (wav, mp3, webm, ogg, flac, m4a); empty means detect
	Prompt   string // spelling hint, e.g. project names
}

type Transcript struct {
	Text     string
	Language string
	Duration float64 // seconds, when reported
}

type container struct {
	name      string
	mediaType string
	magic     []byte
	offset    int
}

var containers = []container{
	{name: "wav", mediaType: "audio/wav", magic: []byte("WAVE"), offset: 8},
	{name: "webm", mediaType: "audio/webm", magic: []byte{0x1A, 0x45, 0xDF, 0xA3}},
	{name: "ogg", mediaType: "audio/ogg", magic: []byte("OggS")},
	{name: "flac", mediaType: "audio/flac", magic: []byte("fLaC")},
	{name: "m4a", mediaType: "audio/mp4", magic: []byte("ftyp"), offset: 4},
	{name: "mp3", mediaType: "audio/mpeg", magic: []byte("ID3")},
	{name: "mp3", mediaType: "audio/mpeg", magic: []byte{0xFF, 0xFB}},
	{name: "mp3", mediaType: "audio/mpeg", magic: []byte{0xFF, 0xF3}},
}

// DetectFormat names the container from the clip's leading bytes, falling
// back to wav.
func DetectFormat(head []byte) string {
	for _, c := range containers {
		end := c.offset + len(c.magic)
		if len(head) >= end && bytes.Equal(head[c.offset:end], c.magic) {
			return c.name
		}
	}
	return "wav"
}

// mediaType maps a container name to the upload content type. "mpeg" is
// accepted as an alias for mp3.
func mediaType(format string) (name, contentType string) {
	if format == "mpeg" {
		format = "mp3"
	}
	for _, c := range containers {
		if c.name == format {
			return c.name, c.mediaType
		}
	}
	return format, "application/octet-stream"
}
