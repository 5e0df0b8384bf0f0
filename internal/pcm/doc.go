// Package pcm converts between float32 samples, signed 16-bit PCM and mono WAV files.
package pcm
