// Package audio reads WAV headers of session recordings.
package audio
