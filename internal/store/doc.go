// Package store resolves session names to audio and artifact files below a configured root.
package store
