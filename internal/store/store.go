package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrSessionNotFound is returned when no file exists for a session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSession is returned for names that could escape the root.
	ErrInvalidSession = errors.New("invalid session name")
)

// Kind names a file belonging to a session.
type Kind string

const (
	KindAudio  Kind = "Audio"
	KindOutput Kind = "Output"
)

// NotFoundError reports a missing session file. Path is the first location
// that was tried.
type NotFoundError struct {
	Kind    Kind
	Session string
	Path    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s file %s does not exist!", e.Kind, e.Path)
}

func (e *NotFoundError) Unwrap() error {
	return ErrSessionNotFound
}

// Nested layout: <root>/<session>/<name>.
var nestedArtifacts = []string{"vap.tsv", "vap.csv", "output.json", "output.cbor"}

const nestedAudio = "audio.wav"

// Flat layout: <root>/<session><ext>.
var flatArtifactExts = []string{".tsv", ".csv", ".json", ".cbor"}

const flatAudioExt = ".wav"

// Store resolves session files below a root directory. It only reads the
// file system and is safe for concurrent use.
type Store struct {
	root   string
	logger *slog.Logger
}

// New creates a store rooted at root. With create set, a missing root is created.
func New(root string, create bool, logger *slog.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root cannot be empty")
	}
	root = filepath.Clean(root)
	if create {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
		}
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("storage root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", root)
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the storage root.
func (s *Store) Root() string {
	return s.root
}

// ValidSession reports whether name can be used as a session identifier.
func ValidSession(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// Sessions lists every session with a recording, sorted by name. A recording
// named audio.wav belongs to the session named after its directory; any other
// recording names the session by its file stem.
func (s *Store) Sessions() ([]string, error) {
	seen := make(map[string]bool)
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("Skipping unreadable path",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			if d != nil && d.IsDir() && path != s.root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), flatAudioExt) {
			return nil
		}

		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if d.Name() == nestedAudio {
			dir := filepath.Dir(path)
			if dir == s.root {
				return nil
			}
			name = filepath.Base(dir)
		}
		if ValidSession(name) {
			seen[name] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions in %s: %w", s.root, err)
	}

	sessions := make([]string, 0, len(seen))
	for name := range seen {
		sessions = append(sessions, name)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// AudioPath returns the recording of session.
func (s *Store) AudioPath(session string) (string, error) {
	if !ValidSession(session) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSession, session)
	}
	candidates := []string{
		filepath.Join(s.root, session, nestedAudio),
		filepath.Join(s.root, session+flatAudioExt),
	}
	return s.first(KindAudio, session, candidates)
}

// ArtifactPath returns the model output artifact of session.
func (s *Store) ArtifactPath(session string) (string, error) {
	if !ValidSession(session) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSession, session)
	}
	candidates := make([]string, 0, len(nestedArtifacts)+len(flatArtifactExts))
	for _, name := range nestedArtifacts {
		candidates = append(candidates, filepath.Join(s.root, session, name))
	}
	for _, ext := range flatArtifactExts {
		candidates = append(candidates, filepath.Join(s.root, session+ext))
	}
	return s.first(KindOutput, session, candidates)
}

func (s *Store) first(kind Kind, session string, candidates []string) (string, error) {
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", &NotFoundError{Kind: kind, Session: session, Path: candidates[0]}
}
