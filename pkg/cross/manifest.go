package cross

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrHashMismatch is returned by Verify when an artifact changed on disk.
var ErrHashMismatch = errors.New("artifact hash mismatch")

// DefaultManifestName is written next to the built artifacts.
const DefaultManifestName = "now.lock"

// Artifact describes one built binary.
type Artifact struct {
	GOOS   string `yaml:"goos"`
	GOARCH string `yaml:"goarch"`

	// Path of the binary on disk. Saved relative to the manifest's directory,
	// resolved against it again by LoadManifest.
	Path string `yaml:"path"`

	// ResolvedHash of the binary, "sha256:<hex>"
	ResolvedHash string `yaml:"resolvedHash"`

	// Compiler used for the C part; empty for CGO_ENABLED=0 builds
	Compiler string `yaml:"compiler,omitempty"`

	CGO bool `yaml:"cgo"`

	// BuiltAt timestamp when the binary was produced
	BuiltAt time.Time `yaml:"builtAt"`
}

// Manifest records the artifacts of a cross build.
type Manifest struct {
	// GeneratedAt timestamp when the manifest was generated
	GeneratedAt time.Time `yaml:"generatedAt"`

	// Artifacts indexed by target name
	Artifacts map[string]Artifact `yaml:"artifacts"`
}

// NewManifest returns an empty manifest stamped with the current time.
func NewManifest() *Manifest {
	return &Manifest{
		GeneratedAt: time.Now(),
		Artifacts:   make(map[string]Artifact),
	}
}

// CalculateSHA256 calculates the SHA256 hash of a file
func CalculateSHA256(filePath string) (string, error) {
	f, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file for hashing: %w", err)
	}

	hash := sha256.Sum256(f)
	return "sha256:" + hex.EncodeToString(hash[:]), nil
}

// Names returns the artifact names in sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Artifacts))
	for name := range m.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verify re-hashes every artifact in name order and reports the first
// mismatch.
func (m *Manifest) Verify() error {
	for _, name := range m.Names() {
		artifact := m.Artifacts[name]
		actual, err := CalculateSHA256(artifact.Path)
		if err != nil {
			return fmt.Errorf("failed to hash artifact %s: %w", name, err)
		}

		if actual != artifact.ResolvedHash {
			return fmt.Errorf("%w: %s (%s) is %s, manifest has %s",
				ErrHashMismatch, name, artifact.Path, actual, artifact.ResolvedHash)
		}
	}

	return nil
}

// SaveManifest saves the manifest to disk. Artifact paths are rewritten
// relative to the manifest's directory so the file stays valid wherever it
// is read from; m itself is not modified.
func SaveManifest(m *Manifest, filePath string) error {
	base, err := filepath.Abs(filepath.Dir(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve manifest directory: %w", err)
	}

	out := &Manifest{
		GeneratedAt: m.GeneratedAt,
		Artifacts:   make(map[string]Artifact, len(m.Artifacts)),
	}
	for name, artifact := range m.Artifacts {
		path, err := relativeTo(base, artifact.Path)
		if err != nil {
			return fmt.Errorf("failed to resolve artifact %s: %w", name, err)
		}
		artifact.Path = path
		out.Artifacts[name] = artifact
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	content := "# now.lock - generated by now cross\n" + string(data)

	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// relativeTo returns path relative to base in slash form, or the absolute
// path when no relative form exists (different volumes on Windows).
func relativeTo(base, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return filepath.ToSlash(abs), nil
	}

	return filepath.ToSlash(rel), nil
}

// LoadManifest loads a manifest from disk, resolving relative artifact paths
// against the manifest's directory.
func LoadManifest(filePath string) (*Manifest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if m.Artifacts == nil {
		m.Artifacts = make(map[string]Artifact)
	}

	base := filepath.Dir(filePath)
	for name, artifact := range m.Artifacts {
		path := filepath.FromSlash(artifact.Path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		artifact.Path = path
		m.Artifacts[name] = artifact
	}

	return m, nil
}
