package internal

import (
	"fmt"
	"os"
	"path/filepath"
)

const ScopeDirName = ".medrag"

type ScopeType string

const (
	ScopeGlobal  ScopeType = "global"
	ScopeProject ScopeType = "project"
)

type Scope struct {
	Type ScopeType
	Path string // working directory root
	Dir  string // .medrag directory path
}

func (s Scope) ConfigPath() string {
	return filepath.Join(s.Dir, "config.yaml")
}

func (s Scope) IndexPath() string {
	return filepath.Join(s.Dir, "data", "medical_index")
}

func (s Scope) CachePath() string {
	return filepath.Join(s.Dir, "cache")
}

func (s Scope) ModelsPath() string {
	return filepath.Join(s.Dir, "models")
}

// Resolve makes a configured path absolute relative to the scope directory.
func (s Scope) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Dir, path)
}

// Init creates the scope directory layout. It is safe to call repeatedly.
func (s Scope) Init() error {
	for _, dir := range []string{s.Dir, filepath.Dir(s.IndexPath()), s.CachePath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (s Scope) Exists() bool {
	info, err := os.Stat(s.Dir)
	return err == nil && info.IsDir()
}

type ScopeResolver struct {
	homeDir string
}

func NewScopeResolver() *ScopeResolver {
	home, _ := os.UserHomeDir()
	return &ScopeResolver{homeDir: home}
}

func (r *ScopeResolver) Global() Scope {
	return Scope{
		Type: ScopeGlobal,
		Path: r.homeDir,
		Dir:  filepath.Join(r.homeDir, ScopeDirName),
	}
}

// ProjectAt returns the project scope rooted at dir, whether or not it exists yet.
func (r *ScopeResolver) ProjectAt(dir string) Scope {
	return Scope{
		Type: ScopeProject,
		Path: dir,
		Dir:  filepath.Join(dir, ScopeDirName),
	}
}

func (r *ScopeResolver) Project() (Scope, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return Scope{}, false
	}
	return r.findProjectScope(cwd)
}

func (r *ScopeResolver) findProjectScope(dir string) (Scope, bool) {
	for {
		scope := r.ProjectAt(dir)
		if scope.Exists() {
			return scope, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Scope{}, false
		}
		dir = parent
	}
}

func (r *ScopeResolver) Resolve(explicit string) Scope {
	if explicit == string(ScopeGlobal) {
		return r.Global()
	}
	if scope, ok := r.Project(); ok {
		return scope
	}
	return r.Global()
}
