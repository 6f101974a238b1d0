package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/montybuilt/MPS-sub000/internal/progress"
)

// Loader loads and caches content files from the filesystem.
type Loader struct {
	rootDir  string
	contents map[string]Content
	tasks    map[string]Task
	mu       sync.RWMutex
}

// NewLoader creates a new loader and loads every content file under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:  rootDir,
		contents: make(map[string]Content),
		tasks:    make(map[string]Task),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "contents", len(l.contents), "tasks", len(l.tasks))
	return l, nil
}

// Content returns a content by ID.
func (l *Loader) Content(id string) (Content, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.contents[id]
	return c, ok
}

// AllContent returns every loaded content ordered by ID.
func (l *Loader) AllContent() []Content {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Content, 0, len(l.contents))
	for _, c := range l.contents {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Task returns the task with the given key.
func (l *Loader) Task(key string) (Task, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tasks[key]
	return t, ok
}

// Tree builds the assignment tree of owner. An empty owner gets every
// content.
func (l *Loader) Tree(owner string) progress.AssignmentTree {
	tree := make(progress.AssignmentTree)
	for _, c := range l.AllContent() {
		if owner != "" && !c.AssignedTo(owner) {
			continue
		}
		curricula := make(map[string][]progress.TaskAssignment, len(c.Curricula))
		for _, cur := range c.Curricula {
			tasks := make([]progress.TaskAssignment, 0, len(cur.Tasks))
			for _, t := range cur.Tasks {
				tasks = append(tasks, t.TaskAssignment)
			}
			curricula[cur.ID] = tasks
		}
		tree[c.ID] = curricula
	}
	return tree
}

// CurriculumTasks returns the ordered task keys of a curriculum, taken from
// the first content in ID order that lists it.
func (l *Loader) CurriculumTasks(curriculumID string) ([]string, bool) {
	for _, c := range l.AllContent() {
		for _, cur := range c.Curricula {
			if cur.ID != curriculumID {
				continue
			}
			keys := make([]string, 0, len(cur.Tasks))
			for _, t := range cur.Tasks {
				keys = append(keys, t.TaskKey)
			}
			return keys, true
		}
	}
	return nil, false
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadContent(path)
		}
		return nil
	})
}

func (l *Loader) loadContent(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		slog.Warn("skipping invalid content YAML", "path", path, "error", err)
		return nil
	}

	if c.ID == "" {
		return nil // Not a content file
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.contents[c.ID]; dup {
		slog.Warn("duplicate content id, later file wins", "content", c.ID, "path", path)
	}
	l.contents[c.ID] = c
	for _, cur := range c.Curricula {
		for _, t := range cur.Tasks {
			if t.TaskKey == "" {
				slog.Warn("task without task_key", "content", c.ID, "curriculum", cur.ID, "path", path)
				continue
			}
			l.tasks[t.TaskKey] = t
		}
	}
	return nil
}
