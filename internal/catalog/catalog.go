// Package catalog loads the list of suggested course topics from YAML files
// and normalises free-text topics entered by learners.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// MaxTopicLength is the longest topic, in characters, a learner may request.
const MaxTopicLength = 100

// ErrInvalidTopic is returned for empty or over-long topics.
var ErrInvalidTopic = errors.New("invalid topic")

// Topic is a suggested course topic loaded from YAML.
type Topic struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Subject     string   `yaml:"subject" json:"subject,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Difficulty  string   `yaml:"difficulty" json:"difficulty,omitempty"`
	Aliases     []string `yaml:"aliases" json:"aliases,omitempty"`
}

// Catalog holds the known topics and an alias index over them.
type Catalog struct {
	rootDir string
	topics  map[string]Topic
	index   map[string]string // lowercased id, name or alias -> canonical name
	mu      sync.RWMutex
}

// New creates an empty catalog. Every topic is free text.
func New() *Catalog {
	return &Catalog{
		topics: make(map[string]Topic),
		index:  make(map[string]string),
	}
}

// Load creates a catalog from every topic YAML file under rootDir. A missing
// directory yields an empty catalog.
func Load(rootDir string) (*Catalog, error) {
	c := New()
	c.rootDir = rootDir

	if err := c.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("topic catalog loaded", "path", rootDir, "topics", len(c.topics))
	return c, nil
}

// Add registers a topic and its aliases.
func (c *Catalog) Add(t Topic) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.topics[t.ID] = t
	for _, key := range append([]string{t.ID, t.Name}, t.Aliases...) {
		if k := indexKey(key); k != "" {
			c.index[k] = t.Name
		}
	}
}

// Get returns a topic by ID.
func (c *Catalog) Get(id string) (Topic, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.topics[id]
	return t, ok
}

// Topics returns every topic sorted by subject then name.
func (c *Catalog) Topics() []Topic {
	c.mu.RLock()
	defer c.mu.RUnlock()

	topics := make([]Topic, 0, len(c.topics))
	for _, t := range c.topics {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Subject != topics[j].Subject {
			return topics[i].Subject < topics[j].Subject
		}
		return topics[i].Name < topics[j].Name
	})
	return topics
}

// Normalize maps a learner's topic to its canonical catalog name, or
// title-cases it when the catalog does not know it.
func (c *Catalog) Normalize(topic string) (string, error) {
	topic = strings.Join(strings.Fields(topic), " ")
	if topic == "" {
		return "", fmt.Errorf("%w: topic is required", ErrInvalidTopic)
	}
	if utf8.RuneCountInString(topic) > MaxTopicLength {
		return "", fmt.Errorf("%w: topic is longer than %d characters", ErrInvalidTopic, MaxTopicLength)
	}

	c.mu.RLock()
	name, ok := c.index[indexKey(topic)]
	c.mu.RUnlock()
	if ok {
		return name, nil
	}

	// Casers carry state, so each call gets its own.
	return cases.Title(language.English, cases.NoLower).String(topic), nil
}

func indexKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (c *Catalog) loadAll() error {
	return filepath.Walk(c.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return c.loadFile(path)
		}
		return nil
	})
}

// loadFile reads either a single topic document or a {topics: [...]} list.
func (c *Catalog) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc struct {
		Topic  `yaml:",inline"`
		Topics []Topic `yaml:"topics"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return nil
	}

	topics := doc.Topics
	if doc.ID != "" {
		topics = append(topics, doc.Topic)
	}
	for _, t := range topics {
		if t.ID == "" || strings.TrimSpace(t.Name) == "" {
			slog.Warn("skipping topic without id or name", "path", path, "id", t.ID)
			continue
		}
		c.Add(t)
	}
	return nil
}
