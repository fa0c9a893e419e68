package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/openmeet/ai-router/providers"
)

const documentVersion = "1.0.0"

// Document is the persisted provider configuration. Version tags the
// schema so future migrations can detect old files.
type Document struct {
	Version   string                                            `json:"version" yaml:"version"`
	Providers map[providers.ProviderType]providers.ProviderConfig `json:"providers" yaml:"providers"`
}

// Store persists provider configuration to a JSON or YAML file, chosen by
// extension. Concurrent Save and Load calls are serialized.
type Store struct {
	path     string
	validate *validator.Validate
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewStore creates a store for the given file path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		path:     path,
		validate: validator.New(),
		logger:   logger,
	}
}

// Load reads the persisted document. A missing file is not an error: the
// provider set seeds from the environment instead, matching first-run
// behavior.
func (s *Store) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no provider config file, seeding from environment",
			zap.String("path", s.path))
		return s.fromEnv(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read provider config: %w", err)
	}

	doc := &Document{}
	if s.isYAML() {
		err = yaml.Unmarshal(raw, doc)
	} else {
		err = json.Unmarshal(raw, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse provider config %s: %w", s.path, err)
	}

	// File entries carry the map key as their type when omitted inline.
	for pt, cfg := range doc.Providers {
		if cfg.Type == "" {
			cfg.Type = pt
			doc.Providers[pt] = cfg
		}
	}

	if err := s.validateDocument(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save validates and writes the document. The write goes through a temp
// file and rename so a crash never leaves a torn config behind.
func (s *Store) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.Version == "" {
		doc.Version = documentVersion
	}
	if err := s.validateDocument(doc); err != nil {
		return err
	}

	var raw []byte
	var err error
	if s.isYAML() {
		raw, err = yaml.Marshal(doc)
	} else {
		raw, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode provider config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write provider config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace provider config: %w", err)
	}

	s.logger.Info("provider config saved",
		zap.String("path", s.path),
		zap.Int("providers", len(doc.Providers)))
	return nil
}

// Update modifies a single provider entry and persists the document.
func (s *Store) Update(cfg providers.ProviderConfig) (*Document, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if doc.Providers == nil {
		doc.Providers = make(map[providers.ProviderType]providers.ProviderConfig)
	}
	doc.Providers[cfg.Type] = cfg

	if err := s.Save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) fromEnv() *Document {
	doc := &Document{
		Version:   documentVersion,
		Providers: make(map[providers.ProviderType]providers.ProviderConfig),
	}
	for _, cfg := range ProvidersFromEnv() {
		doc.Providers[cfg.Type] = cfg
	}
	return doc
}

func (s *Store) validateDocument(doc *Document) error {
	for pt, cfg := range doc.Providers {
		if !pt.Valid() {
			return fmt.Errorf("%w: unknown provider type %q", providers.ErrInvalidConfig, pt)
		}
		if err := s.validate.Struct(cfg); err != nil {
			return fmt.Errorf("%w: provider %s: %v", providers.ErrInvalidConfig, pt, err)
		}
	}
	return nil
}

func (s *Store) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}
