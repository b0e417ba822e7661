// Package namespace manages per-case isolated storage areas.
//
// Each case gets its own directory tree and its own embedded vector index,
// so no read or write can cross case boundaries. A shared master template
// seeds every new namespace with a reference corpus; the template is
// copied, never referenced, so later template changes cannot retroactively
// alter an existing case.
package namespace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexrag/internal/vectorstore"
)

// Sentinel errors for namespace operations.
var (
	// ErrInvalidCaseID indicates a malformed case identifier.
	ErrInvalidCaseID = errors.New("invalid case id")

	// ErrNotFound is returned when no namespace exists for a case id.
	ErrNotFound = errors.New("namespace not found")

	// ErrRetentionActive is returned when reclaiming a namespace younger
	// than the retention window without force.
	ErrRetentionActive = errors.New("namespace within retention window")

	// ErrIsolationViolation indicates stored metadata belongs to a
	// different case than the one addressed.
	ErrIsolationViolation = errors.New("cross-namespace contamination detected")
)

// caseIDRe keeps case ids filesystem- and collection-name-safe.
var caseIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,40}$`)

// ValidateCaseID checks a case identifier: alphanumeric start, then
// alphanumerics, underscores or hyphens, at most 41 characters.
func ValidateCaseID(caseID string) error {
	if !caseIDRe.MatchString(caseID) {
		return fmt.Errorf("%w: %q", ErrInvalidCaseID, caseID)
	}
	return nil
}

// ValidateSourceLabel checks a source label against the same rules as
// case ids, since both end up in collection names.
func ValidateSourceLabel(source string) error {
	if !caseIDRe.MatchString(source) {
		return fmt.Errorf("invalid source label %q", source)
	}
	return nil
}

// CollectionName builds the namespaced collection identifier for a
// (case, source) pair. Namespacing by case id makes collection collisions
// across cases impossible.
func CollectionName(caseID, source string) string {
	return fmt.Sprintf("case_%s_%s", caseID, source)
}

// subdirectories every namespace owns.
var namespaceDirs = []string{"template", "casefiles", "dialogue", "backup", "index"}

// Config holds configuration for the Manager.
type Config struct {
	// BasePath is the root directory for all namespaces.
	BasePath string

	// RetentionDays is the minimum age before a namespace may be
	// reclaimed without force. Default: 30
	RetentionDays int

	// VectorSize is the embedding dimension for namespace indexes.
	// Default: 384
	VectorSize int

	// Compress enables gzip compression of index data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.RetentionDays == 0 {
		c.RetentionDays = 30
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		return errors.New("base path is required")
	}
	if c.RetentionDays < 0 {
		return errors.New("retention days cannot be negative")
	}
	return nil
}

// Metadata is persisted as metadata.json inside each namespace.
type Metadata struct {
	CaseID      string            `json:"case_id"`
	UUID        string            `json:"uuid"`
	CreatedAt   time.Time         `json:"created_at"`
	Directories map[string]string `json:"directories"`
}

// Namespace is a handle to one case's isolated storage.
type Namespace struct {
	CaseID string
	Root   string
	Meta   Metadata

	store *vectorstore.ChromemStore
}

// Store returns the namespace-local vector store.
func (n *Namespace) Store() vectorstore.Store {
	return n.store
}

// Dir returns the absolute path of a named subdirectory.
func (n *Namespace) Dir(name string) string {
	return filepath.Join(n.Root, name)
}

// Report is the result of validating a namespace.
type Report struct {
	CaseID          string   `json:"case_id"`
	Exists          bool     `json:"exists"`
	MissingDirs     []string `json:"missing_dirs,omitempty"`
	TemplateCopied  bool     `json:"template_copied"`
	IndexPresent    bool     `json:"index_present"`
	MetadataMatches bool     `json:"metadata_matches"`
}

// Healthy reports whether every check passed.
func (r *Report) Healthy() bool {
	return r.Exists && len(r.MissingDirs) == 0 && r.TemplateCopied &&
		r.IndexPresent && r.MetadataMatches
}

// Manager creates, opens, validates and reclaims namespaces.
type Manager struct {
	config Config
	logger *zap.Logger

	mu   sync.Mutex
	open map[string]*Namespace

	// timeNow is swapped in tests to age namespaces.
	timeNow func() time.Time
}

// NewManager creates a Manager rooted at config.BasePath and seeds the
// master template if it does not exist yet.
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if strings.HasPrefix(config.BasePath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expanding base path: %w", err)
		}
		config.BasePath = filepath.Join(home, config.BasePath[1:])
	}

	m := &Manager{
		config:  config,
		logger:  logger,
		open:    make(map[string]*Namespace),
		timeNow: time.Now,
	}

	if err := m.ensureMasterTemplate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) masterDir() string {
	return filepath.Join(m.config.BasePath, "template_master")
}

func (m *Manager) casesDir() string {
	return filepath.Join(m.config.BasePath, "cases")
}

func (m *Manager) caseRoot(caseID string) string {
	return filepath.Join(m.casesDir(), "case_"+caseID)
}

// Open returns the namespace handle for caseID, creating the on-disk
// structure and template copy on first use. Open is idempotent.
func (m *Manager) Open(caseID string) (*Namespace, error) {
	if err := ValidateCaseID(caseID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ns, ok := m.open[caseID]; ok {
		return ns, nil
	}

	root := m.caseRoot(caseID)
	created := false
	if _, err := os.Stat(root); os.IsNotExist(err) {
		created = true
	} else if err != nil {
		return nil, fmt.Errorf("checking namespace %s: %w", caseID, err)
	}

	for _, dir := range namespaceDirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("creating namespace %s: %w", caseID, err)
		}
	}

	if created {
		if err := copyDir(m.masterDir(), filepath.Join(root, "template")); err != nil {
			return nil, fmt.Errorf("copying master template for %s: %w", caseID, err)
		}
	}

	meta, err := m.loadOrWriteMetadata(caseID, root, created)
	if err != nil {
		return nil, err
	}
	if meta.CaseID != caseID {
		return nil, fmt.Errorf("%w: namespace %s holds metadata for case %s",
			ErrIsolationViolation, caseID, meta.CaseID)
	}

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       filepath.Join(root, "index"),
		VectorSize: m.config.VectorSize,
		Compress:   m.config.Compress,
	}, m.logger)
	if err != nil {
		return nil, fmt.Errorf("opening index for %s: %w", caseID, err)
	}

	ns := &Namespace{
		CaseID: caseID,
		Root:   root,
		Meta:   meta,
		store:  store,
	}
	m.open[caseID] = ns

	if created {
		m.logger.Info("namespace created",
			zap.String("case_id", caseID),
			zap.String("root", root),
		)
	}
	return ns, nil
}

// Exists reports whether a namespace directory exists for caseID without
// opening it.
func (m *Manager) Exists(caseID string) (bool, error) {
	if err := ValidateCaseID(caseID); err != nil {
		return false, err
	}
	if _, err := os.Stat(m.caseRoot(caseID)); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) loadOrWriteMetadata(caseID, root string, created bool) (Metadata, error) {
	metaPath := filepath.Join(root, "metadata.json")

	if !created {
		data, err := os.ReadFile(metaPath)
		if err == nil {
			var meta Metadata
			if err := json.Unmarshal(data, &meta); err != nil {
				return Metadata{}, fmt.Errorf("parsing metadata for %s: %w", caseID, err)
			}
			return meta, nil
		}
		if !os.IsNotExist(err) {
			return Metadata{}, fmt.Errorf("reading metadata for %s: %w", caseID, err)
		}
		// Directory exists but metadata is missing. Rewrite it.
	}

	dirs := make(map[string]string, len(namespaceDirs))
	for _, dir := range namespaceDirs {
		dirs[dir] = filepath.Join(root, dir)
	}
	meta := Metadata{
		CaseID:      caseID,
		UUID:        uuid.NewString(),
		CreatedAt:   m.timeNow().UTC(),
		Directories: dirs,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Metadata{}, fmt.Errorf("encoding metadata for %s: %w", caseID, err)
	}
	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return Metadata{}, fmt.Errorf("writing metadata for %s: %w", caseID, err)
	}
	return meta, nil
}

// Reclaim removes a namespace's storage by moving it to the backup area,
// so reclaim is recoverable. Namespaces younger than the retention window
// are refused unless force is set. Returns the backup location.
func (m *Manager) Reclaim(caseID string, force bool) (string, error) {
	if err := ValidateCaseID(caseID); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	root := m.caseRoot(caseID)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: case %s", ErrNotFound, caseID)
	}

	if !force {
		meta, err := readMetadata(root)
		if err != nil {
			return "", fmt.Errorf("reading metadata for %s: %w", caseID, err)
		}
		age := m.timeNow().Sub(meta.CreatedAt)
		retention := time.Duration(m.config.RetentionDays) * 24 * time.Hour
		if age < retention {
			return "", fmt.Errorf("%w: case %s is %s old, retention is %s",
				ErrRetentionActive, caseID, age.Round(time.Hour), retention)
		}
	}

	if ns, ok := m.open[caseID]; ok {
		_ = ns.store.Close()
		delete(m.open, caseID)
	}

	backupDir := filepath.Join(m.config.BasePath, "cleanup_backup")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", fmt.Errorf("creating backup area: %w", err)
	}

	target := filepath.Join(backupDir,
		fmt.Sprintf("case_%s_%s", caseID, m.timeNow().UTC().Format("20060102T150405")))
	if err := os.Rename(root, target); err != nil {
		return "", fmt.Errorf("moving namespace %s to backup: %w", caseID, err)
	}

	m.logger.Info("namespace reclaimed",
		zap.String("case_id", caseID),
		zap.String("backup", target),
		zap.Bool("force", force),
	)
	return target, nil
}

// Validate inspects a namespace's on-disk state. A metadata mismatch is
// surfaced as ErrIsolationViolation alongside the report; other defects
// only show in the report.
func (m *Manager) Validate(caseID string) (*Report, error) {
	if err := ValidateCaseID(caseID); err != nil {
		return nil, err
	}

	report := &Report{CaseID: caseID}

	root := m.caseRoot(caseID)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return report, nil
	} else if err != nil {
		return nil, fmt.Errorf("checking namespace %s: %w", caseID, err)
	}
	report.Exists = true

	for _, dir := range namespaceDirs {
		if _, err := os.Stat(filepath.Join(root, dir)); err != nil {
			report.MissingDirs = append(report.MissingDirs, dir)
		}
	}

	if entries, err := os.ReadDir(filepath.Join(root, "template")); err == nil && len(entries) > 0 {
		report.TemplateCopied = true
	}
	if _, err := os.Stat(filepath.Join(root, "index")); err == nil {
		report.IndexPresent = true
	}

	meta, err := readMetadata(root)
	if err != nil {
		return report, nil
	}
	report.MetadataMatches = meta.CaseID == caseID
	if !report.MetadataMatches {
		return report, fmt.Errorf("%w: namespace %s holds metadata for case %s",
			ErrIsolationViolation, caseID, meta.CaseID)
	}

	return report, nil
}

// List returns metadata for every active namespace, sorted by case id.
func (m *Manager) List() ([]Metadata, error) {
	entries, err := os.ReadDir(m.casesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}

	var metas []Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := readMetadata(filepath.Join(m.casesDir(), entry.Name()))
		if err != nil {
			m.logger.Warn("skipping namespace with unreadable metadata",
				zap.String("dir", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].CaseID < metas[j].CaseID })
	return metas, nil
}

// Close closes every open namespace handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for caseID, ns := range m.open {
		if err := ns.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.open, caseID)
	}
	return firstErr
}

func readMetadata(root string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(root, "metadata.json"))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// copyDir copies the regular files of src into dst (one level deep; the
// master template holds flat seed files).
func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == initializedFlag {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, entry.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, entry.Name()), data, 0644); err != nil {
			return err
		}
	}
	return nil
}
