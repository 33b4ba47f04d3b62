package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/clio-ai/clio/internal/session"
)

// ErrNotFound is returned when a node id does not exist.
var ErrNotFound = errors.New("memory node not found")

// Store persists memory nodes in sqlite and mirrors their searchable text
// into a bleve index. It implements the memory collaborator contract
// consumed by the session store and the context assembler.
type Store struct {
	db    *sql.DB
	index bleve.Index
	log   *zap.Logger
}

// NewStore opens (or creates) the node database at dbPath and its companion
// bleve index at dbPath+".bleve".
func NewStore(dbPath string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	indexPath := dbPath + ".bleve"
	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(indexPath, buildIndexMapping())
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open memory index: %w", err)
	}

	s := &Store{db: db, index: index, log: log}
	if err := s.initSchema(); err != nil {
		index.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize memory schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	ierr := s.index.Close()
	derr := s.db.Close()
	if ierr != nil {
		return ierr
	}
	return derr
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		node_id          TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		description      TEXT,
		content          TEXT NOT NULL,
		tags             TEXT,
		importance_score INTEGER NOT NULL DEFAULT 0,
		access_count     INTEGER NOT NULL DEFAULT 0,
		last_accessed    INTEGER NOT NULL,
		created_at       INTEGER NOT NULL,
		parent_id        TEXT
	);

	CREATE TABLE IF NOT EXISTS node_sessions (
		node_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		UNIQUE (node_id, session_id),
		FOREIGN KEY (node_id) REFERENCES nodes(node_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_accessed ON nodes(last_accessed);
	CREATE INDEX IF NOT EXISTS idx_node_sessions_session ON node_sessions(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	nodeMapping := bleve.NewDocumentMapping()

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	idField.Index = true
	nodeMapping.AddFieldMappingsAt("node_id", idField)

	tagField := bleve.NewTextFieldMapping()
	tagField.Analyzer = keyword.Name
	tagField.Store = false
	tagField.Index = true
	nodeMapping.AddFieldMappingsAt("tags", tagField)

	for _, field := range []string{"name", "description", "content"} {
		textField := bleve.NewTextFieldMapping()
		textField.Analyzer = standard.Name
		textField.Store = false
		textField.Index = true
		nodeMapping.AddFieldMappingsAt(field, textField)
	}

	indexMapping.DefaultMapping = nodeMapping
	return indexMapping
}

func newNodeID() string {
	return fmt.Sprintf("memory_%s_%s",
		time.Now().UTC().Format("20060102150405"),
		uuid.NewString()[:8])
}

// Create inserts a node and indexes its text. Missing id, timestamps, and
// importance bounds are filled in.
func (s *Store) Create(node *Node) (string, error) {
	if node == nil {
		return "", errors.New("cannot create a nil node")
	}
	if node.ID == "" {
		node.ID = newNodeID()
	}
	now := time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	if node.LastAccessed.IsZero() {
		node.LastAccessed = now
	}
	if node.ImportanceScore < 0 {
		node.ImportanceScore = 0
	}
	if node.ImportanceScore > 100 {
		node.ImportanceScore = 100
	}

	query := `
		INSERT INTO nodes (node_id, name, description, content, tags, importance_score, access_count, last_accessed, created_at, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		node.ID, node.Name, node.Description, node.Content,
		strings.Join(node.Tags, ","), node.ImportanceScore, node.AccessCount,
		node.LastAccessed.Unix(), node.CreatedAt.Unix(), node.ParentID)
	if err != nil {
		return "", fmt.Errorf("failed to insert memory node: %w", err)
	}

	if err := s.indexNode(node); err != nil {
		s.log.Warn("memory node indexing failed", zap.String("node_id", node.ID), zap.Error(err))
	}
	return node.ID, nil
}

func (s *Store) indexNode(node *Node) error {
	doc := map[string]interface{}{
		"node_id":     node.ID,
		"name":        node.Name,
		"description": node.Description,
		"content":     node.Content,
		"tags":        strings.Join(node.Tags, " "),
	}
	return s.index.Index(node.ID, doc)
}

// CreateFromSession distills a session's conversation into a new node and
// associates it with the source session. Importance grows with the amount
// of conversation being captured.
func (s *Store) CreateFromSession(sessionID string, entries []session.HistoryEntry, name, parentID string) (string, error) {
	if len(entries) == 0 {
		return "", errors.New("cannot create memory from an empty session")
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s\n", e.Role, e.Content)
	}

	importance := 30 + 2*len(entries)
	if importance > 100 {
		importance = 100
	}

	node := &Node{
		Name:            name,
		Description:     fmt.Sprintf("Distilled from session %s", sessionID),
		Content:         b.String(),
		ImportanceScore: importance,
		ParentID:        parentID,
	}
	id, err := s.Create(node)
	if err != nil {
		return "", err
	}
	if _, err := s.AssociateSession(id, sessionID); err != nil {
		return "", err
	}
	return id, nil
}

// Get loads a node and records the access: count incremented, timestamp
// refreshed.
func (s *Store) Get(id string) (*Node, error) {
	node, err := s.get(id)
	if err != nil {
		return nil, err
	}

	node.AccessCount++
	node.LastAccessed = time.Now().UTC()
	_, err = s.db.Exec(`UPDATE nodes SET access_count = ?, last_accessed = ? WHERE node_id = ?`,
		node.AccessCount, node.LastAccessed.Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to record node access: %w", err)
	}
	return node, nil
}

func (s *Store) get(id string) (*Node, error) {
	query := `
		SELECT node_id, name, description, content, tags, importance_score, access_count, last_accessed, created_at, parent_id
		FROM nodes WHERE node_id = ?
	`
	var (
		node                     Node
		description, tags, parent sql.NullString
		lastAccessed, createdAt  int64
	)
	err := s.db.QueryRow(query, id).Scan(
		&node.ID, &node.Name, &description, &node.Content, &tags,
		&node.ImportanceScore, &node.AccessCount, &lastAccessed, &createdAt, &parent)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load memory node %s: %w", id, err)
	}

	node.Description = description.String
	node.ParentID = parent.String
	if tags.String != "" {
		node.Tags = strings.Split(tags.String, ",")
	}
	node.LastAccessed = time.Unix(lastAccessed, 0).UTC()
	node.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &node, nil
}

// Exists reports whether a node id is present.
func (s *Store) Exists(id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM nodes WHERE node_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check memory node: %w", err)
	}
	return true, nil
}

// Delete removes a node, its session links, and its index entry.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM node_sessions WHERE node_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete node associations: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM nodes WHERE node_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete memory node: %w", err)
	}
	if err := s.index.Delete(id); err != nil {
		s.log.Warn("memory index delete failed", zap.String("node_id", id), zap.Error(err))
	}
	return nil
}

// Search returns node ids whose text matches the keyword, best first. Tags,
// when given, all must match.
func (s *Store) Search(kw string, tags []string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	matchQuery := bleve.NewMatchQuery(kw)
	combined := bleve.NewConjunctionQuery(matchQuery)
	for _, tag := range tags {
		tagQuery := bleve.NewTermQuery(tag)
		tagQuery.SetField("tags")
		combined.AddQuery(tagQuery)
	}

	request := bleve.NewSearchRequest(combined)
	request.Size = limit

	result, err := s.index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("memory search failed: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// RecentlyAccessed returns node ids by importance-weighted recency: a point
// of importance buys roughly a quarter hour of freshness.
func (s *Store) RecentlyAccessed(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT node_id FROM nodes
		ORDER BY last_accessed + importance_score * 900 DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent nodes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AssociateSession links a node to a session. Returns false without error
// when the node does not exist; re-linking is a no-op success.
func (s *Store) AssociateSession(nodeID, sessionID string) (bool, error) {
	ok, err := s.Exists(nodeID)
	if err != nil || !ok {
		return false, err
	}
	_, err = s.db.Exec(`INSERT OR IGNORE INTO node_sessions (node_id, session_id) VALUES (?, ?)`, nodeID, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to associate node with session: %w", err)
	}
	return true, nil
}

// SessionNodes returns the node ids linked to a session.
func (s *Store) SessionNodes(sessionID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT node_id FROM node_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session nodes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GenerateContext renders the given nodes as markdown blocks, stopping once
// the token budget is spent. Each rendered node counts as an access.
func (s *Store) GenerateContext(nodeIDs []string, maxTokens int) (string, error) {
	var b strings.Builder
	for _, id := range nodeIDs {
		node, err := s.Get(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return "", err
		}

		block := node.Render()
		if maxTokens > 0 && (b.Len()+len(block)+3)/4 > maxTokens {
			break
		}
		b.WriteString(block)
	}
	return b.String(), nil
}
