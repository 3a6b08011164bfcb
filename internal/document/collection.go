package document

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Document is a flat JSON object. Numeric values read back from the
// store are json.Number to preserve integer precision.
type Document map[string]any

// Errors returned by collection operations.
var (
	ErrClosed      = errors.New("document store is closed")
	ErrNoDocuments = errors.New("no matching documents")
)

// Collection is a named set of documents backed by one SQLite table.
type Collection struct {
	name string
	db   *DB
}

// newDocID generates a UUID v7 document key.
func newDocID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// decodeDocument parses a JSON body preserving numeric precision.
func decodeDocument(body string) (Document, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return doc, nil
}

// InsertOne stores a new document and returns its generated key.
func (c *Collection) InsertOne(doc Document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshaling document: %w", err)
	}

	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if c.db.db == nil {
		return "", ErrClosed
	}

	id := newDocID()
	_, err = c.db.db.Exec(
		fmt.Sprintf("INSERT INTO %s (doc_id, body) VALUES (?, ?)", c.name),
		id, string(body))
	if err != nil {
		return "", fmt.Errorf("inserting into %s: %w", c.name, err)
	}
	return id, nil
}

// FindOne returns the first document matching the filter.
// Returns ErrNoDocuments if nothing matches.
func (c *Collection) FindOne(filter Filter) (Document, error) {
	where, args, err := filter.where()
	if err != nil {
		return nil, err
	}

	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	if c.db.db == nil {
		return nil, ErrClosed
	}

	var body string
	err = c.db.db.QueryRow(
		fmt.Sprintf("SELECT body FROM %s%s LIMIT 1", c.name, where), args...).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.name, err)
	}
	return decodeDocument(body)
}

// Find returns all documents matching the filter, in insertion order.
func (c *Collection) Find(filter Filter) ([]Document, error) {
	where, args, err := filter.where()
	if err != nil {
		return nil, err
	}

	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	if c.db.db == nil {
		return nil, ErrClosed
	}

	rows, err := c.db.db.Query(
		fmt.Sprintf("SELECT body FROM %s%s ORDER BY rowid", c.name, where), args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.name, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", c.name, err)
		}
		doc, err := decodeDocument(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count returns the number of documents matching the filter.
func (c *Collection) Count(filter Filter) (int64, error) {
	where, args, err := filter.where()
	if err != nil {
		return 0, err
	}

	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	if c.db.db == nil {
		return 0, ErrClosed
	}

	var n int64
	err = c.db.db.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) FROM %s%s", c.name, where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", c.name, err)
	}
	return n, nil
}

// ReplaceOne overwrites the first document matching the filter with doc.
// Returns ErrNoDocuments if nothing matches.
func (c *Collection) ReplaceOne(filter Filter, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	return c.updateOne(filter, "body = ?", string(body))
}

// Patch merges patch into the first document matching the filter using
// RFC 7386 merge-patch semantics: nested objects merge key by key,
// scalars and arrays replace, null removes a key. Returns ErrNoDocuments
// if nothing matches.
func (c *Collection) Patch(filter Filter, patch Document) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshaling patch: %w", err)
	}
	return c.updateOne(filter, "body = json_patch(body, ?)", string(body))
}

// updateOne applies a SET expression to the first document matching the
// filter.
func (c *Collection) updateOne(filter Filter, setExpr, setArg string) error {
	where, args, err := filter.where()
	if err != nil {
		return err
	}

	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if c.db.db == nil {
		return ErrClosed
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE doc_id = (SELECT doc_id FROM %s%s ORDER BY rowid LIMIT 1)",
		c.name, setExpr, c.name, where)
	res, err := c.db.db.Exec(query, append([]any{setArg}, args...)...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", c.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s: %w", c.name, err)
	}
	if n == 0 {
		return ErrNoDocuments
	}
	return nil
}

// EnsureIndex creates an expression index on a top-level document field
// so exact-match lookups on it stay efficient.
func (c *Collection) EnsureIndex(field string) error {
	if !collectionNameRE.MatchString(field) {
		return fmt.Errorf("invalid index field %q", field)
	}

	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if c.db.db == nil {
		return ErrClosed
	}

	_, err := c.db.db.Exec(fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (json_extract(body, '$.%s'))",
		c.name, field, c.name, field))
	if err != nil {
		return fmt.Errorf("indexing %s.%s: %w", c.name, field, err)
	}
	return nil
}
