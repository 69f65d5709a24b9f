package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/natefinch/atomic"
)

var (
	// ErrNotFound is returned when no row matches the given key.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownTable is returned for table names without a schema.
	ErrUnknownTable = errors.New("unknown table")
	// ErrMalformed is returned when a CSV file cannot be parsed.
	ErrMalformed = errors.New("malformed table")
)

// DateTimeLayout is the format of created_date and timestamp columns.
const DateTimeLayout = "2006-01-02 15:04:05"

const bom = "\ufeff"

// ChangeKind describes what happened to a table.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReplaced ChangeKind = "replaced"
)

// Change is emitted to observers after every successful mutation.
type Change struct {
	Table  string
	Kind   ChangeKind
	Key    string
	Fields Record
	At     time.Time
}

// Observer receives change events. It runs synchronously after the table lock is released.
type Observer func(ctx context.Context, change Change)

// Store is a key-indexed record store over one CSV file per table.
type Store struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.RWMutex

	obsMu     sync.RWMutex
	observers []Observer
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created_date.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store rooted at dir. Call Init to create the directory and tables.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:   dir,
		now:   time.Now,
		locks: make(map[string]*sync.RWMutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path of a table.
func (s *Store) Path(table string) string {
	return filepath.Join(s.dir, table+".csv")
}

// Observe registers an observer for change events.
func (s *Store) Observe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Store) notify(ctx context.Context, c Change) {
	c.At = s.now()
	s.obsMu.RLock()
	observers := slices.Clone(s.observers)
	s.obsMu.RUnlock()
	for _, o := range observers {
		o(ctx, c)
	}
}

func (s *Store) lock(table string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[table]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[table] = l
	}
	return l
}

// Load returns a snapshot of the table. A missing file is an empty table with the schema header.
func (s *Store) Load(ctx context.Context, table string) (*Table, error) {
	schema, ok := schemas[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := s.lock(table)
	l.RLock()
	defer l.RUnlock()

	return s.read(table, schema)
}

// Add appends a record. On integer-keyed tables a missing id is set to max(id)+1,
// and created_date is set when absent. The stored record is returned.
func (s *Store) Add(ctx context.Context, table string, rec Record) (Record, error) {
	schema, ok := schemas[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := s.lock(table)
	l.Lock()

	t, err := s.read(table, schema)
	if err != nil {
		l.Unlock()
		return nil, err
	}

	rec = rec.Clone()
	if schema.IntKey && rec[schema.Key] == "" {
		rec[schema.Key] = strconv.Itoa(nextID(t, schema.Key))
	}
	if rec["created_date"] == "" {
		rec["created_date"] = s.now().Format(DateTimeLayout)
	}
	t.Header = extendHeader(t.Header, rec)
	t.Rows = append(t.Rows, rec)

	if err := s.write(t); err != nil {
		l.Unlock()
		return nil, err
	}
	l.Unlock()

	log.Debug("added record", "table", table, "key", rec[schema.Key])
	s.notify(ctx, Change{Table: table, Kind: ChangeAdded, Key: rec[schema.Key], Fields: rec.Clone()})
	return rec, nil
}

// Update overwrites the listed fields of every row whose key equals id.
// Unknown columns are added to the header. When the existing cell is numeric and the
// new value is numeric text, the value is stored in canonical form.
func (s *Store) Update(ctx context.Context, table, id string, fields Record) error {
	schema, ok := schemas[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lock(table)
	l.Lock()

	t, err := s.read(table, schema)
	if err != nil {
		l.Unlock()
		return err
	}

	found := false
	for _, row := range t.Rows {
		if row[schema.Key] != id {
			continue
		}
		found = true
		for col, v := range fields {
			if isNumber(row[col]) {
				if n, ok := normalizeNumber(v); ok {
					v = n
				}
			}
			row[col] = v
		}
	}
	if !found {
		l.Unlock()
		return fmt.Errorf("%w: %s %s=%s", ErrNotFound, table, schema.Key, id)
	}
	t.Header = extendHeader(t.Header, fields)

	if err := s.write(t); err != nil {
		l.Unlock()
		return err
	}
	l.Unlock()

	s.notify(ctx, Change{Table: table, Kind: ChangeUpdated, Key: id, Fields: fields.Clone()})
	return nil
}

// Delete removes the rows whose key equals id.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	schema, ok := schemas[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lock(table)
	l.Lock()

	t, err := s.read(table, schema)
	if err != nil {
		l.Unlock()
		return err
	}

	before := len(t.Rows)
	t.Rows = slices.DeleteFunc(t.Rows, func(r Record) bool {
		return r[schema.Key] == id
	})
	if len(t.Rows) == before {
		l.Unlock()
		return fmt.Errorf("%w: %s %s=%s", ErrNotFound, table, schema.Key, id)
	}

	if err := s.write(t); err != nil {
		l.Unlock()
		return err
	}
	l.Unlock()

	s.notify(ctx, Change{Table: table, Kind: ChangeDeleted, Key: id})
	return nil
}

// Save replaces a table wholesale.
func (s *Store) Save(ctx context.Context, table string, t *Table) error {
	schema, ok := schemas[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := &Table{Name: table, Header: mergeHeader(t.Header, schema.Columns)}
	for _, r := range t.Rows {
		out.Header = extendHeader(out.Header, r)
		out.Rows = append(out.Rows, r.Clone())
	}

	l := s.lock(table)
	l.Lock()
	err := s.write(out)
	l.Unlock()
	if err != nil {
		return err
	}

	s.notify(ctx, Change{Table: table, Kind: ChangeReplaced})
	return nil
}

// Mutate runs fn on a snapshot of the table under the table's write lock and saves the
// result when fn returns nil. It is used for read-modify-write sequences that must not
// interleave with other writers, such as "update if present, otherwise add".
func (s *Store) Mutate(ctx context.Context, table string, fn func(t *Table) error) error {
	schema, ok := schemas[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lock(table)
	l.Lock()

	t, err := s.read(table, schema)
	if err != nil {
		l.Unlock()
		return err
	}
	if err := fn(t); err != nil {
		l.Unlock()
		return err
	}
	for _, r := range t.Rows {
		if schema.IntKey && r[schema.Key] == "" {
			r[schema.Key] = strconv.Itoa(nextID(t, schema.Key))
		}
		if r["created_date"] == "" {
			r["created_date"] = s.now().Format(DateTimeLayout)
		}
		t.Header = extendHeader(t.Header, r)
	}
	if err := s.write(t); err != nil {
		l.Unlock()
		return err
	}
	l.Unlock()

	s.notify(ctx, Change{Table: table, Kind: ChangeReplaced})
	return nil
}

// NextID returns the id the next Add would assign.
func NextID(t *Table) int {
	schema, ok := schemas[t.Name]
	if !ok || !schema.IntKey {
		return 0
	}
	return nextID(t, schema.Key)
}

func nextID(t *Table, key string) int {
	maxID := 0
	for _, r := range t.Rows {
		if id := r.Int(key); id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// read loads a table from disk. The caller holds the table lock.
func (s *Store) read(table string, schema Schema) (*Table, error) {
	t := &Table{Name: table, Header: slices.Clone(schema.Columns)}

	data, err := os.ReadFile(s.Path(table))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return t, nil
		}
		return nil, fmt.Errorf("failed to read table %s: %w", table, err)
	}
	data = bytes.TrimPrefix(data, []byte(bom))
	if len(bytes.TrimSpace(data)) == 0 {
		return t, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, table, err)
	}
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, table, err)
		}
		rec := make(Record, len(header))
		for i, col := range header {
			rec[col] = fields[i]
		}
		t.Rows = append(t.Rows, rec)
	}

	// older files may lack columns added later
	t.Header = mergeHeader(header, schema.Columns)
	return t, nil
}

// write replaces the table file atomically. The caller holds the table lock.
func (s *Store) write(t *Table) error {
	var buf bytes.Buffer
	buf.WriteString(bom)
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return fmt.Errorf("failed to encode table %s: %w", t.Name, err)
	}
	row := make([]string, len(t.Header))
	for _, r := range t.Rows {
		for i, col := range t.Header {
			row[i] = r[col]
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to encode table %s: %w", t.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode table %s: %w", t.Name, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := atomic.WriteFile(s.Path(t.Name), &buf); err != nil {
		log.Error("failed to write table", "table", t.Name, "error", err)
		return fmt.Errorf("failed to write table %s: %w", t.Name, err)
	}
	return nil
}

func mergeHeader(header, columns []string) []string {
	out := slices.Clone(header)
	for _, c := range columns {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// extendHeader appends the record's unknown columns in sorted order.
func extendHeader(header []string, rec Record) []string {
	var extra []string
	for col := range rec {
		if !slices.Contains(header, col) {
			extra = append(extra, col)
		}
	}
	slices.Sort(extra)
	return append(header, extra...)
}
