// Package datarecording records device events into a database.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table with given filename
	CreateTable(tableName string, sampleEntry any)

	// DataInsert writes a same-type task into table that already exists
	InsertData(tableName string, entry any)

	// ListTable returns a slice containing names of all tables
	ListTables() []string

	// Flush flushes all the buffered task into database
	Flush()

	// Close flushes and releases the database.
	Close() error
}

const defaultBatchSize = 100000

// Open creates a recorder for target. A clickhouse:// URL selects the
// ClickHouse backend. Anything else is the path of an SQLite database,
// without the .sqlite3 extension.
func Open(target string) DataRecorder {
	if strings.HasPrefix(target, "clickhouse://") {
		return NewClickHouse(target, defaultBatchSize)
	}

	return New(target)
}

// New creates an SQLite recorder writing to path.sqlite3. An empty path
// picks a unique name. It panics if the file exists.
func New(path string) DataRecorder {
	if path == "" {
		path = "ciuse_recording_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	fmt.Fprintf(os.Stderr, "Database created for recording: %s\n", filename)

	w := &sqliteWriter{
		db:        db,
		batchSize: defaultBatchSize,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { w.Flush() })

	return w
}

// table buffers the rows of one table until the next flush.
type table struct {
	structType reflect.Type
	insertSQL  string
	entries    []any
}

var sqliteTypes = map[reflect.Kind]string{
	reflect.Bool:    "INTEGER",
	reflect.Int:     "INTEGER",
	reflect.Int8:    "INTEGER",
	reflect.Int16:   "INTEGER",
	reflect.Int32:   "INTEGER",
	reflect.Int64:   "INTEGER",
	reflect.Uint:    "INTEGER",
	reflect.Uint8:   "INTEGER",
	reflect.Uint16:  "INTEGER",
	reflect.Uint32:  "INTEGER",
	reflect.Uint64:  "INTEGER",
	reflect.Float32: "REAL",
	reflect.Float64: "REAL",
	reflect.String:  "TEXT",
}

// columns returns "Name TYPE" for every field of sample, with the column
// types taken from types. Structs with other field kinds are rejected.
func columns(sample any, types map[reflect.Kind]string) ([]string, error) {
	typ := reflect.TypeOf(sample)
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, errors.New("entry is not a struct")
	}

	names := structs.Names(sample)
	cols := make([]string, 0, len(names))

	for i, name := range names {
		kind := typ.Field(i).Type.Kind()

		colType, ok := types[kind]
		if !ok {
			return nil, fmt.Errorf("field %s of kind %s cannot be recorded",
				name, kind)
		}

		cols = append(cols, name+" "+colType)
	}

	return cols, nil
}

func fieldValues(entry any) []any {
	values := reflect.ValueOf(entry)
	v := make([]any, values.NumField())

	for i := range v {
		v[i] = values.Field(i).Interface()
	}

	return v
}

// sqliteWriter buffers rows in memory and writes them in one transaction
// per flush.
type sqliteWriter struct {
	db *sql.DB

	tables     map[string]*table
	batchSize  int
	entryCount int
	closed     bool
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	cols, err := columns(sampleEntry, sqliteTypes)
	if err != nil {
		panic(err)
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n);",
		tableName, strings.Join(cols, ",\n\t"))
	if _, err := w.db.Exec(createSQL); err != nil {
		panic(fmt.Errorf("creating table %s: %w", tableName, err))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	w.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
		insertSQL: fmt.Sprintf("INSERT INTO %s VALUES (%s)",
			tableName, placeholders),
	}
}

func (w *sqliteWriter) InsertData(tableName string, entry any) {
	table, exists := w.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != table.structType {
		panic(fmt.Sprintf("entry of type %T does not fit table %s",
			entry, tableName))
	}

	table.entries = append(table.entries, entry)

	w.entryCount++
	if w.entryCount >= w.batchSize {
		w.Flush()
	}
}

// ListTables returns the table names in order.
func (w *sqliteWriter) ListTables() []string {
	tables := make([]string, 0, len(w.tables))
	for name := range w.tables {
		tables = append(tables, name)
	}

	sort.Strings(tables)

	return tables
}

func (w *sqliteWriter) Flush() {
	if err := w.flush(); err != nil {
		panic(err)
	}
}

func (w *sqliteWriter) flush() error {
	if w.entryCount == 0 || w.closed {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	for _, name := range w.ListTables() {
		if err := w.tables[name].write(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("writing table %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, t := range w.tables {
		t.entries = nil
	}
	w.entryCount = 0

	return nil
}

func (t *table) write(tx *sql.Tx) error {
	if len(t.entries) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(t.insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range t.entries {
		if _, err := stmt.Exec(fieldValues(entry)...); err != nil {
			return err
		}
	}

	return nil
}

// Close writes the buffered rows and closes the database. Closing twice is
// a no-op.
func (w *sqliteWriter) Close() error {
	if w.closed {
		return nil
	}

	err := w.flush()
	w.closed = true

	return errors.Join(err, w.db.Close())
}
