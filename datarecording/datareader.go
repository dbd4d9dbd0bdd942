package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
)

// QueryParams selects the rows a query returns.
type QueryParams struct {
	// Where is a WHERE clause without the keyword, such as "Opcode = ?".
	Where string

	// Args are the values of the placeholders in Where.
	Args []any

	// Limit caps the number of rows. Zero means no limit.
	Limit int

	// Offset skips rows. It only applies together with Limit.
	Offset int

	// OrderBy is an ORDER BY clause without the keywords.
	OrderBy string
}

// DataReader reads back what a DataRecorder wrote.
type DataReader interface {
	// MapTable tells the reader which struct the rows of a table scan into.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the mapped tables, sorted.
	ListTables() []string

	// Query returns pointers to the matching rows and the number of rows
	// that match without Limit and Offset.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	Close() error
}

type sqliteReader struct {
	*sql.DB

	typeMap map[string]reflect.Type
}

// NewReader opens a recording. The .sqlite3 extension may be left out.
func NewReader(dbFilename string) (DataReader, error) {
	if _, err := os.Stat(dbFilename); err != nil {
		if !strings.HasSuffix(dbFilename, ".sqlite3") {
			dbFilename += ".sqlite3"
		}
	}

	if _, err := os.Stat(dbFilename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		return nil, err
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a reader on an open database. The tables an
// EventHook writes are mapped already.
func NewReaderWithDB(db *sql.DB) DataReader {
	r := &sqliteReader{
		DB:      db,
		typeMap: make(map[string]reflect.Type),
	}

	r.MapTable(DeviceEventsTable, DeviceEvent{})
	r.MapTable(NVMOperationsTable, NVMOperation{})

	return r
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.typeMap[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables() []string {
	tables := make([]string, 0, len(r.typeMap))
	for table := range r.typeMap {
		tables = append(tables, table)
	}

	sort.Strings(tables)

	return tables
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	structType, ok := r.typeMap[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("no mapping found for table: %s", tableName)
	}

	where := ""
	if params.Where != "" {
		where = " WHERE " + params.Where
	}

	var totalCount int

	err := r.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s%s", tableName, where),
		params.Args...).Scan(&totalCount)
	if err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT * FROM %s%s", tableName, where)

	if params.OrderBy != "" {
		query += " ORDER BY " + params.OrderBy
	}

	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", params.Limit)
		if params.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", params.Offset)
		}
	}

	rows, err := r.QueryContext(ctx, query, params.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err := scanRows(rows, structType)
	if err != nil {
		return nil, 0, err
	}

	return results, totalCount, nil
}

// scanRows scans each row into a new struct. Columns without a field of the
// same name are dropped.
func scanRows(rows *sql.Rows, structType reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	fieldMap := make(map[string]int)
	for i := 0; i < structType.NumField(); i++ {
		fieldMap[structType.Field(i).Name] = i
	}

	var results []any

	for rows.Next() {
		structPtr := reflect.New(structType)
		structVal := structPtr.Elem()
		scanTargets := make([]any, len(columns))

		for i, colName := range columns {
			if fieldIdx, ok := fieldMap[colName]; ok {
				scanTargets[i] = structVal.Field(fieldIdx).Addr().Interface()
			} else {
				var placeholder any
				scanTargets[i] = &placeholder
			}
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}

		results = append(results, structPtr.Interface())
	}

	return results, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.DB.Close()
}
