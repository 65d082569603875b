package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lunardb/lunar-db/internal/types"
)

// parquetRow carries one table row as a JSON document. Schemas vary per
// table, so the Parquet schema is fixed and the columns travel inside the
// document.
type parquetRow struct {
	TableName string `parquet:"name=table_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	DataJSON  string `parquet:"name=data_json, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// SaveParquet writes every table to <dir>/<name>.parquet with a
// <name>.schema.json sidecar describing the column types.
func (c *Catalog) SaveParquet(dir string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	for name, t := range c.tables {
		if err := writeParquetTable(dir, t); err != nil {
			return fmt.Errorf("failed to save table %s: %w", name, err)
		}
	}
	return nil
}

// LoadParquet loads every *.parquet file in dir into the catalog. Indexes
// are not restored; callers recreate the ones they need.
func (c *Catalog) LoadParquet(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read snapshot directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".parquet") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".parquet")
		t, err := readParquetTable(dir, name)
		if err != nil {
			return fmt.Errorf("failed to load table %s: %w", name, err)
		}
		c.mu.Lock()
		c.tables[t.Name] = t
		c.mu.Unlock()
		c.log.Infow("loaded table", "table", t.Name, "rows", len(t.Rows))
	}
	return nil
}

func writeParquetTable(dir string, t *types.Table) error {
	if err := writeSchemaSidecar(dir, t); err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(filepath.Join(dir, t.Name+".parquet"))
	if err != nil {
		return err
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range t.Rows {
		data, err := json.Marshal(rowToDoc(t.Schema, row))
		if err != nil {
			return err
		}
		if err := pw.Write(&parquetRow{TableName: t.Name, DataJSON: string(data)}); err != nil {
			return err
		}
	}
	return pw.WriteStop()
}

func readParquetTable(dir, name string) (*types.Table, error) {
	schema, err := readSchemaSidecar(dir, name)
	if err != nil {
		return nil, err
	}
	t := &types.Table{Name: name, Schema: schema}

	fr, err := local.NewLocalFileReader(filepath.Join(dir, name+".parquet"))
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(parquetRow), 4)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	numRows := int(pr.GetNumRows())
	if numRows == 0 {
		return t, nil
	}
	parquetRows := make([]parquetRow, numRows)
	if err := pr.Read(&parquetRows); err != nil {
		return nil, err
	}
	for _, prow := range parquetRows {
		if prow.TableName != name {
			continue
		}
		var doc map[string]interface{}
		dec := json.NewDecoder(strings.NewReader(prow.DataJSON))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
		row, err := docToRow(schema, doc)
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func writeSchemaSidecar(dir string, t *types.Table) error {
	data, err := json.MarshalIndent(schemaToDoc(t), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, t.Name+".schema.json"), data, 0644)
}

func readSchemaSidecar(dir, name string) (types.Schema, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+".schema.json"))
	if err != nil {
		return nil, fmt.Errorf("missing schema sidecar for table %s: %w", name, err)
	}
	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	doc.Name = name
	return docToSchema(doc)
}
