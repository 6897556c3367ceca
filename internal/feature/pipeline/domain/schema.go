package domain

// ColumnType is a warehouse column type.
type ColumnType string

const (
	ColumnInt    ColumnType = "INT"
	ColumnFloat  ColumnType = "FLOAT"
	ColumnString ColumnType = "STRING"
)

// Column is one column of a warehouse table.
type Column struct {
	Name string
	Type ColumnType
}

// TableRef names a schema-qualified warehouse table.
type TableRef struct {
	Schema string
	Name   string
}

func (t TableRef) String() string {
	return t.Schema + "." + t.Name
}

// StockPricesTable is the load target.
var StockPricesTable = TableRef{Schema: "public", Name: "stock_prices"}

// StockPricesColumns is the fixed schema of the formatted prices CSV.
var StockPricesColumns = []Column{
	{Name: "timestamp", Type: ColumnInt},
	{Name: "close", Type: ColumnFloat},
	{Name: "high", Type: ColumnFloat},
	{Name: "low", Type: ColumnFloat},
	{Name: "open", Type: ColumnFloat},
	{Name: "volume", Type: ColumnFloat},
	{Name: "date", Type: ColumnString},
}

// LoadRequest is what the coordinator hands the warehouse loader.
type LoadRequest struct {
	Source  string // "s3://{bucket}/{key}"
	Table   TableRef
	Columns []Column
}

// StockPricesLoad builds the load request for a located artifact.
func StockPricesLoad(bucket, key string) LoadRequest {
	cols := make([]Column, len(StockPricesColumns))
	copy(cols, StockPricesColumns)
	return LoadRequest{
		Source:  WarehouseSource(bucket, key),
		Table:   StockPricesTable,
		Columns: cols,
	}
}
