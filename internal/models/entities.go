package models

// Typed mirrors of the registry tables. The store and sync layers work
// on generic Rows end to end; these structs give API consumers and
// test fixtures compile-time field names for the same schema. A test
// keeps them aligned with the registry.

// Customer represents a buyer account in the local mirror.
type Customer struct {
	ID             UUID    `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	Phone          string  `db:"phone" json:"phone,omitempty"`
	Address        string  `db:"address" json:"address,omitempty"`
	GSTIN          string  `db:"gstin" json:"gstin,omitempty"`
	OpeningBalance float64 `db:"opening_balance" json:"opening_balance"`
	SyncStatus     string  `db:"sync_status" json:"sync_status"`
	CreatedAt      int64   `db:"created_at" json:"created_at"`
	UpdatedAt      int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Customer.
func (Customer) TableName() string {
	return "customers"
}

// Item represents a manufactured product.
type Item struct {
	ID         UUID    `db:"id" json:"id"`
	Name       string  `db:"name" json:"name"`
	Unit       string  `db:"unit" json:"unit"`
	Rate       float64 `db:"rate" json:"rate"`
	HSNCode    string  `db:"hsn_code" json:"hsn_code,omitempty"`
	SyncStatus string  `db:"sync_status" json:"sync_status"`
	CreatedAt  int64   `db:"created_at" json:"created_at"`
	UpdatedAt  int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Item.
func (Item) TableName() string {
	return "items"
}

// Entry represents an outward-movement (loading) entry.
//
// SerialNo is a human-facing sequence number unique per loading
// location; it is subject to collision repair during upload.
type Entry struct {
	ID              UUID    `db:"id" json:"id"`
	SerialNo        string  `db:"serial_no" json:"serial_no"`
	LoadingLocation string  `db:"loading_location" json:"loading_location"`
	ItemID          UUID    `db:"item_id" json:"item_id"`
	CustomerID      UUID    `db:"customer_id" json:"customer_id"`
	Quantity        float64 `db:"quantity" json:"quantity"`
	Rate            float64 `db:"rate" json:"rate"`
	EntryDate       string  `db:"entry_date" json:"entry_date"`
	VehicleNo       string  `db:"vehicle_no" json:"vehicle_no,omitempty"`
	SyncStatus      string  `db:"sync_status" json:"sync_status"`
	CreatedAt       int64   `db:"created_at" json:"created_at"`
	UpdatedAt       int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Entry.
func (Entry) TableName() string {
	return "entries"
}

// Sale represents a billed sale against a loading entry.
type Sale struct {
	ID              UUID    `db:"id" json:"id"`
	BillNo          string  `db:"bill_no" json:"bill_no"`
	LoadingLocation string  `db:"loading_location" json:"loading_location"`
	EntryID         UUID    `db:"entry_id" json:"entry_id"`
	CustomerID      UUID    `db:"customer_id" json:"customer_id"`
	Amount          float64 `db:"amount" json:"amount"`
	BillDate        string  `db:"bill_date" json:"bill_date"`
	IsPaid          bool    `db:"is_paid" json:"is_paid"`
	SyncStatus      string  `db:"sync_status" json:"sync_status"`
	CreatedAt       int64   `db:"created_at" json:"created_at"`
	UpdatedAt       int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Sale.
func (Sale) TableName() string {
	return "sales"
}

// Receipt represents a payment received against a sale.
type Receipt struct {
	ID          UUID    `db:"id" json:"id"`
	ReceiptNo   string  `db:"receipt_no" json:"receipt_no"`
	SaleID      UUID    `db:"sale_id" json:"sale_id"`
	CustomerID  UUID    `db:"customer_id" json:"customer_id"`
	Amount      float64 `db:"amount" json:"amount"`
	ReceiptDate string  `db:"receipt_date" json:"receipt_date"`
	Mode        string  `db:"mode" json:"mode"`
	SyncStatus  string  `db:"sync_status" json:"sync_status"`
	CreatedAt   int64   `db:"created_at" json:"created_at"`
	UpdatedAt   int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Receipt.
func (Receipt) TableName() string {
	return "receipts"
}

// LedgerLine represents one debit/credit line on a customer ledger.
type LedgerLine struct {
	ID         UUID    `db:"id" json:"id"`
	CustomerID UUID    `db:"customer_id" json:"customer_id"`
	EntryType  string  `db:"entry_type" json:"entry_type"` // debit, credit
	Amount     float64 `db:"amount" json:"amount"`
	Narration  string  `db:"narration" json:"narration,omitempty"`
	LineDate   string  `db:"line_date" json:"line_date"`
	SyncStatus string  `db:"sync_status" json:"sync_status"`
	CreatedAt  int64   `db:"created_at" json:"created_at"`
	UpdatedAt  int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for LedgerLine.
func (LedgerLine) TableName() string {
	return "ledger_lines"
}

// Note represents a credit or debit note issued to a customer.
type Note struct {
	ID         UUID    `db:"id" json:"id"`
	CustomerID UUID    `db:"customer_id" json:"customer_id"`
	Kind       string  `db:"kind" json:"kind"` // credit, debit
	Amount     float64 `db:"amount" json:"amount"`
	Reason     string  `db:"reason" json:"reason,omitempty"`
	NoteDate   string  `db:"note_date" json:"note_date"`
	SyncStatus string  `db:"sync_status" json:"sync_status"`
	CreatedAt  int64   `db:"created_at" json:"created_at"`
	UpdatedAt  int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Note.
func (Note) TableName() string {
	return "notes"
}

// CompanyProfile represents the business profile row.
type CompanyProfile struct {
	ID         UUID   `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Address    string `db:"address" json:"address,omitempty"`
	GSTIN      string `db:"gstin" json:"gstin,omitempty"`
	Phone      string `db:"phone" json:"phone,omitempty"`
	FYStart    string `db:"fy_start" json:"fy_start,omitempty"`
	SyncStatus string `db:"sync_status" json:"sync_status"`
	CreatedAt  int64  `db:"created_at" json:"created_at"`
	UpdatedAt  int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for CompanyProfile.
func (CompanyProfile) TableName() string {
	return "company_profile"
}
