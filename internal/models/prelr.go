package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PreLRHeader is a work-queue entry: one row per remote Pre-LR internal id,
// plus the ledger of whether its detail has been fetched.
type PreLRHeader struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	InternalID     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"internal_id"`
	DetailsFetched bool       `gorm:"default:false;index" json:"detailsFetched"`
	DetailRef      *string    `gorm:"type:uuid" json:"detailRef,omitempty"`
	FetchedAt      *time.Time `json:"fetchedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for PreLRHeader
func (PreLRHeader) TableName() string {
	return "pre_lr_headers"
}

// PreLRFields are the normalized header fields projected from the remote
// record. Every field is optional; nil means the remote value was absent.
type PreLRFields struct {
	Name          *string `gorm:"index" json:"name,omitempty"`
	State         *string `json:"state,omitempty"`
	BillingParty  *string `gorm:"column:billing_party" json:"billing_party,omitempty"`
	BookingLoc    *string `gorm:"column:booking_loc" json:"booking_loc,omitempty"`
	BusinessType  *string `gorm:"column:business_type" json:"business_type,omitempty"`
	Consignee     *string `json:"consignee,omitempty"`
	Consignor     *string `json:"consignor,omitempty"`
	Content       *string `json:"content,omitempty"`
	CustDocType   *string `gorm:"column:cust_doc_type" json:"cust_doc_type,omitempty"`
	CustShipCode  *string `gorm:"column:cust_ship_code" json:"cust_ship_code,omitempty"`
	FromLocation  *string `gorm:"column:from_location" json:"from_location,omitempty"`
	Plant         *string `gorm:"index" json:"plant,omitempty"` // duplicate of from_location for filtering
	LocationCode  *string `gorm:"column:location_code" json:"location_code,omitempty"`
	MovementType  *string `gorm:"column:movement_type" json:"movement_type,omitempty"`
	OperationType *string `gorm:"column:operation_type" json:"operation_type,omitempty"`
	Site          *string `json:"site,omitempty"`
	Status        *string `json:"status,omitempty"`
	ToLocation    *string `gorm:"column:to_location" json:"to_location,omitempty"`
	Subsidiary    *string `json:"subsidiary,omitempty"`
	BillPartyRe   *string `gorm:"column:bill_party_re" json:"bill_party_re,omitempty"`
}

// PreLRFieldColumns lists the columns backed by PreLRFields, in declaration
// order. A detail sync overwrites exactly these columns.
var PreLRFieldColumns = []string{
	"name", "state", "billing_party", "booking_loc", "business_type",
	"consignee", "consignor", "content", "cust_doc_type", "cust_ship_code",
	"from_location", "plant", "location_code", "movement_type",
	"operation_type", "site", "status", "to_location", "subsidiary",
	"bill_party_re",
}

// PreLRDetail is the normalized local copy of a remote Pre-LR record.
type PreLRDetail struct {
	ID         string `gorm:"type:uuid;primaryKey" json:"id"`
	InternalID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"internal_id"`

	PreLRFields `gorm:"embedded"`

	RawPayload datatypes.JSON `gorm:"type:jsonb" json:"rawPayload,omitempty"`
	FetchedAt  time.Time      `json:"fetchedAt"`

	// Denormalized child indexes. The authoritative relation lives on the
	// child (LR.PreLRID); these may lag and can be rebuilt.
	LRs        datatypes.JSONSlice[string] `gorm:"column:lrs;type:jsonb" json:"lrs"`
	Punchlists datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"punchlists"`
	Checklists datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"checklists"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for PreLRDetail
func (PreLRDetail) TableName() string {
	return "pre_lr_details"
}

// BeforeCreate assigns an id and empty reference arrays on insert
func (d *PreLRDetail) BeforeCreate(tx *gorm.DB) error {
	d.EnsureDefaults()
	return nil
}

// EnsureDefaults fills in the id and empty reference arrays of a new record.
func (d *PreLRDetail) EnsureDefaults() {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.LRs == nil {
		d.LRs = datatypes.JSONSlice[string]{}
	}
	if d.Punchlists == nil {
		d.Punchlists = datatypes.JSONSlice[string]{}
	}
	if d.Checklists == nil {
		d.Checklists = datatypes.JSONSlice[string]{}
	}
}

// LR is a lorry receipt linked to a parent Pre-LR detail.
// At most one LR exists per (PreLRID, LRNumber).
type LR struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	PreLRID    string    `gorm:"column:prelr_id;type:uuid;not null;index;uniqueIndex:idx_lr_prelr_number" json:"prelr"`
	LRNumber   string    `gorm:"column:lr_number;not null;uniqueIndex:idx_lr_prelr_number" json:"lrNumber"`
	VehicleNo  string    `gorm:"column:vehicle_no;not null" json:"vehicleNo"`
	ReqDate    time.Time `gorm:"not null" json:"reqDate"`
	DepartDate time.Time `gorm:"not null" json:"departDate"`
	CreatedBy  *string   `json:"createdBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	PreLR *PreLRDetail `gorm:"foreignKey:PreLRID" json:"-"`
}

// TableName specifies the table name for LR
func (LR) TableName() string {
	return "lrs"
}

// BeforeCreate assigns an id on insert
func (lr *LR) BeforeCreate(tx *gorm.DB) error {
	if lr.ID == "" {
		lr.ID = uuid.NewString()
	}
	return nil
}
