package prelr

import "github.com/chandanyadavsde/vms-v2/internal/models"

// NetSuite custom field ids of the Pre-LR header record.
const (
	fieldName          = "name"
	fieldState         = "custrecord_bg_sg_pre_lr_header_state"
	fieldBillingParty  = "custrecord_bs_sg_pre_lr_hd_billing_party"
	fieldBookingLoc    = "custrecord_bs_sg_pre_lr_hd_bokng_locatin"
	fieldBusinessType  = "custrecord_bs_sg_pre_lr_hd_business_type"
	fieldConsignee     = "custrecord_bs_sg_pre_lr_hd_consignee"
	fieldConsignor     = "custrecord_bs_sg_pre_lr_hd_consignor"
	fieldContent       = "custrecord_bs_sg_pre_lr_hd_content"
	fieldCustDocType   = "custrecord_bs_sg_pre_lr_hd_cust_r_doc_ty"
	fieldCustShipCode  = "custrecord_bs_sg_pre_lr_hd_cust_ship_cod"
	fieldFromLocation  = "custrecord_bs_sg_pre_lr_hd_from_location"
	fieldLocationCode  = "custrecord_bs_sg_pre_lr_hd_location_code"
	fieldMovementType  = "custrecord_bs_sg_pre_lr_hd_movement_type"
	fieldOperationType = "custrecord_bs_sg_pre_lr_hd_opertion_type"
	fieldSite          = "custrecord_bs_sg_pre_lr_hd_site"
	fieldStatus        = "custrecord_bs_sg_pre_lr_hd_status"
	fieldToLocation    = "custrecord_bs_sg_pre_lr_hd_to_location"
	fieldSubsidiary    = "custrecord_bs_sg_prelr_head_subsidiary"
	fieldBillPartyRe   = "custrecord_bs_sg_prelr_hed_billpartyre"
)

// MapFields projects a raw NetSuite Pre-LR record onto the normalized
// header fields. Reference fields yield their refName, scalars pass through,
// and anything missing or unrecognized stays nil. Plant mirrors the from
// location.
func MapFields(raw models.NetSuiteRecord) models.PreLRFields {
	return models.PreLRFields{
		Name:          raw.Text(fieldName),
		State:         raw.Text(fieldState),
		BillingParty:  raw.Text(fieldBillingParty),
		BookingLoc:    raw.Text(fieldBookingLoc),
		BusinessType:  raw.Text(fieldBusinessType),
		Consignee:     raw.Text(fieldConsignee),
		Consignor:     raw.Text(fieldConsignor),
		Content:       raw.Text(fieldContent),
		CustDocType:   raw.Text(fieldCustDocType),
		CustShipCode:  raw.Text(fieldCustShipCode),
		FromLocation:  raw.Text(fieldFromLocation),
		Plant:         raw.Text(fieldFromLocation),
		LocationCode:  raw.Text(fieldLocationCode),
		MovementType:  raw.Text(fieldMovementType),
		OperationType: raw.Text(fieldOperationType),
		Site:          raw.Text(fieldSite),
		Status:        raw.Text(fieldStatus),
		ToLocation:    raw.Text(fieldToLocation),
		Subsidiary:    raw.Text(fieldSubsidiary),
		BillPartyRe:   raw.Text(fieldBillPartyRe),
	}
}
