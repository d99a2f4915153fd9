package prelr

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/models"
	"github.com/chandanyadavsde/vms-v2/internal/store"
	"github.com/sirupsen/logrus"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// DateValue is a date as clients send it: a string in one of dateLayouts or
// a number of epoch milliseconds. Decoding never fails; parse reports
// values that are not dates.
type DateValue string

// UnmarshalJSON keeps strings as they are and any other JSON value as its
// literal text. null decodes as empty.
func (d *DateValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DateValue(s)
		return nil
	}
	if string(data) == "null" {
		*d = ""
		return nil
	}
	*d = DateValue(data)
	return nil
}

// LRInput is the create/update request for a lorry receipt.
type LRInput struct {
	PrelrName  string    `json:"prelrName"`
	LRNumber   string    `json:"lrNumber"`
	VehicleNo  string    `json:"vehicleNo"`
	ReqDate    DateValue `json:"reqDate"`
	DepartDate DateValue `json:"departDate"`
	CreatedBy  *string   `json:"createdBy,omitempty"`
}

// Linker attaches LRs to their parent Pre-LR detail.
type Linker struct {
	store store.Store
	log   *logrus.Entry
}

// NewLinker creates a Linker. A nil log uses the standard logger.
func NewLinker(st store.Store, log *logrus.Entry) *Linker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Linker{store: st, log: log.WithField("component", "lr-linker")}
}

// CreateOrUpdateLR resolves the parent by name and upserts the LR keyed on
// (parent, lrNumber). Nothing is written when validation or the parent
// lookup fails. The parent's lrs index is updated best effort.
func (l *Linker) CreateOrUpdateLR(ctx context.Context, in LRInput) (*models.LR, error) {
	lr, name, err := in.parse()
	if err != nil {
		return nil, err
	}

	parent, err := l.store.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}

	lr.PreLRID = parent.ID
	if err := l.store.UpsertLR(ctx, lr); err != nil {
		return nil, err
	}

	if err := l.store.AddLRRef(ctx, parent.ID, lr.ID); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"prelr": parent.ID,
			"lr":    lr.ID,
		}).Warn("failed to index LR on Pre-LR")
	}
	return lr, nil
}

// RebuildLRRefs recomputes every Pre-LR lrs index from the LR collection.
func (l *Linker) RebuildLRRefs(ctx context.Context) (int, error) {
	n, err := l.store.RebuildLRRefs(ctx)
	if err != nil {
		return 0, err
	}
	l.log.WithField("updated", n).Info("LR references rebuilt")
	return n, nil
}

// ListLRs returns the LRs linked to the Pre-LR with the given name.
func (l *Linker) ListLRs(ctx context.Context, prelrName string) ([]models.LR, error) {
	name := strings.TrimSpace(prelrName)
	if name == "" {
		return nil, &ValidationError{Fields: []string{"prelrName"}}
	}
	parent, err := l.store.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return l.store.ListLRs(ctx, parent.ID)
}

func (in LRInput) parse() (*models.LR, string, error) {
	name := strings.TrimSpace(in.PrelrName)
	number := strings.TrimSpace(in.LRNumber)
	vehicle := strings.TrimSpace(in.VehicleNo)
	reqRaw := strings.TrimSpace(string(in.ReqDate))
	departRaw := strings.TrimSpace(string(in.DepartDate))

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"prelrName", name},
		{"lrNumber", number},
		{"vehicleNo", vehicle},
		{"reqDate", reqRaw},
		{"departDate", departRaw},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, "", &ValidationError{Fields: missing}
	}

	var invalid []string
	reqDate, ok := parseDate(reqRaw)
	if !ok {
		invalid = append(invalid, "reqDate")
	}
	departDate, ok := parseDate(departRaw)
	if !ok {
		invalid = append(invalid, "departDate")
	}
	if len(invalid) > 0 {
		return nil, "", &ValidationError{Fields: invalid, Reason: "invalid date"}
	}

	lr := &models.LR{
		LRNumber:   number,
		VehicleNo:  vehicle,
		ReqDate:    reqDate,
		DepartDate: departDate,
	}
	if in.CreatedBy != nil {
		if by := strings.TrimSpace(*in.CreatedBy); by != "" {
			lr.CreatedBy = &by
		}
	}
	return lr, name, nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	// epoch milliseconds
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
