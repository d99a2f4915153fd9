package prelr

import (
	"testing"

	"github.com/chandanyadavsde/vms-v2/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapFieldsProjectsReferencesAndScalars(t *testing.T) {
	raw := rawRecord(map[string]any{
		fieldState:        map[string]any{"id": "1", "refName": "Foo"},
		fieldSite:         "Bar",
		fieldFromLocation: map[string]any{"id": "12", "refName": "Chakan"},
		fieldContent:      nil,
		fieldStatus:       3,
		fieldConsignee:    map[string]any{"id": "5"},

		"custrecord_unmapped": "ignored",
	})

	got := MapFields(raw)

	require.NotNil(t, got.State)
	assert.Equal(t, "Foo", *got.State)
	require.NotNil(t, got.Site)
	assert.Equal(t, "Bar", *got.Site)
	require.NotNil(t, got.Plant)
	assert.Equal(t, "Chakan", *got.Plant)
	assert.Equal(t, got.FromLocation, got.Plant)
	require.NotNil(t, got.Status)
	assert.Equal(t, "3", *got.Status)
	assert.Nil(t, got.Content)
	assert.Nil(t, got.Consignee, "reference without refName")
	assert.Nil(t, got.Name)
}

func TestMapFieldsEmptyRecord(t *testing.T) {
	assert.Equal(t, models.PreLRFields{}, MapFields(models.NetSuiteRecord{}))
	assert.Equal(t, models.PreLRFields{}, MapFields(nil))
}

func TestMapFieldsIsStable(t *testing.T) {
	raw := rawRecord(map[string]any{
		fieldName:       "PRELR-1",
		fieldConsignor:  map[string]any{"id": "3", "refName": "ACME"},
		fieldSubsidiary: "India",
	})
	assert.Equal(t, MapFields(raw), MapFields(raw))
}
