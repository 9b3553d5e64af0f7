package registry

import (
	"os"
	"path/filepath"
	"testing"

	"finserv-applications/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValidAndIndexed(t *testing.T) {
	reg := Default()

	entry, ok := reg.Lookup(models.CategoryPersonalLoan)
	require.True(t, ok)
	assert.Equal(t, "personal_loans", entry.Collection)
	assert.Equal(t, "amount", entry.AmountField)
	assert.Equal(t, DefaultStatusField, entry.StatusField)
	assert.True(t, entry.HasAmount())

	health, ok := reg.Lookup(models.CategoryHealthInsurance)
	require.True(t, ok)
	assert.True(t, health.Anonymous)

	corp, ok := reg.Lookup(models.CategoryCompanyRegistration)
	require.True(t, ok)
	assert.False(t, corp.HasAmount())

	_, ok = reg.Lookup("crypto_loan")
	assert.False(t, ok)
}

func TestAll_ReturnsCopy(t *testing.T) {
	reg := Default()
	all := reg.All()
	all[0].Collection = "mutated"

	entry, _ := reg.Lookup(all[0].Category)
	assert.NotEqual(t, "mutated", entry.Collection)
}

func TestNew_RejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr string
	}{
		{"empty", nil, "no entries"},
		{"missing category", []Entry{{Collection: "x"}}, "category is required"},
		{"bad collection", []Entry{{Category: "personal_loan", Collection: "Personal Loans"}}, "lowercase identifier"},
		{"sql in amount field", []Entry{{Category: "personal_loan", Collection: "pl", AmountField: "amount; drop table"}}, "amountField"},
		{"duplicate category", []Entry{
			{Category: "personal_loan", Collection: "a"},
			{Category: "personal_loan", Collection: "b"},
		}, "duplicate category"},
		{"shared collection", []Entry{
			{Category: "personal_loan", Collection: "loans"},
			{Category: "home_loan", Collection: "loans"},
		}, "shared by"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("test", tt.entries...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	content := `{
		"version": "2.0.0",
		"entries": [
			{"category": "personal_loan", "collection": "personal_loans", "amountField": "amount"},
			{"category": "health_insurance", "collection": "health_insurance_inquiries", "anonymous": true, "statusField": "application_status"}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", reg.Version)
	assert.Equal(t, 2, reg.Len())

	health, ok := reg.Lookup(models.CategoryHealthInsurance)
	require.True(t, ok)
	assert.Equal(t, "application_status", health.StatusField)
}

func TestLoadRegistry_Errors(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"entries": [`), 0o600))
	_, err = LoadRegistry(path)
	assert.Error(t, err)
}
