// Package storetest builds throwaway stores backed by in-memory SQLite and
// BadgerDB.
package storetest

import (
	"testing"

	"github.com/Medi-Pal/medipal/internal/store"
	"github.com/stretchr/testify/require"
)

// New returns a Store that is closed when the test ends
func New(t testing.TB) *store.Store {
	t.Helper()

	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)

	kv, err := store.OpenInMemoryKV()
	require.NoError(t, err)

	s, err := store.NewWithDB(db, kv)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })
	return s
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// StringPtr returns a pointer to v
func StringPtr(v string) *string {
	return &v
}

// Prescription builds a prescription with a single medicine whose timings
// are given as label/dosage pairs
func Prescription(id, phone, drug, medType string, timings ...store.MedicineTiming) store.Prescription {
	return store.Prescription{
		ID:          id,
		PhoneNumber: phone,
		Doctor:      store.Doctor{RegistrationNo: "REG-1", Name: "Dr. Rao"},
		Medicines: []store.PrescriptionMedicine{{
			MedicineID: 1,
			BrandName:  drug + " Brand",
			DrugName:   drug,
			Type:       StringPtr(medType),
			DosageType: store.DosageTablet,
			Dosage:     1,
			Timings:    timings,
		}},
	}
}
