package entities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryCoversAllSevenTypes(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 7, r.Len())

	for _, d := range r.All() {
		require.NotEmpty(t, d.APIPath)
		require.NotEmpty(t, d.Route)
		require.NotNil(t, d.Map)
		require.True(t, d.ValidStatus(StatusNew), "every type starts at new")
		require.True(t, d.ValidStatus(StatusPending), "every type supports pending")
	}
}

func TestStatusVocabulariesAreIndependent(t *testing.T) {
	r := NewRegistry()

	appointment, ok := r.Lookup(TypeAppointment)
	require.True(t, ok)
	require.True(t, appointment.ValidStatus("confirmed"))
	require.False(t, appointment.ValidStatus("reviewed"))

	jobApp, ok := r.Lookup(TypeJobApplication)
	require.True(t, ok)
	require.True(t, jobApp.ValidStatus("reviewed"))
	require.False(t, jobApp.ValidStatus("confirmed"))

	contact, ok := r.Lookup(TypeContact)
	require.True(t, ok)
	require.True(t, contact.ValidStatus("responded"))
	require.False(t, contact.ValidStatus("accepted"))
}

func TestParseRejectsUnknownType(t *testing.T) {
	r := NewRegistry()

	_, err := r.Parse("mortgage-lead")
	require.Error(t, err)

	d, err := r.Parse("job-application")
	require.NoError(t, err)
	require.Equal(t, TypeJobApplication, d.Type)
}

func TestDashboardURL(t *testing.T) {
	r := NewRegistry()

	d, err := r.Parse("job-application")
	require.NoError(t, err)
	require.Equal(t, "/dashboard/job-applications?id=abc123", d.DashboardURL("abc123"))
}

func TestKeyDisambiguatesAcrossTypes(t *testing.T) {
	a := Key{Type: TypeContact, ID: "42"}
	b := Key{Type: TypeAppointment, ID: "42"}

	require.NotEqual(t, a, b)
	require.NotEqual(t, a.String(), b.String())
}
