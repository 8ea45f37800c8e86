package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Lllllllleong/doctagger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantIDs_FromEnvironment(t *testing.T) {
	blobs := &fakeBlobs{}
	store := NewConfigStore(blobs, " contoso.com , ,fabrikam.com")

	tenants, err := store.TenantIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"contoso.com", "fabrikam.com"}, tenants)
	assert.Empty(t, blobs.reads)
}

func TestTenantIDs_FallsBackToBlob(t *testing.T) {
	blobs := &fakeBlobs{objects: map[string]string{
		"global/tenants.json": `["t1", "", 42, " t2 "]`,
	}}
	store := NewConfigStore(blobs, "")

	tenants, err := store.TenantIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, tenants)
}

func TestTenantIDs_MissingBlobIsEmpty(t *testing.T) {
	store := NewConfigStore(&fakeBlobs{}, "")

	tenants, err := store.TenantIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestTenantIDs_ReadErrorIsResolutionFailure(t *testing.T) {
	store := NewConfigStore(&fakeBlobs{err: errors.New("permission denied")}, "")

	_, err := store.TenantIDs(context.Background())
	assert.ErrorIs(t, err, ErrConfigResolution)
}

func TestTargets_AppliesDefaults(t *testing.T) {
	blobs := &fakeBlobs{objects: map[string]string{
		"admin_contoso_com/upload_targets.json": `[
			{"label":"Invoices","siteId":"s1","driveId":"d1","folder":"Finance/Invoices","enabled":false},
			{"siteId":"s2","driveId":"d2"}
		]`,
	}}
	store := NewConfigStore(blobs, "")

	targets, err := store.Targets(context.Background(), "Admin@Contoso.com")
	require.NoError(t, err)
	assert.Equal(t, []models.Target{
		{Label: "Invoices", SiteID: "s1", DriveID: "d1", Folder: "Finance/Invoices", Enabled: false},
		{Label: "Unnamed", SiteID: "s2", DriveID: "d2", Folder: "", Enabled: true},
	}, targets)
}

func TestTargets_MissingBlobIsEmpty(t *testing.T) {
	targets, err := NewConfigStore(&fakeBlobs{}, "").Targets(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestTargets_MissingRequiredFieldsInvalid(t *testing.T) {
	blobs := &fakeBlobs{objects: map[string]string{
		"t1/upload_targets.json": `[{"siteId":"s1","driveId":"d1"},{"label":"broken","siteId":"s2"}]`,
	}}

	_, err := NewConfigStore(blobs, "").Targets(context.Background(), "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Contains(t, err.Error(), "target 1 is missing driveId")
}

func TestTargets_MalformedDocumentInvalid(t *testing.T) {
	blobs := &fakeBlobs{objects: map[string]string{"t1/upload_targets.json": `{"label":"x"}`}}

	_, err := NewConfigStore(blobs, "").Targets(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrConfigInvalid)
}
