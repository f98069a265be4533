package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarweb-terminal/pkg/solaredge"
)

func newTestManager(t *testing.T) *StorageManager {
	t.Helper()

	sm, err := NewStorageManager(t.TempDir())
	require.NoError(t, err)

	return sm
}

func TestAccountRoundTrip(t *testing.T) {
	sm := newTestManager(t)

	require.NoError(t, sm.SaveAccount(Account{SiteID: "1234567", Username: "user@example.com"}))

	account, err := sm.GetAccount("1234567")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "user@example.com", account.Username)
	assert.False(t, account.AddedAt.IsZero(), "SaveAccount must stamp AddedAt")

	accounts, err := sm.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, sm.RemoveAccount("1234567"))

	account, err = sm.GetAccount("1234567")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestGetAccountMissing(t *testing.T) {
	sm := newTestManager(t)

	account, err := sm.GetAccount("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestEquipmentRegistryPerSite(t *testing.T) {
	sm := newTestManager(t)

	siteA := []EquipmentInfo{
		NewEquipmentInfo("A", 1, solaredge.Equipment{"id": float64(1), "name": "Inverter 1", "type": "INVERTER"}),
		NewEquipmentInfo("A", 2, solaredge.Equipment{"id": float64(2), "name": "Optimizer 2"}),
	}
	siteB := []EquipmentInfo{
		NewEquipmentInfo("B", 9, solaredge.Equipment{"id": float64(9), "name": "Inverter 9"}),
	}

	require.NoError(t, sm.UpdateEquipmentForSite("A", siteA))
	require.NoError(t, sm.UpdateEquipmentForSite("B", siteB))

	all, err := sm.GetAllEquipment()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// A second update replaces the site's entries instead of appending
	require.NoError(t, sm.UpdateEquipmentForSite("A", siteA[:1]))

	forA, err := sm.GetEquipmentForSite("A")
	require.NoError(t, err)
	require.Len(t, forA, 1)
	assert.Equal(t, 1, forA[0].EquipmentID)

	forB, err := sm.GetEquipmentForSite("B")
	require.NoError(t, err)
	assert.Len(t, forB, 1)

	registry, err := sm.GetEquipmentRegistry()
	require.NoError(t, err)
	assert.False(t, registry.LastUpdated.IsZero())
}

func TestRemoveAccountDropsEquipment(t *testing.T) {
	sm := newTestManager(t)

	require.NoError(t, sm.SaveAccount(Account{SiteID: "A", Username: "user@example.com"}))
	require.NoError(t, sm.UpdateEquipmentForSite("A", []EquipmentInfo{
		NewEquipmentInfo("A", 1, solaredge.Equipment{"id": float64(1)}),
	}))

	require.NoError(t, sm.RemoveAccount("A"))

	forA, err := sm.GetEquipmentForSite("A")
	require.NoError(t, err)
	assert.Empty(t, forA)
}

func TestNewEquipmentInfo(t *testing.T) {
	info := NewEquipmentInfo("A", 3, solaredge.Equipment{
		"id":   float64(3),
		"name": "Optimizer 1.1.3",
		"type": "POWER_BOX",
	})

	assert.Equal(t, "A", info.SiteID)
	assert.Equal(t, 3, info.EquipmentID)
	assert.Equal(t, "Optimizer 1.1.3", info.DisplayName)
	assert.Equal(t, "POWER_BOX", info.Type)

	// displayName is the fallback spelling some layout nodes use
	info = NewEquipmentInfo("A", 4, solaredge.Equipment{"id": float64(4), "displayName": "Inverter 4"})
	assert.Equal(t, "Inverter 4", info.DisplayName)
}
