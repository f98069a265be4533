package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"solarweb-terminal/pkg/solaredge"
)

// Account is a portal account bound to one monitored site. Passwords are
// never written to disk; they are supplied per invocation.
type Account struct {
	SiteID      string    `json:"siteId"`
	Username    string    `json:"username"`
	AddedAt     time.Time `json:"addedAt"`
	LastChecked time.Time `json:"lastChecked"`
}

// EquipmentInfo is one flattened layout node captured during discovery.
type EquipmentInfo struct {
	SiteID      string              `json:"siteId"`
	EquipmentID int                 `json:"equipmentId"`
	DisplayName string              `json:"displayName,omitempty"`
	Type        string              `json:"type,omitempty"`
	Attributes  solaredge.Equipment `json:"attributes"`
}

type EquipmentRegistry struct {
	Equipment   []EquipmentInfo `json:"equipment"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

type StorageManager struct {
	dataDir string
}

// NewStorageManager creates the data directory under baseDir; an empty
// baseDir means the current working directory.
func NewStorageManager(baseDir string) (*StorageManager, error) {
	if baseDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		baseDir = cwd
	}

	dataDir := filepath.Join(baseDir, ".solarweb-data")
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}

	return &StorageManager{
		dataDir: dataDir,
	}, nil
}

func (sm *StorageManager) GetDataDir() string {
	return sm.dataDir
}

func (sm *StorageManager) getAccountFilePath(siteID string) string {
	return filepath.Join(sm.dataDir, fmt.Sprintf("account_%s.json", siteID))
}

func (sm *StorageManager) getEquipmentRegistryPath() string {
	return filepath.Join(sm.dataDir, "equipment.json")
}

func (sm *StorageManager) ListAccounts() ([]Account, error) {
	pattern := filepath.Join(sm.dataDir, "account_*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var accounts []Account
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue // Skip files that can't be read
		}

		var account Account
		if err := json.Unmarshal(data, &account); err != nil {
			continue // Skip files that can't be parsed
		}

		accounts = append(accounts, account)
	}

	return accounts, nil
}

func (sm *StorageManager) GetAccount(siteID string) (*Account, error) {
	filePath := sm.getAccountFilePath(siteID)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Account not found
		}
		return nil, err
	}

	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}

	return &account, nil
}

func (sm *StorageManager) SaveAccount(account Account) error {
	if account.AddedAt.IsZero() {
		account.AddedAt = time.Now()
	}

	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return err
	}

	filePath := sm.getAccountFilePath(account.SiteID)
	return os.WriteFile(filePath, data, 0600)
}

func (sm *StorageManager) RemoveAccount(siteID string) error {
	filePath := sm.getAccountFilePath(siteID)

	if _, err := os.Stat(filePath); err == nil {
		if err := os.Remove(filePath); err != nil {
			return err
		}
	}

	return sm.removeEquipmentForSite(siteID)
}

func (sm *StorageManager) GetEquipmentRegistry() (*EquipmentRegistry, error) {
	filePath := sm.getEquipmentRegistryPath()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &EquipmentRegistry{
				Equipment:   []EquipmentInfo{},
				LastUpdated: time.Time{},
			}, nil
		}
		return nil, err
	}

	var registry EquipmentRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, err
	}

	return &registry, nil
}

func (sm *StorageManager) SaveEquipmentRegistry(registry *EquipmentRegistry) error {
	registry.LastUpdated = time.Now()

	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return err
	}

	filePath := sm.getEquipmentRegistryPath()
	return os.WriteFile(filePath, data, 0600)
}

func (sm *StorageManager) UpdateEquipmentForSite(siteID string, equipment []EquipmentInfo) error {
	registry, err := sm.GetEquipmentRegistry()
	if err != nil {
		return err
	}

	// Replace this site's entries, keep everything else
	var newEquipment []EquipmentInfo
	for _, eq := range registry.Equipment {
		if eq.SiteID != siteID {
			newEquipment = append(newEquipment, eq)
		}
	}

	newEquipment = append(newEquipment, equipment...)
	registry.Equipment = newEquipment

	return sm.SaveEquipmentRegistry(registry)
}

func (sm *StorageManager) removeEquipmentForSite(siteID string) error {
	registry, err := sm.GetEquipmentRegistry()
	if err != nil {
		return err
	}

	var newEquipment []EquipmentInfo
	for _, eq := range registry.Equipment {
		if eq.SiteID != siteID {
			newEquipment = append(newEquipment, eq)
		}
	}

	registry.Equipment = newEquipment
	return sm.SaveEquipmentRegistry(registry)
}

func (sm *StorageManager) GetEquipmentForSite(siteID string) ([]EquipmentInfo, error) {
	registry, err := sm.GetEquipmentRegistry()
	if err != nil {
		return nil, err
	}

	var siteEquipment []EquipmentInfo
	for _, eq := range registry.Equipment {
		if eq.SiteID == siteID {
			siteEquipment = append(siteEquipment, eq)
		}
	}

	return siteEquipment, nil
}

func (sm *StorageManager) GetAllEquipment() ([]EquipmentInfo, error) {
	registry, err := sm.GetEquipmentRegistry()
	if err != nil {
		return nil, err
	}

	return registry.Equipment, nil
}

// NewEquipmentInfo builds a registry entry from a flattened layout node,
// lifting the display fields the portal commonly sets.
func NewEquipmentInfo(siteID string, equipmentID int, attributes solaredge.Equipment) EquipmentInfo {
	info := EquipmentInfo{
		SiteID:      siteID,
		EquipmentID: equipmentID,
		Attributes:  attributes,
	}

	if name, ok := attributes["name"].(string); ok {
		info.DisplayName = name
	} else if name, ok := attributes["displayName"].(string); ok {
		info.DisplayName = name
	}
	if kind, ok := attributes["type"].(string); ok {
		info.Type = kind
	}

	return info
}
