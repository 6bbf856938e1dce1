package state

import (
	"fmt"
	"sort"
	"strings"
)

// AssetMetadata describes an asset known to the ledger.
type AssetMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// RegisterAsset stores the metadata for an asset and records it in the asset
// index.
func (m *Manager) RegisterAsset(symbol, name string, decimals uint8) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("asset symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("asset %s: name must not be empty", normalized)
	}
	if existing, err := m.Asset(normalized); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("asset %s already registered", normalized)
	}
	list, err := m.AssetList()
	if err != nil {
		return err
	}
	list = append(list, normalized)
	sort.Strings(list)
	if err := m.KVPut(assetListKey, list); err != nil {
		return err
	}
	return m.KVPut(assetKey(normalized), &AssetMetadata{Symbol: normalized, Name: name, Decimals: decimals})
}

// Asset retrieves metadata for a registered asset, or nil when unknown.
func (m *Manager) Asset(symbol string) (*AssetMetadata, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	meta := new(AssetMetadata)
	ok, err := m.KVGet(assetKey(normalized), meta)
	if err != nil || !ok {
		return nil, err
	}
	return meta, nil
}

// AssetExists reports whether symbol has been registered.
func (m *Manager) AssetExists(symbol string) bool {
	meta, err := m.Asset(symbol)
	return err == nil && meta != nil
}

// AssetList returns all registered asset symbols in sorted order.
func (m *Manager) AssetList() ([]string, error) {
	var list []string
	if _, err := m.KVGet(assetListKey, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}
