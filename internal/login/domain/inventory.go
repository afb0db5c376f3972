package domain

import (
	"github.com/google/uuid"
)

// Well-known inventory library identifiers included in every login response.
const (
	// InventoryLibraryRoot is the fixed folder id of the shared grid library.
	InventoryLibraryRoot = "00000112-000f-0000-0000-000100bba000"
	// InventoryLibraryOwner is the fixed profile id that owns the shared grid
	// library.
	InventoryLibraryOwner = "11111111-1111-0000-0000-000100bba000"
)

// InventoryFolder is one folder of an inventory skeleton.
type InventoryFolder struct {
	FolderID    uuid.UUID `json:"folder_id"`
	ParentID    uuid.UUID `json:"parent_id"`
	Name        string    `json:"name"`
	TypeDefault int       `json:"type_default"`
	Version     int       `json:"version"`
}

// InventorySkeleton is the folder hierarchy fetched from the filesystem
// service at claim time.
type InventorySkeleton struct {
	RootFolderID uuid.UUID         `json:"root_folder_id"`
	Folders      []InventoryFolder `json:"folders"`
}
