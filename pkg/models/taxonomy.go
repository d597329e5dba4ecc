package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// The taxonomy is a fixed three-level tree. Level 1 is the root tier.
const (
	CategoryLevelMin = 1
	CategoryLevelMax = 3
)

// Category is one node in the three-level category taxonomy.
// (name, level, parent_id) is unique; level-1 nodes have no parent.
type Category struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	Name      string     `db:"name"       json:"name"`
	Level     int        `db:"level"      json:"level"`
	ParentID  *uuid.UUID `db:"parent_id"  json:"parent_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// ValidateCategoryPlacement checks the level/parent invariants before a
// category is looked up or inserted: level 1 has no parent, levels 2 and 3
// always have one.
func ValidateCategoryPlacement(name string, level int, parentID *uuid.UUID) error {
	if name == "" {
		return fmt.Errorf("category name is required")
	}
	if level < CategoryLevelMin || level > CategoryLevelMax {
		return fmt.Errorf("category level must be between %d and %d, got %d", CategoryLevelMin, CategoryLevelMax, level)
	}
	if level == CategoryLevelMin && parentID != nil {
		return fmt.Errorf("level 1 category %q must not have a parent", name)
	}
	if level > CategoryLevelMin && parentID == nil {
		return fmt.Errorf("level %d category %q requires a parent", level, name)
	}
	return nil
}

// IntentPath is the resolved three-level category path that uniquely keys an
// intent. Two classifier calls that pick different names for the same path
// must land on the same intent row.
type IntentPath struct {
	Level1ID uuid.UUID `json:"category_level_1_id"`
	Level2ID uuid.UUID `json:"category_level_2_id"`
	Level3ID uuid.UUID `json:"category_level_3_id"`
}

// Intent is a leaf classification unit addressed by a full category path.
// The category ids are nullable to tolerate legacy partial rows; new intents
// always carry the full path.
type Intent struct {
	ID               uuid.UUID  `db:"id"                  json:"id"`
	Name             string     `db:"name"                json:"name"`
	CategoryLevel1ID *uuid.UUID `db:"category_level_1_id" json:"category_level_1_id,omitempty"`
	CategoryLevel2ID *uuid.UUID `db:"category_level_2_id" json:"category_level_2_id,omitempty"`
	CategoryLevel3ID *uuid.UUID `db:"category_level_3_id" json:"category_level_3_id,omitempty"`
	IsProcessed      bool       `db:"is_processed"        json:"is_processed"`
	Resolutions      int        `db:"resolutions"         json:"resolutions"`
	CreatedAt        time.Time  `db:"created_at"          json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"          json:"updated_at"`
}

// IntentSnapshotRow is one row of the taxonomy snapshot handed to the
// classifier: an intent together with its fully resolved category path.
// Intents with incomplete paths are excluded from the snapshot.
type IntentSnapshotRow struct {
	IntentID       uuid.UUID `json:"intent_id"`
	IntentName     string    `json:"intent_name"`
	CategoryL1ID   uuid.UUID `json:"category_l1_id"`
	CategoryL1Name string    `json:"category_l1_name"`
	CategoryL2ID   uuid.UUID `json:"category_l2_id"`
	CategoryL2Name string    `json:"category_l2_name"`
	CategoryL3ID   uuid.UUID `json:"category_l3_id"`
	CategoryL3Name string    `json:"category_l3_name"`
}
