package importexport

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/registry"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

// BuildSnapshot assembles a network's full group table export.
func BuildSnapshot(db *gorm.DB, networkID uint) (*Snapshot, error) {
	var network models.Network
	if err := db.First(&network, networkID).Error; err != nil {
		return nil, err
	}

	reg := registry.New(db, store.New(db, networkID), networkID)
	infos, err := reg.Groups()
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		SnapshotID: uuid.NewString(),
		Network:    network.Slug,
		ExportedAt: time.Now().UTC(),
		Groups:     []ExportedGroup{},
	}
	for _, info := range infos {
		entries, err := reg.Entries(info.GroupID)
		if err != nil {
			return nil, err
		}
		group := ExportedGroup{GroupID: info.GroupID, Name: info.Name}
		for _, e := range entries {
			group.Entries = append(group.Entries, ExportedEntry{
				ElementType:     e.ElementType,
				Members:         e.Members,
				ReferenceColumn: e.ReferenceColumn,
			})
		}
		snapshot.Groups = append(snapshot.Groups, group)
	}
	return snapshot, nil
}

// WriteSnapshot renders a snapshot as indented JSON.
func WriteSnapshot(w io.Writer, snapshot *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}
