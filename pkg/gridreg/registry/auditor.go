package registry

import (
	"bytes"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

// Auditor validates and repairs a network's group table against the current
// state of the entity store. It exists because element tables are mutated
// out-of-band: rows get deleted or renumbered by tooling the registry never
// sees. Both passes are idempotent and never touch the store itself; read
// paths stay total and repair is confined here.
type Auditor struct {
	db        *gorm.DB
	resolver  *Resolver
	networkID uint
}

// NewAuditor returns an auditor over the network's group table.
func NewAuditor(db *gorm.DB, st store.Store, networkID uint) *Auditor {
	return &Auditor{db: db, resolver: NewResolver(st), networkID: networkID}
}

// Normalize coerces malformed member payloads (a bare scalar or JSON null
// where an array belongs) into proper single-element arrays and persists the
// repaired form. Returns the number of rows rewritten. Running it again
// changes nothing.
func (a *Auditor) Normalize() (int, error) {
	type rawEntry struct {
		ID      uint
		Members string
	}
	var raws []rawEntry
	err := a.db.Model(&models.GroupEntry{}).
		Where("network_id = ?", a.networkID).
		Select("id", "members").
		Scan(&raws).Error
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, raw := range raws {
		if isJSONArray(raw.Members) {
			continue
		}
		// The lenient column scanner wraps the scalar; saving writes the
		// canonical array form back.
		var entry models.GroupEntry
		if err := a.db.First(&entry, raw.ID).Error; err != nil {
			return repaired, err
		}
		if err := a.db.Model(&entry).Update("members", entry.Members).Error; err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

// PruneDangling removes group entries whose members no longer resolve at all
// and shrinks entries that resolve only partially. Entries are never grown:
// repair can drop members, never invent them. A group whose last entry is
// pruned disappears from the group table.
func (a *Auditor) PruneDangling() ([]Diagnostic, error) {
	var entries []models.GroupEntry
	err := a.db.Where("network_id = ?", a.networkID).
		Order("group_id, element_type").Find(&entries).Error
	if err != nil {
		return nil, err
	}

	var notices []Diagnostic
	for i := range entries {
		e := &entries[i]
		mode := modeOf(e)
		kept := models.MemberList{}
		for _, m := range e.Members {
			if a.resolver.ResolvesAny(e.ElementType, m, mode) {
				kept = append(kept, m)
			}
		}
		switch {
		case len(e.Members) > 0 && len(kept) == 0:
			if err := a.db.Delete(e).Error; err != nil {
				return notices, err
			}
			notices = append(notices, Diagnostic{
				Kind:        DiagDanglingEntry,
				GroupID:     e.GroupID,
				ElementType: e.ElementType,
				Detail: fmt.Sprintf("group %d (%s): no %s member resolves anymore, entry removed",
					e.GroupID, e.Name, e.ElementType),
			})
		case len(kept) < len(e.Members):
			if err := a.db.Model(e).Update("members", kept).Error; err != nil {
				return notices, err
			}
			log.Printf("pruned %d dangling %s member(s) from group %d (%s)",
				len(e.Members)-len(kept), e.ElementType, e.GroupID, e.Name)
			notices = append(notices, Diagnostic{
				Kind:        DiagShrunkEntry,
				GroupID:     e.GroupID,
				ElementType: e.ElementType,
				Detail: fmt.Sprintf("group %d (%s): %d of %d %s members still resolve",
					e.GroupID, e.Name, len(kept), len(e.Members), e.ElementType),
			})
		}
	}
	return notices, nil
}

func isJSONArray(raw string) bool {
	trimmed := bytes.TrimSpace([]byte(raw))
	return len(trimmed) > 0 && trimmed[0] == '['
}
