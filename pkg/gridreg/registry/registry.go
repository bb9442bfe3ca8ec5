package registry

import (
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

// Construction-time validation failures. These are returned before any row is
// written, so a rejected create never leaves a partial group behind.
var (
	ErrLengthMismatch = errors.New("element types and member lists must have equal length")
	ErrDuplicateType  = errors.New("a group may have at most one entry per element type")
	ErrGroupIDTaken   = errors.New("group id is already in use")
	ErrBadIndexMember = errors.New("index-addressed members must be integers")
	ErrNoElementTypes = errors.New("a group needs at least one element type")
)

// Registry owns the group table of one network. All operations run against
// live storage; the registry holds no state of its own between calls.
type Registry struct {
	db        *gorm.DB
	store     store.Store
	resolver  *Resolver
	networkID uint
}

// New returns a registry over the network's group table and entity store.
func New(db *gorm.DB, st store.Store, networkID uint) *Registry {
	return &Registry{db: db, store: st, resolver: NewResolver(st), networkID: networkID}
}

// Resolver exposes the registry's resolver for collaborators that only read.
func (r *Registry) Resolver() *Resolver {
	return r.resolver
}

// GroupInfo is one group's identity in listings.
type GroupInfo struct {
	GroupID      uint     `json:"group_id"`
	Name         string   `json:"name"`
	ElementTypes []string `json:"element_types"`
}

// CreateGroup creates a group from parallel sequences: one entry per element
// type, members[i] belonging to elementTypes[i]. refColumns selects
// attribute addressing per type; nil entries (or a nil slice) mean index
// addressing. explicitID pins the group id, otherwise the next free id is
// allocated. Validation runs before any write.
func (r *Registry) CreateGroup(elementTypes []string, membersPerType [][]any, name string, refColumns []*string, explicitID *uint) (uint, error) {
	if len(elementTypes) == 0 {
		return 0, ErrNoElementTypes
	}
	if len(membersPerType) != len(elementTypes) {
		return 0, ErrLengthMismatch
	}
	if refColumns != nil && len(refColumns) != len(elementTypes) {
		return 0, ErrLengthMismatch
	}
	seen := map[string]bool{}
	for _, et := range elementTypes {
		if seen[et] {
			return 0, fmt.Errorf("%w: %q", ErrDuplicateType, et)
		}
		seen[et] = true
	}

	entries := make([]models.GroupEntry, len(elementTypes))
	for i, et := range elementTypes {
		mode := ByIndex
		if refColumns != nil && refColumns[i] != nil && *refColumns[i] != "" {
			mode = ByColumn(*refColumns[i])
		}
		members, err := normalizeForMode(membersPerType[i], mode)
		if err != nil {
			return 0, fmt.Errorf("%w (type %q)", err, et)
		}
		entries[i] = models.GroupEntry{
			NetworkID:       r.networkID,
			Name:            name,
			ElementType:     et,
			Members:         members,
			ReferenceColumn: refColumn(mode),
		}
	}

	var groupID uint
	err := r.db.Transaction(func(tx *gorm.DB) error {
		id, err := r.allocateGroupID(tx, explicitID)
		if err != nil {
			return err
		}
		groupID = id
		for i := range entries {
			entries[i].GroupID = groupID
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return groupID, nil
}

// CreateGroupFromMap is the mapping form of CreateGroup: keys are element
// types, values are member lists. Map keys are unique by construction, so
// the duplicate-type invariant holds structurally. Types are processed in
// sorted order so id allocation and entry layout are deterministic.
func (r *Registry) CreateGroupFromMap(membersByType map[string][]any, name string, refColumns map[string]string, explicitID *uint) (uint, error) {
	types := make([]string, 0, len(membersByType))
	for et := range membersByType {
		types = append(types, et)
	}
	sort.Strings(types)

	members := make([][]any, len(types))
	var cols []*string
	if len(refColumns) > 0 {
		cols = make([]*string, len(types))
	}
	for i, et := range types {
		members[i] = membersByType[et]
		if cols != nil {
			if c, ok := refColumns[et]; ok && c != "" {
				col := c
				cols[i] = &col
			}
		}
	}
	return r.CreateGroup(types, members, name, cols, explicitID)
}

func (r *Registry) allocateGroupID(tx *gorm.DB, explicitID *uint) (uint, error) {
	if explicitID != nil {
		var count int64
		if err := tx.Model(&models.GroupEntry{}).
			Where("network_id = ? AND group_id = ?", r.networkID, *explicitID).
			Count(&count).Error; err != nil {
			return 0, err
		}
		if count > 0 {
			return 0, ErrGroupIDTaken
		}
		return *explicitID, nil
	}
	var maxID int64
	if err := tx.Model(&models.GroupEntry{}).
		Where("network_id = ?", r.networkID).
		Select("COALESCE(MAX(group_id), -1)").
		Scan(&maxID).Error; err != nil {
		return 0, err
	}
	return uint(maxID + 1), nil
}

// Entries returns the group's rows ordered by element type.
func (r *Registry) Entries(groupID uint) ([]models.GroupEntry, error) {
	var entries []models.GroupEntry
	err := r.db.Where("network_id = ? AND group_id = ?", r.networkID, groupID).
		Order("element_type").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &UnknownGroupError{GroupID: groupID}
	}
	return entries, nil
}

// GroupName returns the group's human-readable name.
func (r *Registry) GroupName(groupID uint) (string, error) {
	entries, err := r.Entries(groupID)
	if err != nil {
		return "", err
	}
	return entries[0].Name, nil
}

// Groups lists all groups of the network.
func (r *Registry) Groups() ([]GroupInfo, error) {
	var entries []models.GroupEntry
	err := r.db.Where("network_id = ?", r.networkID).
		Order("group_id, element_type").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	var infos []GroupInfo
	for _, e := range entries {
		if len(infos) == 0 || infos[len(infos)-1].GroupID != e.GroupID {
			infos = append(infos, GroupInfo{GroupID: e.GroupID, Name: e.Name})
		}
		last := &infos[len(infos)-1]
		last.ElementTypes = append(last.ElementTypes, e.ElementType)
	}
	return infos, nil
}

// ResolveMembers returns the element ids the group currently addresses in
// one element type, in stored member order. A group without an entry for the
// type yields an empty slice.
func (r *Registry) ResolveMembers(groupID uint, elementType string) ([]int64, []Diagnostic, error) {
	entry, err := r.entryFor(groupID, elementType)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		return []int64{}, nil, nil
	}
	resolved, diags := r.resolver.Resolve(elementType, entry.Members, modeOf(entry))
	return resolved, diags, nil
}

// CountMembers returns the resolved member count per element type, i.e. live
// membership rather than the raw descriptor count.
func (r *Registry) CountMembers(groupID uint) (map[string]int, error) {
	entries, err := r.Entries(groupID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		resolved, _ := r.resolver.Resolve(e.ElementType, e.Members, modeOf(&e))
		counts[e.ElementType] = len(resolved)
	}
	return counts, nil
}

// AppendMembers adds descriptors to the group's entry for the element type,
// creating the entry when the group has none. Incoming descriptors in a
// different addressing mode than the entry are translated through the store
// first. Duplicates are kept unless dedupe is set.
func (r *Registry) AppendMembers(groupID uint, elementType string, newMembers []any, incoming RefMode, dedupe bool) error {
	entry, err := r.entryFor(groupID, elementType)
	if err != nil {
		return err
	}
	if entry == nil {
		name, err := r.GroupName(groupID)
		if err != nil {
			return err
		}
		members, err := normalizeForMode(newMembers, incoming)
		if err != nil {
			return err
		}
		return r.db.Create(&models.GroupEntry{
			NetworkID:       r.networkID,
			GroupID:         groupID,
			Name:            name,
			ElementType:     elementType,
			Members:         members,
			ReferenceColumn: refColumn(incoming),
		}).Error
	}

	converted, err := r.convert(elementType, newMembers, incoming, modeOf(entry))
	if err != nil {
		return err
	}
	merged := append(append(models.MemberList{}, entry.Members...), converted...)
	if dedupe {
		merged = dedupeMembers(merged)
	}
	return r.db.Model(entry).Update("members", merged).Error
}

// DropMembers removes descriptors from the group's entry for the element
// type, translating incoming descriptors to the entry's mode first. An entry
// emptied by the drop is deleted; a group whose last entry empties disappears
// with it.
func (r *Registry) DropMembers(groupID uint, elementType string, members []any, incoming RefMode) error {
	entry, err := r.entryFor(groupID, elementType)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	converted, err := r.convert(elementType, members, incoming, modeOf(entry))
	if err != nil {
		return err
	}
	remove := make(map[string]bool, len(converted))
	for _, m := range converted {
		remove[memberKey(m)] = true
	}
	kept := models.MemberList{}
	for _, m := range entry.Members {
		if !remove[memberKey(m)] {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return r.db.Delete(entry).Error
	}
	return r.db.Model(entry).Update("members", kept).Error
}

// DropGroup removes every entry of the group in one transaction.
func (r *Registry) DropGroup(groupID uint) error {
	if _, err := r.Entries(groupID); err != nil {
		return err
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Where("network_id = ? AND group_id = ?", r.networkID, groupID).
			Delete(&models.GroupEntry{}).Error
	})
}

// SetReferenceColumn rewrites the addressed entries (all of the group's, or
// the given subset) to attribute addressing on column: current members are
// resolved under their existing mode, the column's values are read off the
// store, and the member lists become those values. An empty column resets
// the entries to index addressing. The column must exist on every addressed
// type's table; nothing is rewritten otherwise. Duplicate column values are
// not checked here, per the documented uniqueness assumption.
func (r *Registry) SetReferenceColumn(groupID uint, column string, elementTypes ...string) error {
	entries, err := r.Entries(groupID)
	if err != nil {
		return err
	}
	addressed := filterEntries(entries, elementTypes)

	if column != "" {
		for _, e := range addressed {
			if !r.store.HasColumn(e.ElementType, column) {
				return &store.ColumnNotFoundError{ElementType: e.ElementType, Column: column}
			}
		}
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, e := range addressed {
			resolved, _ := r.resolver.Resolve(e.ElementType, e.Members, modeOf(&e))
			var members models.MemberList
			if column == "" {
				members = make(models.MemberList, len(resolved))
				for i, eid := range resolved {
					members[i] = eid
				}
			} else {
				values := r.store.GetColumn(e.ElementType, column)
				members = models.MemberList{}
				for _, eid := range resolved {
					if v, ok := values[eid]; ok {
						members = append(members, v)
					}
				}
			}
			updates := map[string]any{
				"members":          members,
				"reference_column": refColumn(RefMode{column: column}),
			}
			if err := tx.Model(&models.GroupEntry{}).Where("id = ?", e.ID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// entryFor returns the group's entry for one element type, nil when the
// group exists but has no such entry.
func (r *Registry) entryFor(groupID uint, elementType string) (*models.GroupEntry, error) {
	entries, err := r.Entries(groupID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ElementType == elementType {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// convert translates descriptors from one addressing mode to another through
// the store. Same-mode input is only normalized.
func (r *Registry) convert(elementType string, members []any, from, to RefMode) (models.MemberList, error) {
	if from == to {
		return normalizeForMode(members, to)
	}
	resolved, _ := r.resolver.Resolve(elementType, members, from)
	if column, byColumn := to.Column(); byColumn {
		if !r.store.HasColumn(elementType, column) {
			return nil, &store.ColumnNotFoundError{ElementType: elementType, Column: column}
		}
		values := r.store.GetColumn(elementType, column)
		out := models.MemberList{}
		for _, eid := range resolved {
			if v, ok := values[eid]; ok {
				out = append(out, v)
			}
		}
		return out, nil
	}
	out := make(models.MemberList, len(resolved))
	for i, eid := range resolved {
		out[i] = eid
	}
	return out, nil
}

func normalizeForMode(members []any, mode RefMode) (models.MemberList, error) {
	out := make(models.MemberList, 0, len(members))
	_, byColumn := mode.Column()
	for _, m := range members {
		if byColumn {
			out = append(out, m)
			continue
		}
		eid, ok := asEID(m)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrBadIndexMember, m)
		}
		out = append(out, eid)
	}
	return out, nil
}

func dedupeMembers(members models.MemberList) models.MemberList {
	seen := map[string]bool{}
	out := models.MemberList{}
	for _, m := range members {
		k := memberKey(m)
		if !seen[k] {
			seen[k] = true
			out = append(out, m)
		}
	}
	return out
}

func filterEntries(entries []models.GroupEntry, elementTypes []string) []models.GroupEntry {
	if len(elementTypes) == 0 {
		return entries
	}
	want := map[string]bool{}
	for _, et := range elementTypes {
		want[et] = true
	}
	out := make([]models.GroupEntry, 0, len(entries))
	for _, e := range entries {
		if want[e.ElementType] {
			out = append(out, e)
		}
	}
	return out
}
