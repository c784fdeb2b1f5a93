package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/chroniclekeeper/chronicle/settings"
)

const settingEntities = "entities"

// ErrInvalidEntityType is returned for a kind outside the known set.
var ErrInvalidEntityType = errors.New("invalid entity type")

// EntityKind names a category of campaign entity.
type EntityKind string

const (
	KindNPC      EntityKind = "npcs"
	KindLocation EntityKind = "locations"
	KindItem     EntityKind = "items"
	KindFaction  EntityKind = "factions"
)

var entityKinds = []EntityKind{KindNPC, KindLocation, KindItem, KindFaction}

// ValidKind reports whether kind is one of the known entity categories.
func ValidKind(kind EntityKind) bool {
	switch kind {
	case KindNPC, KindLocation, KindItem, KindFaction:
		return true
	}
	return false
}

// Relationship is a directed edge from one entity to another.
type Relationship struct {
	TargetID     string `json:"targetId"`
	Relationship string `json:"relationship"`
}

// NPCData holds the fields specific to non-player characters.
type NPCData struct {
	Personality   string         `json:"personality,omitempty"`
	Motivation    string         `json:"motivation,omitempty"`
	Status        string         `json:"status,omitempty"`
	Location      string         `json:"location,omitempty"`
	Faction       string         `json:"faction,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// LocationData holds the fields specific to places.
type LocationData struct {
	Features    []string `json:"features,omitempty"`
	Connections []string `json:"connections,omitempty"`
	Visited     bool     `json:"visited,omitempty"`
}

// ItemData holds the fields specific to objects.
type ItemData struct {
	Properties []string `json:"properties,omitempty"`
	Owner      string   `json:"owner,omitempty"`
	Location   string   `json:"location,omitempty"`
	History    []string `json:"history,omitempty"`
}

// FactionData holds the fields specific to organizations.
type FactionData struct {
	Goals         []string       `json:"goals,omitempty"`
	Headquarters  string         `json:"headquarters,omitempty"`
	Members       []string       `json:"members,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// Entity is a campaign entity. The common fields apply to every kind;
// exactly one of the kind-specific pointers is set, matching Kind.
// Extra catches fields the model invents that have no typed home.
type Entity struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        EntityKind `json:"kind"`
	Description string     `json:"description,omitempty"`
	Notes       []string   `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	NPC      *NPCData      `json:"npc,omitempty"`
	Location *LocationData `json:"location,omitempty"`
	Item     *ItemData     `json:"item,omitempty"`
	Faction  *FactionData  `json:"faction,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// EntityMatch is a search hit with its relevance score.
type EntityMatch struct {
	Entity
	Score float64
}

// EntityStore tracks the campaign's NPCs, locations, items, and
// factions, keyed by id or case-insensitive name within a kind.
type EntityStore struct {
	store    settings.Store
	entities map[EntityKind][]Entity
}

// NewEntityStore creates an empty store persisting to store.
func NewEntityStore(store settings.Store) *EntityStore {
	return &EntityStore{
		store:    store,
		entities: make(map[EntityKind][]Entity),
	}
}

// Load restores entities from the settings store.
func (s *EntityStore) Load(ctx context.Context) error {
	var entities map[EntityKind][]Entity
	err := s.store.Get(ctx, settingEntities, &entities)
	if errors.Is(err, settings.ErrNotFound) {
		s.entities = make(map[EntityKind][]Entity)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	if entities == nil {
		entities = make(map[EntityKind][]Entity)
	}
	s.entities = entities
	log.Printf("[ENTITY] Loaded %d entities", s.Size())
	return nil
}

func (s *EntityStore) save(ctx context.Context) error {
	if err := s.store.Set(ctx, settingEntities, s.entities); err != nil {
		log.Printf("[ENTITY] Save failed (in-memory state still authoritative): %v", err)
		return fmt.Errorf("save entities: %w", err)
	}
	return nil
}

// Save persists all entities immediately.
func (s *EntityStore) Save(ctx context.Context) error {
	return s.save(ctx)
}

// Size returns the total entity count across all kinds.
func (s *EntityStore) Size() int {
	n := 0
	for _, list := range s.entities {
		n += len(list)
	}
	return n
}

// Get returns the entity with the given id or case-insensitive name
// within kind.
func (s *EntityStore) Get(kind EntityKind, idOrName string) (Entity, bool) {
	idx := s.find(kind, idOrName)
	if idx < 0 {
		return Entity{}, false
	}
	return s.entities[kind][idx], true
}

// GetByID returns the entity with the given id, searching every kind.
func (s *EntityStore) GetByID(id string) (Entity, bool) {
	for _, kind := range entityKinds {
		for _, e := range s.entities[kind] {
			if e.ID == id {
				return e, true
			}
		}
	}
	return Entity{}, false
}

// GetAll returns a copy of every entity of the given kind.
func (s *EntityStore) GetAll(kind EntityKind) []Entity {
	out := make([]Entity, len(s.entities[kind]))
	copy(out, s.entities[kind])
	return out
}

// All returns a copy of every entity across all kinds.
func (s *EntityStore) All() []Entity {
	var out []Entity
	for _, kind := range entityKinds {
		out = append(out, s.entities[kind]...)
	}
	return out
}

func (s *EntityStore) find(kind EntityKind, idOrName string) int {
	for i, e := range s.entities[kind] {
		if e.ID == idOrName || strings.EqualFold(e.Name, idOrName) {
			return i
		}
	}
	return -1
}

// Upsert creates the entity or merges it into an existing one matched by
// id or name within its kind. On merge, non-zero incoming fields
// overwrite, notes append, and CreatedAt is preserved. Returns the
// stored entity.
func (s *EntityStore) Upsert(ctx context.Context, entity Entity) (Entity, error) {
	if !ValidKind(entity.Kind) {
		return Entity{}, fmt.Errorf("%w: %q", ErrInvalidEntityType, entity.Kind)
	}
	if entity.Name == "" && entity.ID == "" {
		return Entity{}, errors.New("entity needs a name or id")
	}

	now := time.Now()

	key := entity.ID
	if key == "" {
		key = entity.Name
	}
	if idx := s.find(entity.Kind, key); idx >= 0 {
		existing := &s.entities[entity.Kind][idx]
		mergeEntity(existing, entity)
		existing.UpdatedAt = now
		return *existing, s.save(ctx)
	}

	if entity.ID == "" {
		entity.ID = fmt.Sprintf("%s_%d", entity.Kind, now.UnixMilli())
	}
	entity.CreatedAt = now
	entity.UpdatedAt = now
	s.entities[entity.Kind] = append(s.entities[entity.Kind], entity)
	return entity, s.save(ctx)
}

func mergeEntity(dst *Entity, src Entity) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	dst.Notes = append(dst.Notes, src.Notes...)
	for k, v := range src.Extra {
		if dst.Extra == nil {
			dst.Extra = make(map[string]string)
		}
		dst.Extra[k] = v
	}

	switch {
	case src.NPC != nil:
		if dst.NPC == nil {
			dst.NPC = &NPCData{}
		}
		mergeNPC(dst.NPC, src.NPC)
	case src.Location != nil:
		if dst.Location == nil {
			dst.Location = &LocationData{}
		}
		mergeLocation(dst.Location, src.Location)
	case src.Item != nil:
		if dst.Item == nil {
			dst.Item = &ItemData{}
		}
		mergeItem(dst.Item, src.Item)
	case src.Faction != nil:
		if dst.Faction == nil {
			dst.Faction = &FactionData{}
		}
		mergeFaction(dst.Faction, src.Faction)
	}
}

func mergeNPC(dst, src *NPCData) {
	if src.Personality != "" {
		dst.Personality = src.Personality
	}
	if src.Motivation != "" {
		dst.Motivation = src.Motivation
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	if src.Location != "" {
		dst.Location = src.Location
	}
	if src.Faction != "" {
		dst.Faction = src.Faction
	}
	for _, rel := range src.Relationships {
		upsertRelationship(&dst.Relationships, rel)
	}
}

func mergeLocation(dst, src *LocationData) {
	dst.Features = appendUnique(dst.Features, src.Features)
	dst.Connections = appendUnique(dst.Connections, src.Connections)
	if src.Visited {
		dst.Visited = true
	}
}

func mergeItem(dst, src *ItemData) {
	dst.Properties = appendUnique(dst.Properties, src.Properties)
	if src.Owner != "" {
		dst.Owner = src.Owner
	}
	if src.Location != "" {
		dst.Location = src.Location
	}
	dst.History = append(dst.History, src.History...)
}

func mergeFaction(dst, src *FactionData) {
	dst.Goals = appendUnique(dst.Goals, src.Goals)
	if src.Headquarters != "" {
		dst.Headquarters = src.Headquarters
	}
	dst.Members = appendUnique(dst.Members, src.Members)
	for _, rel := range src.Relationships {
		upsertRelationship(&dst.Relationships, rel)
	}
}

func appendUnique(dst, src []string) []string {
	for _, v := range src {
		found := false
		for _, existing := range dst {
			if strings.EqualFold(existing, v) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func upsertRelationship(rels *[]Relationship, rel Relationship) {
	for i := range *rels {
		if (*rels)[i].TargetID == rel.TargetID {
			(*rels)[i].Relationship = rel.Relationship
			return
		}
	}
	*rels = append(*rels, rel)
}

// UpdateRelationship records a directed edge from the entity identified
// by idOrName within kind to targetID, overwriting any existing edge to
// the same target. Only NPCs and factions carry relationship edges.
func (s *EntityStore) UpdateRelationship(ctx context.Context, kind EntityKind, idOrName, targetID, relationship string) error {
	idx := s.find(kind, idOrName)
	if idx < 0 {
		return fmt.Errorf("entity %q not found in %s", idOrName, kind)
	}
	e := &s.entities[kind][idx]

	switch kind {
	case KindNPC:
		if e.NPC == nil {
			e.NPC = &NPCData{}
		}
		upsertRelationship(&e.NPC.Relationships, Relationship{TargetID: targetID, Relationship: relationship})
	case KindFaction:
		if e.Faction == nil {
			e.Faction = &FactionData{}
		}
		upsertRelationship(&e.Faction.Relationships, Relationship{TargetID: targetID, Relationship: relationship})
	default:
		return fmt.Errorf("%s entities do not carry relationships", kind)
	}

	e.UpdatedAt = time.Now()
	return s.save(ctx)
}

// Delete removes the entity matched by id or name within kind.
func (s *EntityStore) Delete(ctx context.Context, kind EntityKind, idOrName string) error {
	idx := s.find(kind, idOrName)
	if idx < 0 {
		return fmt.Errorf("entity %q not found in %s", idOrName, kind)
	}
	list := s.entities[kind]
	s.entities[kind] = append(list[:idx], list[idx+1:]...)
	return s.save(ctx)
}

// searchText is the concatenation of everything knowable about an
// entity: name, description, notes, and the kind-specific prose fields.
// Matching runs over this; scoring stays weighted on name and
// description.
func searchText(e Entity) string {
	parts := []string{e.Name, e.Description}
	parts = append(parts, e.Notes...)
	switch {
	case e.NPC != nil:
		parts = append(parts, e.NPC.Personality, e.NPC.Motivation, e.NPC.Status)
	case e.Location != nil:
		parts = append(parts, e.Location.Features...)
	case e.Item != nil:
		parts = append(parts, e.Item.Properties...)
	case e.Faction != nil:
		parts = append(parts, e.Faction.Goals...)
	}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.ToLower(strings.Join(kept, " "))
}

// Search returns every entity matched by the query, best first. An
// entity matches when its name appears in the query, the whole query
// appears in its searchable text, or any query keyword does. Scoring is
// narrower than matching: name-in-query scores 10 (15 when the query is
// exactly the name), a description containing the full query scores 2,
// and each keyword adds 1 for a name hit or 0.5 for a description hit.
// An entity matched only through its other fields is still returned, at
// score zero.
func (s *EntityStore) Search(query string) []EntityMatch {
	queryLower := strings.ToLower(query)
	words := keywords(query)

	var results []EntityMatch
	for _, kind := range entityKinds {
		for _, e := range s.entities[kind] {
			nameLower := strings.ToLower(e.Name)
			descLower := strings.ToLower(e.Description)
			searchable := searchText(e)

			nameInQuery := nameLower != "" && strings.Contains(queryLower, nameLower)
			queryInEntity := strings.Contains(searchable, queryLower)
			keywordHits := 0
			for _, w := range words {
				if strings.Contains(searchable, w) {
					keywordHits++
				}
			}
			if !nameInQuery && !queryInEntity && keywordHits == 0 {
				continue
			}

			score := 0.0
			if nameInQuery {
				score += 10
			}
			if nameLower == queryLower {
				score += 5
			}
			if descLower != "" && strings.Contains(descLower, queryLower) {
				score += 2
			}
			for _, w := range words {
				if strings.Contains(nameLower, w) {
					score += 1
				}
				if strings.Contains(descLower, w) {
					score += 0.5
				}
			}

			results = append(results, EntityMatch{Entity: e, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// GetNPCsAtLocation returns NPCs whose recorded location matches the
// given name case-insensitively. NPCs pointing at unknown locations are
// simply not matched.
func (s *EntityStore) GetNPCsAtLocation(locationName string) []Entity {
	var out []Entity
	for _, e := range s.entities[KindNPC] {
		if e.NPC != nil && strings.EqualFold(e.NPC.Location, locationName) {
			out = append(out, e)
		}
	}
	return out
}

// GetFactionMembers returns NPCs whose faction matches the given name
// case-insensitively.
func (s *EntityStore) GetFactionMembers(factionName string) []Entity {
	var out []Entity
	for _, e := range s.entities[KindNPC] {
		if e.NPC != nil && strings.EqualFold(e.NPC.Faction, factionName) {
			out = append(out, e)
		}
	}
	return out
}

// Export returns the full entity map keyed by kind.
func (s *EntityStore) Export() map[EntityKind][]Entity {
	out := make(map[EntityKind][]Entity, len(s.entities))
	for kind, list := range s.entities {
		cp := make([]Entity, len(list))
		copy(cp, list)
		out[kind] = cp
	}
	return out
}

// Import replaces all entities and persists. Unknown kinds are rejected.
func (s *EntityStore) Import(ctx context.Context, entities map[EntityKind][]Entity) error {
	for kind := range entities {
		if !ValidKind(kind) {
			return fmt.Errorf("%w: %q", ErrInvalidEntityType, kind)
		}
	}
	s.entities = make(map[EntityKind][]Entity)
	for kind, list := range entities {
		s.entities[kind] = append([]Entity(nil), list...)
	}
	return s.save(ctx)
}

// Clear removes every entity and persists.
func (s *EntityStore) Clear(ctx context.Context) error {
	s.entities = make(map[EntityKind][]Entity)
	return s.save(ctx)
}
