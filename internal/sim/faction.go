package sim

import (
	"encoding/json"
	"sort"
)

// SubsystemFaction names the subsystem that owns group membership.
const SubsystemFaction = "faction"

// Faction delta types.
const (
	DeltaFactionFound       = "faction/found"
	DeltaFactionJoin        = "faction/join"
	DeltaFactionSetStanding = "faction/set_standing"
)

// Faction alert types.
const (
	AlertFactionJoined   = "faction/joined"
	AlertFactionRejected = "faction/rejected"
)

// Faction is one named group. Members stay sorted so serialization and
// comparison are stable.
type Faction struct {
	Members   []string           `json:"members"`
	Standings map[string]float64 `json:"standings,omitempty"`
}

// FactionState is the faction sub-tree, keyed by faction name.
type FactionState struct {
	Factions map[string]Faction `json:"factions"`
}

// CloneState implements State.
func (s *FactionState) CloneState() State {
	copied := &FactionState{Factions: make(map[string]Faction, len(s.Factions))}
	for name, faction := range s.Factions {
		cloned := Faction{Members: append([]string(nil), faction.Members...)}
		if faction.Standings != nil {
			cloned.Standings = make(map[string]float64, len(faction.Standings))
			for other, value := range faction.Standings {
				cloned.Standings[other] = value
			}
		}
		copied.Factions[name] = cloned
	}
	return copied
}

// WireView implements State.
func (s *FactionState) WireView() any { return s.Factions }

type factionFoundPayload struct {
	Faction string `json:"faction"`
}

type factionJoinPayload struct {
	Entity  string `json:"entity"`
	Faction string `json:"faction"`
}

type factionStandingPayload struct {
	Faction string  `json:"faction"`
	Other   string  `json:"other"`
	Value   float64 `json:"value"`
}

// FactionKernel tracks faction rosters and inter-faction standings.
type FactionKernel struct{}

// Name implements Kernel.
func (FactionKernel) Name() string { return SubsystemFaction }

// EmptyState implements Kernel.
func (FactionKernel) EmptyState() State {
	return &FactionState{Factions: make(map[string]Faction)}
}

// Step applies faction deltas in order.
func (FactionKernel) Step(_ Entities, state State, deltas []Delta, _ float64) (State, []Delta, []Alert) {
	current := state.(*FactionState)
	next := current.CloneState().(*FactionState)

	var accepted []Delta
	var alerts []Alert
	for _, delta := range deltas {
		switch delta.Type {
		case DeltaFactionFound:
			var p factionFoundPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.Faction == "" {
				alerts = append(alerts, rejectionAlert(AlertFactionRejected, delta, "malformed_payload"))
				continue
			}
			if _, exists := next.Factions[p.Faction]; exists {
				alerts = append(alerts, rejectionAlert(AlertFactionRejected, delta, "duplicate_faction"))
				continue
			}
			next.Factions[p.Faction] = Faction{Members: []string{}}
			accepted = append(accepted, delta)
		case DeltaFactionJoin:
			var p factionJoinPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.Entity == "" || p.Faction == "" {
				alerts = append(alerts, rejectionAlert(AlertFactionRejected, delta, "malformed_payload"))
				continue
			}
			faction, exists := next.Factions[p.Faction]
			if !exists {
				alerts = append(alerts, rejectionAlert(AlertFactionRejected, delta, "unknown_faction"))
				continue
			}
			if member(faction.Members, p.Entity) {
				alerts = append(alerts, rejectionAlert(AlertFactionRejected, delta, "already_member"))
				continue
			}
			faction.Members = append(faction.Members, p.Entity)
			sort.Strings(faction.Members)
			next.Factions[p.Faction] = faction
			accepted = append(accepted, delta)
			alerts = append(alerts, Alert{Type: AlertFactionJoined, Payload: map[string]any{
				"entity":  p.Entity,
				"faction": p.Faction,
			}})
		case DeltaFactionSetStanding:
			var p factionStandingPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.Faction == "" || p.Other == "" {
				alerts = append(alerts, rejectionAlert(AlertFactionRejected, delta, "malformed_payload"))
				continue
			}
			faction, exists := next.Factions[p.Faction]
			if !exists {
				alerts = append(alerts, rejectionAlert(AlertFactionRejected, delta, "unknown_faction"))
				continue
			}
			if faction.Standings == nil {
				faction.Standings = make(map[string]float64)
			}
			faction.Standings[p.Other] = p.Value
			next.Factions[p.Faction] = faction
			accepted = append(accepted, delta)
		default:
		}
	}
	return next, accepted, alerts
}

func member(members []string, entity string) bool {
	for _, m := range members {
		if m == entity {
			return true
		}
	}
	return false
}
