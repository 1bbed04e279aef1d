package sim

import "encoding/json"

// SubsystemInventory names the subsystem that owns carried items.
const SubsystemInventory = "inventory"

// Inventory delta types.
const (
	DeltaInventoryGrant = "inventory/grant"
	DeltaInventoryTake  = "inventory/take"
	DeltaInventoryDrop  = "inventory/drop"
)

// Inventory alert types.
const (
	AlertInventoryPickedUp    = "inventory/picked_up"
	AlertInventoryDropped     = "inventory/dropped"
	AlertInventoryCannotCarry = "inventory/cannot_carry"
	AlertInventoryRejected    = "inventory/rejected"
)

// InventoryItem is one carried item stack.
type InventoryItem struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// InventoryEntity is the kernel-side carry record for one entity.
type InventoryEntity struct {
	Capacity float64         `json:"capacity"`
	Load     float64         `json:"load"`
	Items    []InventoryItem `json:"items"`
}

// InventoryState is the inventory sub-tree.
type InventoryState struct {
	Entities map[string]InventoryEntity `json:"entities"`
}

// CloneState implements State.
func (s *InventoryState) CloneState() State {
	copied := &InventoryState{Entities: make(map[string]InventoryEntity, len(s.Entities))}
	for id, entity := range s.Entities {
		entity.Items = append([]InventoryItem(nil), entity.Items...)
		copied.Entities[id] = entity
	}
	return copied
}

// WireView implements State.
func (s *InventoryState) WireView() any { return s.Entities }

type inventoryGrantPayload struct {
	Entity   string  `json:"entity"`
	Capacity float64 `json:"capacity"`
	Load     float64 `json:"load"`
}

type inventoryItemPayload struct {
	Entity string  `json:"entity"`
	Item   string  `json:"item"`
	Weight float64 `json:"weight"`
}

// InventoryKernel enforces carry capacity on item movement.
type InventoryKernel struct{}

// Name implements Kernel.
func (InventoryKernel) Name() string { return SubsystemInventory }

// EmptyState implements Kernel.
func (InventoryKernel) EmptyState() State {
	return &InventoryState{Entities: make(map[string]InventoryEntity)}
}

// Step applies inventory deltas in order. A take that would push load past
// capacity is rejected whole with a cannot-carry alert; the entity's load is
// untouched.
func (InventoryKernel) Step(_ Entities, state State, deltas []Delta, _ float64) (State, []Delta, []Alert) {
	current := state.(*InventoryState)
	next := current.CloneState().(*InventoryState)

	var accepted []Delta
	var alerts []Alert
	for _, delta := range deltas {
		switch delta.Type {
		case DeltaInventoryGrant:
			var p inventoryGrantPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.Entity == "" || p.Capacity <= 0 {
				alerts = append(alerts, rejectionAlert(AlertInventoryRejected, delta, "malformed_payload"))
				continue
			}
			if _, exists := next.Entities[p.Entity]; exists {
				alerts = append(alerts, rejectionAlert(AlertInventoryRejected, delta, "duplicate_entity"))
				continue
			}
			load := p.Load
			if load < 0 {
				load = 0
			}
			next.Entities[p.Entity] = InventoryEntity{Capacity: p.Capacity, Load: load}
			accepted = append(accepted, delta)
		case DeltaInventoryTake:
			var p inventoryItemPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.Entity == "" || p.Item == "" || p.Weight < 0 {
				alerts = append(alerts, rejectionAlert(AlertInventoryRejected, delta, "malformed_payload"))
				continue
			}
			owner, exists := next.Entities[p.Entity]
			if !exists {
				alerts = append(alerts, rejectionAlert(AlertInventoryRejected, delta, "unknown_entity"))
				continue
			}
			if owner.Load+p.Weight > owner.Capacity {
				alerts = append(alerts, Alert{Type: AlertInventoryCannotCarry, Payload: map[string]any{
					"entity":   p.Entity,
					"item":     p.Item,
					"weight":   p.Weight,
					"load":     owner.Load,
					"capacity": owner.Capacity,
				}})
				continue
			}
			owner.Items = append(owner.Items, InventoryItem{Name: p.Item, Weight: p.Weight})
			owner.Load += p.Weight
			next.Entities[p.Entity] = owner
			accepted = append(accepted, delta)
			alerts = append(alerts, Alert{Type: AlertInventoryPickedUp, Payload: map[string]any{
				"entity": p.Entity,
				"item":   p.Item,
			}})
		case DeltaInventoryDrop:
			var p inventoryItemPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.Entity == "" || p.Item == "" {
				alerts = append(alerts, rejectionAlert(AlertInventoryRejected, delta, "malformed_payload"))
				continue
			}
			owner, exists := next.Entities[p.Entity]
			if !exists {
				alerts = append(alerts, rejectionAlert(AlertInventoryRejected, delta, "unknown_entity"))
				continue
			}
			idx := -1
			for i, item := range owner.Items {
				if item.Name == p.Item {
					idx = i
					break
				}
			}
			if idx < 0 {
				alerts = append(alerts, rejectionAlert(AlertInventoryRejected, delta, "item_not_held"))
				continue
			}
			dropped := owner.Items[idx]
			owner.Items = append(owner.Items[:idx], owner.Items[idx+1:]...)
			owner.Load -= dropped.Weight
			if owner.Load < 0 {
				owner.Load = 0
			}
			next.Entities[p.Entity] = owner
			accepted = append(accepted, delta)
			alerts = append(alerts, Alert{Type: AlertInventoryDropped, Payload: map[string]any{
				"entity": p.Entity,
				"item":   p.Item,
			}})
		default:
		}
	}
	return next, accepted, alerts
}
