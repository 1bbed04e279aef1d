package sim

import "encoding/json"

// SubsystemCombat names the subsystem that owns health pools.
const SubsystemCombat = "combat"

// Combat delta types.
const (
	DeltaCombatEnlist = "combat/enlist"
	DeltaCombatAttack = "combat/attack"
	DeltaCombatHeal   = "combat/heal"
)

// Combat alert types.
const (
	AlertCombatWounded    = "combat/wounded"
	AlertCombatEntityDied = "combat/entity_died"
	AlertCombatRejected   = "combat/rejected"
)

// Combatant status values.
const (
	CombatStatusHealthy = "healthy"
	CombatStatusWounded = "wounded"
	CombatStatusDead    = "dead"
)

// CombatEntity is the kernel-side combat record for one entity.
type CombatEntity struct {
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Status    string  `json:"status"`
}

// CombatState is the combat sub-tree.
type CombatState struct {
	Entities map[string]CombatEntity `json:"entities"`
}

// CloneState implements State.
func (s *CombatState) CloneState() State {
	copied := &CombatState{Entities: make(map[string]CombatEntity, len(s.Entities))}
	for id, entity := range s.Entities {
		copied.Entities[id] = entity
	}
	return copied
}

// WireView implements State; combat field names match the wire already.
func (s *CombatState) WireView() any { return s.Entities }

type combatEnlistPayload struct {
	ID        string  `json:"id"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
}

type combatAttackPayload struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Amount float64 `json:"amount"`
}

type combatHealPayload struct {
	Target string  `json:"target"`
	Amount float64 `json:"amount"`
}

// CombatKernel applies damage and healing and tracks status transitions.
type CombatKernel struct{}

// Name implements Kernel.
func (CombatKernel) Name() string { return SubsystemCombat }

// EmptyState implements Kernel.
func (CombatKernel) EmptyState() State {
	return &CombatState{Entities: make(map[string]CombatEntity)}
}

// Step applies combat deltas in order. Attacks against dead or unknown
// targets are rejected; a death fires AlertCombatEntityDied exactly once
// because the status transition gates the alert.
func (CombatKernel) Step(_ Entities, state State, deltas []Delta, _ float64) (State, []Delta, []Alert) {
	current := state.(*CombatState)
	next := current.CloneState().(*CombatState)

	var accepted []Delta
	var alerts []Alert
	for _, delta := range deltas {
		switch delta.Type {
		case DeltaCombatEnlist:
			var p combatEnlistPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.ID == "" || p.MaxHealth <= 0 {
				alerts = append(alerts, rejectionAlert(AlertCombatRejected, delta, "malformed_payload"))
				continue
			}
			if _, exists := next.Entities[p.ID]; exists {
				alerts = append(alerts, rejectionAlert(AlertCombatRejected, delta, "duplicate_entity"))
				continue
			}
			health := p.Health
			if health <= 0 || health > p.MaxHealth {
				health = p.MaxHealth
			}
			next.Entities[p.ID] = CombatEntity{Health: health, MaxHealth: p.MaxHealth, Status: CombatStatusHealthy}
			accepted = append(accepted, delta)
		case DeltaCombatAttack:
			var p combatAttackPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.Target == "" || p.Amount <= 0 {
				alerts = append(alerts, rejectionAlert(AlertCombatRejected, delta, "malformed_payload"))
				continue
			}
			target, exists := next.Entities[p.Target]
			if !exists {
				alerts = append(alerts, rejectionAlert(AlertCombatRejected, delta, "unknown_target"))
				continue
			}
			if target.Status == CombatStatusDead {
				alerts = append(alerts, rejectionAlert(AlertCombatRejected, delta, "target_dead"))
				continue
			}
			target.Health -= p.Amount
			if target.Health <= 0 {
				target.Health = 0
				target.Status = CombatStatusDead
				alerts = append(alerts, Alert{Type: AlertCombatEntityDied, Payload: map[string]any{
					"entity": p.Target,
					"source": p.Source,
				}})
			} else if target.Status == CombatStatusHealthy && target.Health < target.MaxHealth {
				target.Status = CombatStatusWounded
				alerts = append(alerts, Alert{Type: AlertCombatWounded, Payload: map[string]any{
					"entity": p.Target,
					"health": target.Health,
				}})
			}
			next.Entities[p.Target] = target
			accepted = append(accepted, delta)
		case DeltaCombatHeal:
			var p combatHealPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.Target == "" || p.Amount <= 0 {
				alerts = append(alerts, rejectionAlert(AlertCombatRejected, delta, "malformed_payload"))
				continue
			}
			target, exists := next.Entities[p.Target]
			if !exists {
				alerts = append(alerts, rejectionAlert(AlertCombatRejected, delta, "unknown_target"))
				continue
			}
			if target.Status == CombatStatusDead {
				alerts = append(alerts, rejectionAlert(AlertCombatRejected, delta, "target_dead"))
				continue
			}
			target.Health += p.Amount
			if target.Health >= target.MaxHealth {
				target.Health = target.MaxHealth
				target.Status = CombatStatusHealthy
			}
			next.Entities[p.Target] = target
			accepted = append(accepted, delta)
		default:
		}
	}
	return next, accepted, alerts
}
