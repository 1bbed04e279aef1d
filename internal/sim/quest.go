package sim

import "encoding/json"

// SubsystemQuest names the subsystem that owns quest progress.
const SubsystemQuest = "quest"

// Quest delta types.
const (
	DeltaQuestActivate = "quest/activate"
	DeltaQuestProgress = "quest/progress"
)

// Quest alert types.
const (
	AlertQuestActivated = "quest/activated"
	AlertQuestCompleted = "quest/completed"
	AlertQuestRejected  = "quest/rejected"
)

// Quest statuses.
const (
	QuestStatusActive   = "active"
	QuestStatusComplete = "complete"
)

// QuestEntry tracks one quest for one entity.
type QuestEntry struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Goal     int    `json:"goal"`
}

// QuestEntity is the kernel-side quest log for one entity.
type QuestEntity struct {
	Quests map[string]QuestEntry `json:"quests"`
}

// QuestState is the quest sub-tree.
type QuestState struct {
	Entities map[string]QuestEntity `json:"entities"`
}

// CloneState implements State.
func (s *QuestState) CloneState() State {
	copied := &QuestState{Entities: make(map[string]QuestEntity, len(s.Entities))}
	for id, entity := range s.Entities {
		quests := make(map[string]QuestEntry, len(entity.Quests))
		for name, entry := range entity.Quests {
			quests[name] = entry
		}
		copied.Entities[id] = QuestEntity{Quests: quests}
	}
	return copied
}

// WireView implements State.
func (s *QuestState) WireView() any { return s.Entities }

type questActivatePayload struct {
	Entity string `json:"entity"`
	Quest  string `json:"quest"`
	Goal   int    `json:"goal"`
}

type questProgressPayload struct {
	Entity string `json:"entity"`
	Quest  string `json:"quest"`
	Amount int    `json:"amount"`
}

// QuestKernel tracks quest activation and progress.
type QuestKernel struct{}

// Name implements Kernel.
func (QuestKernel) Name() string { return SubsystemQuest }

// EmptyState implements Kernel.
func (QuestKernel) EmptyState() State {
	return &QuestState{Entities: make(map[string]QuestEntity)}
}

// Step applies quest deltas in order. Re-activating a live quest and
// progressing an inactive one are both rejections, and completion fires its
// alert exactly once on the transition.
func (QuestKernel) Step(_ Entities, state State, deltas []Delta, _ float64) (State, []Delta, []Alert) {
	current := state.(*QuestState)
	next := current.CloneState().(*QuestState)

	var accepted []Delta
	var alerts []Alert
	for _, delta := range deltas {
		switch delta.Type {
		case DeltaQuestActivate:
			var p questActivatePayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.Entity == "" || p.Quest == "" || p.Goal <= 0 {
				alerts = append(alerts, rejectionAlert(AlertQuestRejected, delta, "malformed_payload"))
				continue
			}
			entity := next.Entities[p.Entity]
			if entity.Quests == nil {
				entity.Quests = make(map[string]QuestEntry)
			}
			if _, exists := entity.Quests[p.Quest]; exists {
				alerts = append(alerts, rejectionAlert(AlertQuestRejected, delta, "already_active"))
				continue
			}
			entity.Quests[p.Quest] = QuestEntry{Status: QuestStatusActive, Goal: p.Goal}
			next.Entities[p.Entity] = entity
			accepted = append(accepted, delta)
			alerts = append(alerts, Alert{Type: AlertQuestActivated, Payload: map[string]any{
				"entity": p.Entity,
				"quest":  p.Quest,
			}})
		case DeltaQuestProgress:
			var p questProgressPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.Entity == "" || p.Quest == "" || p.Amount <= 0 {
				alerts = append(alerts, rejectionAlert(AlertQuestRejected, delta, "malformed_payload"))
				continue
			}
			entity, exists := next.Entities[p.Entity]
			if !exists {
				alerts = append(alerts, rejectionAlert(AlertQuestRejected, delta, "unknown_entity"))
				continue
			}
			entry, tracked := entity.Quests[p.Quest]
			if !tracked || entry.Status != QuestStatusActive {
				alerts = append(alerts, rejectionAlert(AlertQuestRejected, delta, "not_active"))
				continue
			}
			entry.Progress += p.Amount
			if entry.Progress >= entry.Goal {
				entry.Progress = entry.Goal
				entry.Status = QuestStatusComplete
				alerts = append(alerts, Alert{Type: AlertQuestCompleted, Payload: map[string]any{
					"entity": p.Entity,
					"quest":  p.Quest,
				}})
			}
			entity.Quests[p.Quest] = entry
			next.Entities[p.Entity] = entity
			accepted = append(accepted, delta)
		default:
		}
	}
	return next, accepted, alerts
}
