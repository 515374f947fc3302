package rbac

// Tier ranks staff authority. Higher tiers may take more destructive actions.
type Tier int

const (
	TierNone      Tier = 0
	TierModerator Tier = 1
	TierSenior    Tier = 2
	TierAdmin     Tier = 3
)

// Valid reports whether t is a tier that can be stored in staff_roles or
// role_config.
func (t Tier) Valid() bool {
	return t >= TierModerator && t <= TierAdmin
}

type Action string

// Moderation actions are the action types accepted by the outbox.
const (
	ActionWarn          Action = "warn"
	ActionTimeout       Action = "timeout"
	ActionKick          Action = "kick"
	ActionBan           Action = "ban"
	ActionAddXP         Action = "add_xp"
	ActionAddCoins      Action = "add_coins"
	ActionSetElo        Action = "set_elo"
	ActionRemoveWarning Action = "remove_warning"
)

// Dashboard actions that never reach the outbox.
const (
	ActionViewStaff      Action = "view_staff"
	ActionViewAudit      Action = "view_audit"
	ActionManageSettings Action = "manage_settings"
)

var requiredTiers = map[Action]Tier{
	ActionWarn:           TierModerator,
	ActionTimeout:        TierModerator,
	ActionKick:           TierSenior,
	ActionBan:            TierAdmin,
	ActionAddXP:          TierModerator,
	ActionAddCoins:       TierModerator,
	ActionSetElo:         TierModerator,
	ActionRemoveWarning:  TierModerator,
	ActionViewStaff:      TierModerator,
	ActionViewAudit:      TierSenior,
	ActionManageSettings: TierAdmin,
}

var moderationActions = []Action{
	ActionWarn,
	ActionTimeout,
	ActionKick,
	ActionBan,
	ActionAddXP,
	ActionAddCoins,
	ActionSetElo,
	ActionRemoveWarning,
}

// ModerationActions lists the action types the outbox accepts.
func ModerationActions() []Action {
	return append([]Action(nil), moderationActions...)
}

// ParseModerationAction returns the action for name when it is an outbox
// action type.
func ParseModerationAction(name string) (Action, bool) {
	for _, action := range moderationActions {
		if string(action) == name {
			return action, true
		}
	}
	return "", false
}

// RequiredTier returns the minimum tier for action. ok is false for unknown
// actions, which nobody may take.
func RequiredTier(action Action) (Tier, bool) {
	tier, ok := requiredTiers[action]
	return tier, ok
}

func Can(grant Grant, action Action) bool {
	required, ok := RequiredTier(action)
	if !ok || !grant.IsStaff {
		return false
	}
	return grant.Tier >= required
}
