package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"fallen/dashboard/internal/rbac"
)

// Parameter payloads, one per action type. They are stored in the params
// column exactly as re-encoded here, which is the shape the bot reads.

type WarnParams struct {
	Reason   string `json:"reason" validate:"required,max=500"`
	Category string `json:"category,omitempty" validate:"omitempty,max=50"`
}

type TimeoutParams struct {
	Minutes int    `json:"minutes" validate:"required,min=1,max=40320"`
	Reason  string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type KickParams struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type BanParams struct {
	Reason            string `json:"reason,omitempty" validate:"omitempty,max=500"`
	DeleteMessageDays int    `json:"delete_message_days" validate:"min=0,max=7"`
}

// AmountParams is shared by add_xp and add_coins. Negative amounts deduct.
type AmountParams struct {
	Amount int64  `json:"amount" validate:"required,min=-1000000,max=1000000"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type SetEloParams struct {
	Elo *int64 `json:"elo" validate:"required,min=0,max=10000"`
}

type RemoveWarningParams struct {
	Index *int `json:"index" validate:"required,min=0"`
}

func newParams(action rbac.Action) (any, bool) {
	switch action {
	case rbac.ActionWarn:
		return &WarnParams{}, true
	case rbac.ActionTimeout:
		return &TimeoutParams{}, true
	case rbac.ActionKick:
		return &KickParams{}, true
	case rbac.ActionBan:
		return &BanParams{}, true
	case rbac.ActionAddXP, rbac.ActionAddCoins:
		return &AmountParams{}, true
	case rbac.ActionSetElo:
		return &SetEloParams{}, true
	case rbac.ActionRemoveWarning:
		return &RemoveWarningParams{}, true
	default:
		return nil, false
	}
}

// decodeParams checks raw against the payload of action and returns it in
// canonical form. Unknown fields are rejected.
func decodeParams(validate *validator.Validate, action rbac.Action, raw json.RawMessage) (json.RawMessage, string, error) {
	params, ok := newParams(action)
	if !ok {
		return nil, "", ErrUnknownAction
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage(`{}`)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(params); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := validate.Struct(params); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	canonical, err := json.Marshal(params)
	if err != nil {
		return nil, "", fmt.Errorf("encode params: %w", err)
	}
	return canonical, describe(params), nil
}

// describe renders params as audit log details.
func describe(params any) string {
	switch p := params.(type) {
	case *WarnParams:
		return joinDetails(p.Category, p.Reason)
	case *TimeoutParams:
		return joinDetails(fmt.Sprintf("%d minutes", p.Minutes), p.Reason)
	case *KickParams:
		return p.Reason
	case *BanParams:
		return joinDetails(fmt.Sprintf("delete %d days", p.DeleteMessageDays), p.Reason)
	case *AmountParams:
		return joinDetails(fmt.Sprintf("%+d", p.Amount), p.Reason)
	case *SetEloParams:
		return fmt.Sprintf("elo %d", *p.Elo)
	case *RemoveWarningParams:
		return fmt.Sprintf("warning #%d", *p.Index)
	default:
		return ""
	}
}

func joinDetails(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ": ")
}
