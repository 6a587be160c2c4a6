// Package workflow defines the document review state machine.
package workflow

import "fmt"

type State string

const (
	StateDraft     State = "draft"
	StateInReview  State = "in_review"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StatePublished State = "published"
	StateArchived  State = "archived"
)

type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionRevise  Action = "revise"
	ActionPublish Action = "publish"
	ActionArchive Action = "archive"
)

// transitions is the full legality table. Archived has no outgoing edges.
var transitions = map[State]map[Action]State{
	StateDraft:     {ActionSubmit: StateInReview},
	StateInReview:  {ActionApprove: StateApproved, ActionReject: StateRejected},
	StateRejected:  {ActionRevise: StateDraft},
	StateApproved:  {ActionPublish: StatePublished},
	StatePublished: {ActionArchive: StateArchived},
	StateArchived:  {},
}

// ErrIllegalTransition reports an action that is not available from the
// document's current state.
type ErrIllegalTransition struct {
	From   State
	Action Action
}

func (e ErrIllegalTransition) Error() string {
	return fmt.Sprintf("action %q is not allowed from state %q", e.Action, e.From)
}

// Next resolves the target state for an action from the given state.
func Next(from State, action Action) (State, error) {
	to, ok := transitions[from][action]
	if !ok {
		return "", ErrIllegalTransition{From: from, Action: action}
	}
	return to, nil
}

// ActionsFrom lists the actions available from a state, in a fixed order
// so clients can render buttons deterministically.
func ActionsFrom(state State) []Action {
	available := transitions[state]
	actions := make([]Action, 0, len(available))
	for _, action := range []Action{ActionSubmit, ActionApprove, ActionReject, ActionRevise, ActionPublish, ActionArchive} {
		if _, ok := available[action]; ok {
			actions = append(actions, action)
		}
	}
	return actions
}

// RequiresComment reports whether an action must carry a non-empty comment.
// Rejections and revision requests always explain themselves.
func RequiresComment(action Action) bool {
	return action == ActionReject || action == ActionRevise
}

// IsTerminal reports whether a state has no outgoing transitions.
func IsTerminal(state State) bool {
	return len(transitions[state]) == 0
}

// ValidState reports whether the string names a known state.
func ValidState(state string) bool {
	_, ok := transitions[State(state)]
	return ok
}

// ValidAction reports whether the string names a known action.
func ValidAction(action string) bool {
	switch Action(action) {
	case ActionSubmit, ActionApprove, ActionReject, ActionRevise, ActionPublish, ActionArchive:
		return true
	}
	return false
}
