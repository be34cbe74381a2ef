package factstore

import (
	"errors"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/pkg/models"
)

// Scope-precondition errors returned by PutFact. store_fact validates the
// fact's scope before touching the database; it never rejects on
// confidence, which is the extractor's concern.
var (
	// ErrMissingUserID is returned when UserID is empty regardless of scope.
	ErrMissingUserID = errors.New("factstore: missing user id")
	// ErrInvalidScope is returned for any Scope value outside
	// {user, agent, session}.
	ErrInvalidScope = errors.New("factstore: invalid scope")
	// ErrMissingAgentID is returned when Scope is agent or session and
	// AgentID is empty.
	ErrMissingAgentID = errors.New("factstore: missing agent id")
	// ErrMissingSessionID is returned when Scope is session and SessionID
	// is empty.
	ErrMissingSessionID = errors.New("factstore: missing session id")
)

// validateScope enforces the store_fact scope preconditions: UserID is
// always required; AgentID is required at scope agent and session;
// SessionID is additionally required at scope session.
func validateScope(f *models.Fact) error {
	if f.UserID == "" {
		return ErrMissingUserID
	}
	switch f.Scope {
	case models.FactScopeUser:
		return nil
	case models.FactScopeAgent:
		if f.AgentID == "" {
			return ErrMissingAgentID
		}
		return nil
	case models.FactScopeSession:
		if f.AgentID == "" {
			return ErrMissingAgentID
		}
		if f.SessionID == "" {
			return ErrMissingSessionID
		}
		return nil
	default:
		return ErrInvalidScope
	}
}
