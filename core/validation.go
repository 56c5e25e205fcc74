package core

import (
	"fmt"
	"math"
)

// ValidateRecord validates a VectorRecord before it is written.
//
// Validation rules:
//   - NodeID must parse as "<document>#<index>"
//   - Vector must not be empty and must only hold finite values
//   - when dimension > 0 the vector length must equal it
func ValidateRecord(record *VectorRecord, dimension int) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if _, _, err := ParseNodeID(record.NodeID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if len(record.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyVector)
	}
	if dimension > 0 && len(record.Vector) != dimension {
		return fmt.Errorf("%w: %w: expected %d, got %d", ErrInvalidRecord, ErrDimensionMismatch, dimension, len(record.Vector))
	}
	for _, v := range record.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite vector value", ErrInvalidRecord)
		}
	}
	return nil
}

// ValidateTurn validates a ConversationTurn before it is appended.
//
// NOT validated (populated by the store):
//   - Index
//   - CreatedAt
func ValidateTurn(turn *ConversationTurn) error {
	if turn == nil {
		return fmt.Errorf("%w: turn is nil", ErrInvalidTurn)
	}
	if turn.ConversationID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, ErrEmptyConversationID)
	}
	if err := ValidateRole(turn.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, err)
	}
	return nil
}

// ValidateRole validates that a Role has a known value.
func ValidateRole(role Role) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: value %q", ErrInvalidRole, role)
	}
	return nil
}
