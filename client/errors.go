package client

import "errors"

var (
	// ErrUnknownEntity is returned by accessors asked about an entity
	// key the manager has never seen a CreateEntity for.
	ErrUnknownEntity = errors.New("client: unknown entity")
	// ErrNotPawn is returned by pawn-only accessors for a non-pawn
	// entity.
	ErrNotPawn = errors.New("client: entity is not a pawn")
)
