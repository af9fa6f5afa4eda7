package domain

import "errors"

// Domain errors
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrRoomTerminated     = errors.New("room has ended")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrInvalidPhase       = errors.New("invalid action for current phase")
	ErrActionInProgress   = errors.New("another round is in progress")
	ErrNoRoundActive      = errors.New("no round is in progress")
	ErrStaleFinalize      = errors.New("round already finalized or gone")
	ErrInsufficientCards  = errors.New("not enough cards left in deck")
	ErrDuplicateIdentity  = errors.New("a connected player already uses that name")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrNotHost            = errors.New("only host can perform this action")
	ErrInvalidName        = errors.New("invalid display name")
	ErrUnknownCard        = errors.New("unknown card label")
	ErrCardNotInHand      = errors.New("card not in hand")
	ErrNotEligible        = errors.New("player has nothing to hand out this round")
	ErrQuotaExceeded      = errors.New("assignment exceeds remaining quota")
	ErrInvalidAmount      = errors.New("invalid drink amount")
	ErrSwapUnavailable    = errors.New("wild card swap not available")
)
