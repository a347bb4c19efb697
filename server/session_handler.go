package server

import (
	"encoding/hex"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/auth"
	"github.com/Simlowker/solduel-gaming-platform/errors"
	"github.com/Simlowker/solduel-gaming-platform/game"
)

// SessionHandler handles HTTP requests for wager sessions
//
// Flow: HTTP Request -> sessionRoutes -> SessionHandler -> SessionService -> game.Registry
//
// Responsibilities:
// - Extract player info from JWT token
// - Validate and decode request parameters
// - Call SessionService for business logic
// - Format and return HTTP responses
//
// Game rules live in the game package, not here.
type SessionHandler struct {
	app    *App
	logger zerolog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(app *App) *SessionHandler {
	return &SessionHandler{
		app:    app,
		logger: app.logger.With().Str("handler", "session").Logger(),
	}
}

// extractPlayerID extracts the player ID from gin context
func (h *SessionHandler) extractPlayerID(c *gin.Context) (string, error) {
	playerID, ok := auth.GetPlayerID(c)
	if !ok {
		return "", errors.New(errors.ErrUnauthorized, "player_id not found in context")
	}
	return playerID, nil
}

func sessionIDParam(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.New(errors.ErrInvalidRequest, "invalid session id")
	}
	return id, nil
}

// CreateSessionRequest opens a new session
type CreateSessionRequest struct {
	Kind  game.Kind       `json:"kind" binding:"required"`
	Stake decimal.Decimal `json:"stake" binding:"required"`
}

// StakeRequest carries the stake for a join
type StakeRequest struct {
	Stake decimal.Decimal `json:"stake" binding:"required"`
}

// ActionRequest carries one player action. Only the fields relevant to the
// action kind are read. CommitHash and Nonce are hex encoded on the wire.
type ActionRequest struct {
	Action     game.ActionKind `json:"action" binding:"required"`
	CommitHash string          `json:"commit_hash,omitempty"`
	Move       string          `json:"move,omitempty"`
	Nonce      string          `json:"nonce,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
}

// CreateSession godoc
// @Summary      Create a wager session
// @Description  Escrows the creator's stake and opens a new session of the given kind
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        request  body      CreateSessionRequest  true  "Session parameters"
// @Success      201  {object}  SuccessResponse[game.Session]
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	playerID, err := h.extractPlayerID(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, errors.Wrap(err, errors.ErrInvalidRequest, "invalid request body"))
		return
	}

	s, err := h.app.sessions.CreateSession(c.Request.Context(), playerID, req.Kind, req.Stake)
	if err != nil {
		h.logger.Warn().Err(err).Str("player_id", playerID).Msg("create session rejected")
		HandleAppError(c, err)
		return
	}

	Created(c, s)
}

// JoinSession godoc
// @Summary      Join a waiting session
// @Description  Escrows the caller's stake and admits them; the stake must match the creator's
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id       path      int           true  "Session ID"
// @Param        request  body      StakeRequest  true  "Matching stake"
// @Success      200  {object}  SuccessResponse[game.Session]
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id}/join [post]
func (h *SessionHandler) JoinSession(c *gin.Context) {
	playerID, err := h.extractPlayerID(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	id, err := sessionIDParam(c)
	if err != nil {
		BadRequest(c, err)
		return
	}

	var req StakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, errors.Wrap(err, errors.ErrInvalidRequest, "invalid request body"))
		return
	}

	s, err := h.app.sessions.JoinSession(c.Request.Context(), id, playerID, req.Stake)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, s)
}

// CancelSession godoc
// @Summary      Cancel an unjoined session
// @Description  Only the creator can cancel, and only while nobody has joined; the stake is refunded
// @Tags         sessions
// @Produce      json
// @Param        id   path      int  true  "Session ID"
// @Success      200  {object}  SuccessResponse[game.Session]
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id} [delete]
func (h *SessionHandler) CancelSession(c *gin.Context) {
	playerID, err := h.extractPlayerID(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	id, err := sessionIDParam(c)
	if err != nil {
		BadRequest(c, err)
		return
	}

	s, err := h.app.sessions.CancelSession(c.Request.Context(), id, playerID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, s)
}

// Act godoc
// @Summary      Submit a player action
// @Description  Routes commit, reveal, check, call, raise, fold, enter and draw actions
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id       path      int            true  "Session ID"
// @Param        request  body      ActionRequest  true  "Action payload"
// @Success      200  {object}  SuccessResponse[game.Session]
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id}/actions [post]
func (h *SessionHandler) Act(c *gin.Context) {
	playerID, err := h.extractPlayerID(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	id, err := sessionIDParam(c)
	if err != nil {
		BadRequest(c, err)
		return
	}

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, errors.Wrap(err, errors.ErrInvalidRequest, "invalid request body"))
		return
	}

	action, err := decodeAction(&req)
	if err != nil {
		BadRequest(c, err)
		return
	}

	s, err := h.app.sessions.Act(c.Request.Context(), id, playerID, action)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, s)
}

// decodeAction translates the wire request into a game action
func decodeAction(req *ActionRequest) (game.Action, error) {
	action := game.Action{Kind: req.Action, Amount: req.Amount}

	switch req.Action {
	case game.ActionCommit:
		hash, err := game.DecodeCommitHash(req.CommitHash)
		if err != nil {
			return game.Action{}, errors.Wrap(err, errors.ErrInvalidRequest, "invalid commit hash")
		}
		action.CommitHash = hash

	case game.ActionReveal:
		move, ok := game.ParseMove(req.Move)
		if !ok {
			return game.Action{}, errors.New(errors.ErrUnknownMove, "unknown move: "+req.Move)
		}
		nonce, err := hex.DecodeString(req.Nonce)
		if err != nil || len(nonce) != game.NonceSize {
			return game.Action{}, errors.New(errors.ErrInvalidRequest, "nonce must be 32 hex-encoded bytes")
		}
		action.Move = move
		action.Nonce = nonce
	}

	return action, nil
}

// GetSession godoc
// @Summary      Get a live session
// @Tags         sessions
// @Produce      json
// @Param        id   path      int  true  "Session ID"
// @Success      200  {object}  SuccessResponse[game.Session]
// @Failure      404  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, err := sessionIDParam(c)
	if err != nil {
		BadRequest(c, err)
		return
	}

	s, err := h.app.sessions.GetSession(id)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, s)
}

// ListSessions godoc
// @Summary      List live sessions by state
// @Tags         sessions
// @Produce      json
// @Param        state  query     string  false  "Session state"  default(waiting)
// @Success      200  {object}  SuccessResponse[[]game.Session]
// @Security     BearerAuth
// @Router       /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	state := game.State(c.DefaultQuery("state", string(game.StateWaiting)))
	OK(c, h.app.sessions.ListSessionsByState(state))
}

// GetSettlement godoc
// @Summary      Get the settlement of a finished session
// @Tags         sessions
// @Produce      json
// @Param        id   path      int  true  "Session ID"
// @Success      200  {object}  SuccessResponse[game.Settlement]
// @Failure      404  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id}/settlement [get]
func (h *SessionHandler) GetSettlement(c *gin.Context) {
	id, err := sessionIDParam(c)
	if err != nil {
		BadRequest(c, err)
		return
	}

	st, err := h.app.sessions.GetSettlement(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, st)
}

// GetBalance godoc
// @Summary      Get the caller's ledger balance
// @Tags         players
// @Produce      json
// @Success      200  {object}  SuccessResponse[map[string]string]
// @Security     BearerAuth
// @Router       /balance [get]
func (h *SessionHandler) GetBalance(c *gin.Context) {
	playerID, err := h.extractPlayerID(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	balance, err := h.app.sessions.GetBalance(c.Request.Context(), playerID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, gin.H{"player_id": playerID, "balance": balance})
}

// GetHistory godoc
// @Summary      Page the caller's archived sessions
// @Tags         players
// @Produce      json
// @Param        kind   query     string  false  "Filter by session kind"
// @Param        page   query     int     false  "Page number"   default(1)
// @Param        limit  query     int     false  "Page size"     default(20)
// @Success      200  {object}  SuccessResponse[SessionHistoryResponse]
// @Security     BearerAuth
// @Router       /history [get]
func (h *SessionHandler) GetHistory(c *gin.Context) {
	playerID, err := h.extractPlayerID(c)
	if err != nil {
		Unauthorized(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	query := &SessionHistoryQuery{
		PlayerID: playerID,
		Kind:     game.Kind(c.Query("kind")),
		Page:     page,
		Limit:    limit,
	}

	resp, err := h.app.sessions.GetHistory(c.Request.Context(), query)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, resp)
}
