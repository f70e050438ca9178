package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tally/internal/assistant"
	"tally/internal/command"
	apperrors "tally/internal/errors"
	"tally/internal/store"
)

// CommandHandler handles command batch and assistant requests
type CommandHandler struct {
	sequencer *command.Sequencer
	stores    *store.Manager
	generator assistant.Generator
}

// NewCommandHandler creates a new CommandHandler. generator may be nil
// when no assistant is configured; the chat endpoint then returns an error.
func NewCommandHandler(sequencer *command.Sequencer, stores *store.Manager, generator assistant.Generator) *CommandHandler {
	return &CommandHandler{sequencer: sequencer, stores: stores, generator: generator}
}

// ProposeRequest represents a command batch to queue for confirmation
type ProposeRequest struct {
	Commands []command.Request `json:"commands" binding:"required,min=1"`
}

// ChatRequest represents an assistant conversation turn
type ChatRequest struct {
	Messages []assistant.Message `json:"messages" binding:"required,min=1,dive"`
}

// ChatResponse carries the assistant's reply and, when commands were
// produced, the resulting confirmation proposal.
type ChatResponse struct {
	Reply    string            `json:"reply"`
	Proposal *command.Proposal `json:"proposal,omitempty"`
}

// ProposeCommands handles queuing a command batch
// @Summary     Propose commands
// @Description Validate and resolve a command batch, returning a confirmation prompt. Nothing executes until confirmed.
// @Tags        commands
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ProposeRequest true "Command batch"
// @Success     200 {object} command.Proposal "Awaiting confirmation"
// @Failure     400 {object} ErrorResponse "Invalid or unresolvable command"
// @Failure     409 {object} ErrorResponse "Batch already executing"
// @Router      /commands/propose [post]
func (h *CommandHandler) ProposeCommands(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidCommand, err.Error()))
		return
	}

	proposal, err := h.sequencer.ForCompany(companyID).Propose(c.Request.Context(), req.Commands)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

// ConfirmCommands handles executing the queued batch
// @Summary     Confirm commands
// @Description Execute the queued batch strictly in order, stopping at the first failure
// @Tags        commands
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} command.Report "Execution report"
// @Failure     409 {object} ErrorResponse "Nothing awaiting confirmation"
// @Router      /commands/confirm [post]
func (h *CommandHandler) ConfirmCommands(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	report, err := h.sequencer.ForCompany(companyID).Confirm(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// CancelCommands handles discarding the queued batch
// @Summary     Cancel commands
// @Description Discard a batch awaiting confirmation with no effect
// @Tags        commands
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string]bool "Whether a batch was cancelled"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /commands/cancel [post]
func (h *CommandHandler) CancelCommands(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	pipeline := h.sequencer.ForCompany(companyID)
	cancelled := pipeline.Cancel()
	pipeline.Acknowledge()
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

// Chat handles an assistant conversation turn
// @Summary     Chat with the assistant
// @Description Turn free-form conversation into a proposed command batch. Produced commands are validated and queued for confirmation, never executed directly.
// @Tags        commands
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ChatRequest true "Conversation so far"
// @Success     200 {object} ChatResponse "Reply and optional proposal"
// @Failure     502 {object} ErrorResponse "Assistant unavailable or failed"
// @Router      /commands/chat [post]
func (h *CommandHandler) Chat(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if h.generator == nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrGeneratorFailure, "No assistant is configured"))
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	snapshot, err := h.snapshot(c, companyID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.generator.Generate(c.Request.Context(), req.Messages, snapshot)
	if err != nil {
		respondWithError(c, err)
		return
	}

	resp := ChatResponse{Reply: result.Reply}
	if len(result.Commands) > 0 {
		proposal, err := h.sequencer.ForCompany(companyID).Propose(c.Request.Context(), result.Commands)
		if err != nil {
			respondWithError(c, err)
			return
		}
		resp.Proposal = proposal
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CommandHandler) snapshot(c *gin.Context, companyID string) (assistant.Snapshot, error) {
	st, err := h.stores.Categories(c.Request.Context(), companyID)
	if err != nil {
		return assistant.Snapshot{}, err
	}
	ps, err := h.stores.Payees(c.Request.Context(), companyID)
	if err != nil {
		return assistant.Snapshot{}, err
	}

	var snap assistant.Snapshot
	for _, cat := range st.Categories() {
		snap.Categories = append(snap.Categories, cat.Name)
	}
	for _, p := range ps.Payees() {
		snap.Payees = append(snap.Payees, p.Name)
	}
	return snap, nil
}
