package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/pagination"
	"tally/internal/store"
)

// PayeeHandler handles payee-related requests
type PayeeHandler struct {
	stores *store.Manager
}

// NewPayeeHandler creates a new PayeeHandler
func NewPayeeHandler(stores *store.Manager) *PayeeHandler {
	return &PayeeHandler{stores: stores}
}

// CreatePayeeRequest represents the request payload for creating a payee
type CreatePayeeRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenamePayeeRequest represents the request payload for renaming a payee
type RenamePayeeRequest struct {
	Name string `json:"name" binding:"required"`
}

// PayeeResponse represents a payee in the response
type PayeeResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toPayeeResponse(p *models.Payee) PayeeResponse {
	return PayeeResponse{ID: p.ID, Name: p.Name}
}

func (h *PayeeHandler) payees(c *gin.Context) (*store.PayeeStore, error) {
	companyID, err := getCompanyID(c)
	if err != nil {
		return nil, err
	}
	return h.stores.Payees(c.Request.Context(), companyID)
}

// ListPayees handles the retrieval of all payees
// @Summary     List payees
// @Description List all payees in name order
// @Tags        payees
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[PayeeResponse] "Payees"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /payees [get]
func (h *PayeeHandler) ListPayees(c *gin.Context) {
	ps, err := h.payees(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	page.Defaults()

	payees := ps.Payees()
	responses := make([]PayeeResponse, 0, len(payees))
	for i := range payees {
		responses = append(responses, toPayeeResponse(&payees[i]))
	}
	c.JSON(http.StatusOK, pagination.Slice(responses, page))
}

// CreatePayee handles the creation of a new payee
// @Summary     Create a payee
// @Description Create a payee with a unique name
// @Tags        payees
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreatePayeeRequest true "Payee details"
// @Success     201 {object} PayeeResponse "Payee created"
// @Failure     409 {object} ErrorResponse "Name conflict"
// @Router      /payees [post]
func (h *PayeeHandler) CreatePayee(c *gin.Context) {
	ps, err := h.payees(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreatePayeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	created, err := ps.Create(c.Request.Context(), req.Name)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPayeeResponse(created))
}

// RenamePayee handles renaming a payee
// @Summary     Rename a payee
// @Description Rename a payee to a name no other payee holds
// @Tags        payees
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Payee ID"
// @Param       request body RenamePayeeRequest true "New name"
// @Success     200 {object} PayeeResponse "Payee renamed"
// @Failure     404 {object} ErrorResponse "Payee not found"
// @Failure     409 {object} ErrorResponse "Name conflict"
// @Router      /payees/{id} [patch]
func (h *PayeeHandler) RenamePayee(c *gin.Context) {
	ps, err := h.payees(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RenamePayeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	renamed, err := ps.Rename(c.Request.Context(), store.ByID(c.Param("id")), req.Name)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPayeeResponse(renamed))
}

// DeletePayee handles the deletion of a payee
// @Summary     Delete a payee
// @Description Delete a payee no transaction references
// @Tags        payees
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Payee ID"
// @Success     204 "Payee deleted"
// @Failure     404 {object} ErrorResponse "Payee not found"
// @Failure     409 {object} ErrorResponse "Payee in use"
// @Router      /payees/{id} [delete]
func (h *PayeeHandler) DeletePayee(c *gin.Context) {
	ps, err := h.payees(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := ps.Delete(c.Request.Context(), store.ByID(c.Param("id"))); err != nil {
		respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
