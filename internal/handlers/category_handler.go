package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "tally/internal/errors"
	"tally/internal/merge"
	"tally/internal/models"
	"tally/internal/pagination"
	"tally/internal/store"
)

// CategoryHandler handles category-related requests
type CategoryHandler struct {
	stores *store.Manager
	merger *merge.Engine
}

// NewCategoryHandler creates a new CategoryHandler
func NewCategoryHandler(stores *store.Manager, merger *merge.Engine) *CategoryHandler {
	return &CategoryHandler{stores: stores, merger: merger}
}

// CreateCategoryRequest represents the request payload for creating a category
type CreateCategoryRequest struct {
	Name     string `json:"name" binding:"required"`
	Type     string `json:"type" binding:"required,account_type"`
	ParentID string `json:"parent_id"`
}

// UpdateCategoryRequest represents the request payload for updating a category.
// ParentID distinguishes absent from explicit null via the Move endpoint;
// updates here cover name and type.
type UpdateCategoryRequest struct {
	Name string `json:"name"`
	Type string `json:"type" binding:"omitempty,account_type"`
}

// MoveCategoryRequest reparents a category. A null or empty parent_id moves
// it to the top level.
type MoveCategoryRequest struct {
	ParentID *string `json:"parent_id"`
}

// MergeCategoriesRequest merges the source categories into the target.
type MergeCategoriesRequest struct {
	SourceIDs []string `json:"source_ids" binding:"required,min=1,dive,record_id"`
	TargetID  string   `json:"target_id" binding:"required,record_id"`
}

// CategoryResponse represents a category in the response
type CategoryResponse struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Type            models.AccountType `json:"type"`
	Subtype         string             `json:"subtype,omitempty"`
	ParentID        *string            `json:"parent_id,omitempty"`
	Protected       bool               `json:"protected"`
	RecentlyChanged bool               `json:"recently_changed"`
}

// UsageResponse reports how many records reference a category.
type UsageResponse struct {
	Transactions int64 `json:"transactions"`
	Imported     int64 `json:"imported"`
	Ledger       int64 `json:"ledger"`
	Total        int64 `json:"total"`
}

func toCategoryResponse(st *store.CategoryStore, c *models.Category) CategoryResponse {
	return CategoryResponse{
		ID:              c.ID,
		Name:            c.Name,
		Type:            c.Type,
		Subtype:         c.Subtype,
		ParentID:        c.ParentID,
		Protected:       c.Protected(),
		RecentlyChanged: st.RecentlyChanged(c.ID),
	}
}

func (h *CategoryHandler) categories(c *gin.Context) (*store.CategoryStore, error) {
	companyID, err := getCompanyID(c)
	if err != nil {
		return nil, err
	}
	return h.stores.Categories(c.Request.Context(), companyID)
}

// ListCategories handles the retrieval of the sorted category tree
// @Summary     List categories
// @Description List all categories in display order (roots by type then name, children after their parent)
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[CategoryResponse] "Categories"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /categories [get]
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	st, err := h.categories(c)
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

	cats := st.Categories()
	responses := make([]CategoryResponse, 0, len(cats))
	for i := range cats {
		responses = append(responses, toCategoryResponse(st, &cats[i]))
	}
	c.JSON(http.StatusOK, pagination.Slice(responses, page))
}

// CreateCategory handles the creation of a new category
// @Summary     Create a category
// @Description Create a category, optionally under a parent of a compatible type
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateCategoryRequest true "Category details"
// @Success     201 {object} CategoryResponse "Category created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     409 {object} ErrorResponse "Name conflict or type mismatch"
// @Router      /categories [post]
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	st, err := h.categories(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	accountType, _ := models.ParseAccountType(req.Type)
	var parentRef *store.Reference
	if req.ParentID != "" {
		ref := store.ByID(req.ParentID)
		parentRef = &ref
	}

	created, err := st.Create(c.Request.Context(), req.Name, accountType, parentRef)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCategoryResponse(st, created))
}

// UpdateCategory handles renaming and retyping a category
// @Summary     Update a category
// @Description Rename or retype a category. A rename that collides with an existing name returns NEEDS_MERGE.
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Param       request body UpdateCategoryRequest true "Fields to update"
// @Success     200 {object} CategoryResponse "Category updated"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Needs merge"
// @Router      /categories/{id} [patch]
func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	st, err := h.categories(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	patch := store.UpdatePatch{}
	if req.Name != "" {
		patch.Name = &req.Name
	}
	if req.Type != "" {
		accountType, _ := models.ParseAccountType(req.Type)
		patch.Type = &accountType
	}

	updated, err := st.Update(c.Request.Context(), store.ByID(c.Param("id")), patch)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCategoryResponse(st, updated))
}

// MoveCategory handles reparenting a category
// @Summary     Move a category
// @Description Move a category under a new parent, or to the top level
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Param       request body MoveCategoryRequest true "New parent"
// @Success     200 {object} CategoryResponse "Category moved"
// @Failure     409 {object} ErrorResponse "Cycle or type mismatch"
// @Router      /categories/{id}/move [post]
func (h *CategoryHandler) MoveCategory(c *gin.Context) {
	st, err := h.categories(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req MoveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var parentRef *store.Reference
	if req.ParentID != nil && *req.ParentID != "" {
		ref := store.ByID(*req.ParentID)
		parentRef = &ref
	}

	moved, err := st.Move(c.Request.Context(), store.ByID(c.Param("id")), parentRef)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCategoryResponse(st, moved))
}

// DeleteCategory handles the deletion of a category
// @Summary     Delete a category
// @Description Delete an unreferenced category; its subcategories move to the top level
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     204 "Category deleted"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Category in use or externally linked"
// @Router      /categories/{id} [delete]
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	st, err := h.categories(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := st.Delete(c.Request.Context(), store.ByID(c.Param("id"))); err != nil {
		respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetCategoryUsage reports reference counts for a category
// @Summary     Get category usage
// @Description Count the transactions, imported rows and ledger entries referencing a category
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     200 {object} UsageResponse "Reference counts"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Router      /categories/{id}/usage [get]
func (h *CategoryHandler) GetCategoryUsage(c *gin.Context) {
	st, err := h.categories(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	_, counts, err := st.Usage(c.Request.Context(), store.ByID(c.Param("id")))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, UsageResponse{
		Transactions: counts.Transactions,
		Imported:     counts.Imported,
		Ledger:       counts.Ledger,
		Total:        counts.Total(),
	})
}

// MergeCategories handles merging several categories into one
// @Summary     Merge categories
// @Description Merge the source categories into the target, rewriting every reference
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body MergeCategoriesRequest true "Merge selection"
// @Success     200 {object} CategoryResponse "Merge target"
// @Failure     400 {object} ErrorResponse "Invalid selection"
// @Failure     502 {object} ErrorResponse "Merge stopped partway"
// @Router      /categories/merge [post]
func (h *CategoryHandler) MergeCategories(c *gin.Context) {
	st, err := h.categories(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req MergeCategoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	ids := req.SourceIDs
	found := false
	for _, id := range ids {
		if id == req.TargetID {
			found = true
			break
		}
	}
	if !found {
		ids = append(ids, req.TargetID)
	}

	if err := h.merger.Merge(c.Request.Context(), st, ids, req.TargetID); err != nil {
		respondWithError(c, err)
		return
	}

	target, err := st.Resolve(store.ByID(req.TargetID))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCategoryResponse(st, target))
}
