package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "tally/internal/errors"
	"tally/internal/importer"
	"tally/internal/store"
)

// ImportHandler handles CSV import and export requests
type ImportHandler struct {
	stores   *store.Manager
	pipeline *importer.Pipeline
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(stores *store.Manager, pipeline *importer.Pipeline) *ImportHandler {
	return &ImportHandler{stores: stores, pipeline: pipeline}
}

// ImportCategories handles a CSV category import
// @Summary     Import categories from CSV
// @Description Validate and import a CSV file with Name, Type and optional Parent columns. The whole file is rejected if any row is invalid.
// @Tags        import
// @Accept      text/csv
// @Produce     json
// @Security    BearerAuth
// @Param       auto_create_parents query bool false "Create missing parents instead of rejecting rows"
// @Success     201 {object} importer.Summary "Created categories"
// @Failure     400 {object} ErrorResponse "Empty or invalid file"
// @Failure     422 {object} ErrorResponse "Rows failed validation"
// @Router      /import/categories [post]
func (h *ImportHandler) ImportCategories(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	st, err := h.stores.Categories(c.Request.Context(), companyID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	rows, err := importer.DecodeCategoryCSV(c.Request.Body)
	if err != nil {
		respondWithError(c, err)
		return
	}

	autoCreate, _ := strconv.ParseBool(c.Query("auto_create_parents"))
	summary, err := h.pipeline.ImportCategories(c.Request.Context(), st, rows,
		importer.Options{AutoCreateParents: autoCreate})
	if err != nil {
		var vErr *importer.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": gin.H{
					"code":    apperrors.ErrInvalidImport.Code,
					"message": apperrors.ErrInvalidImport.Message,
				},
				"issues": vErr.Issues,
			})
			return
		}
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

// ExportCategories handles a CSV category export
// @Summary     Export categories to CSV
// @Description Export all categories with parent references by name
// @Tags        import
// @Produce     text/csv
// @Security    BearerAuth
// @Success     200 {string} string "CSV file"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /export/categories [get]
func (h *ImportHandler) ExportCategories(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	st, err := h.stores.Categories(c.Request.Context(), companyID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="categories.csv"`)
	c.Status(http.StatusOK)
	if err := importer.EncodeCategoryCSV(c.Writer, st.Categories()); err != nil {
		respondWithError(c, err)
	}
}

// ImportPayees handles a CSV payee import
// @Summary     Import payees from CSV
// @Description Import a CSV file with a Name column; duplicate names are rejected
// @Tags        import
// @Accept      text/csv
// @Produce     json
// @Security    BearerAuth
// @Success     201 {array} PayeeResponse "Created payees"
// @Failure     400 {object} ErrorResponse "Empty or invalid file"
// @Router      /import/payees [post]
func (h *ImportHandler) ImportPayees(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	ps, err := h.stores.Payees(c.Request.Context(), companyID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	names, err := importer.DecodePayeeCSV(c.Request.Body)
	if err != nil {
		respondWithError(c, err)
		return
	}

	created, err := h.pipeline.ImportPayees(c.Request.Context(), ps, names)
	if err != nil {
		respondWithError(c, err)
		return
	}

	responses := make([]PayeeResponse, 0, len(created))
	for i := range created {
		responses = append(responses, toPayeeResponse(&created[i]))
	}
	c.JSON(http.StatusCreated, responses)
}

// ExportPayees handles a CSV payee export
// @Summary     Export payees to CSV
// @Description Export all payees in name order
// @Tags        import
// @Produce     text/csv
// @Security    BearerAuth
// @Success     200 {string} string "CSV file"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /export/payees [get]
func (h *ImportHandler) ExportPayees(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	ps, err := h.stores.Payees(c.Request.Context(), companyID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="payees.csv"`)
	c.Status(http.StatusOK)
	if err := importer.EncodePayeeCSV(c.Writer, ps.Payees()); err != nil {
		respondWithError(c, err)
	}
}
