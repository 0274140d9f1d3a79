package handler

import (
	"net/http"

	"github.com/airglance/airglance/internal/airquality"
	"github.com/airglance/airglance/internal/api/models"
	"github.com/airglance/airglance/internal/api/response"
)

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct {
	categories models.CategoryList
}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler() *MetadataHandler {
	cats := airquality.Categories()
	items := make([]models.CategoryInfo, 0, len(cats))
	for _, c := range cats {
		lo, hi := c.Range()
		info := models.CategoryInfo{
			Name:     c.String(),
			Min:      lo,
			Advisory: c.Advisory(),
		}
		if hi >= 0 {
			upper := hi
			info.Max = &upper
		}
		items = append(items, info)
	}

	return &MetadataHandler{categories: models.CategoryList{Items: items}}
}

// ListCategories handles GET /v1/metadata/categories - AQI bands in severity order.
func (h *MetadataHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.categories)
}
