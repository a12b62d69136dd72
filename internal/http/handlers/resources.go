package handlers

import (
	"mime"
	"net/http"
	"strings"

	"hive/internal/domain"
	"hive/internal/http/middleware"
	"hive/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TruncatedHeader marks an export that did not contain every matching row.
const TruncatedHeader = "X-Export-Truncated"

// ListMeta is the meta block of the list envelope.
type ListMeta struct {
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	LastPage int               `json:"lastPage"`
	Context  string            `json:"context"`
	Guard    string            `json:"guard"`
	Stats    *domain.UserStats `json:"stats,omitempty"`
}

// ListResponse is the single list envelope.
type ListResponse struct {
	Meta ListMeta     `json:"meta"`
	Data []domain.Row `json:"data"`
}

// List serves GET /api/<resource>.
func (a *API) List(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := domain.ParseQuery(c.Request.URL.Query())
		if err == nil {
			err = q.Validate(a.maxPageSize())
		}
		if err != nil {
			RespondDomainError(c, err)
			return
		}

		rc := middleware.RequestContext(c)
		page, err := a.Lister.Resolve(c.Request.Context(), rc, resource, q)
		if err != nil {
			RespondDomainError(c, err)
			return
		}

		rows := page.Rows
		if rows == nil {
			rows = []domain.Row{}
		}
		meta := ListMeta{
			Total:    page.Total,
			Page:     q.Page,
			PageSize: q.PageSize,
			LastPage: lastPage(page.Total, q.PageSize),
			Context:  rc.ContextLabel(),
			Guard:    rc.GuardOrDefault(),
		}
		if resource == domain.ResourceUsers && a.Users != nil {
			stats, err := a.Users.Stats(c.Request.Context())
			if err != nil {
				utils.L().Warn("user stats unavailable", zap.String("request_id", rc.RequestID), zap.Error(err))
			} else {
				meta.Stats = &stats
			}
		}
		c.JSON(http.StatusOK, ListResponse{Meta: meta, Data: rows})
	}
}

// Export serves GET /api/<resource>/export. The type is checked before
// any query work so an unsupported format never reaches the database.
func (a *API) Export(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		typ := c.Query("type")
		if typ == "" {
			typ = c.Query("format")
		}
		kind, err := domain.ParseExportType(typ)
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		q, err := domain.ParseQuery(c.Request.URL.Query())
		if err != nil {
			RespondDomainError(c, err)
			return
		}

		rc := middleware.RequestContext(c)
		art, err := a.Exporter.Export(c.Request.Context(), rc, domain.NewExportJob(resource, kind, q))
		if err != nil {
			RespondDomainError(c, err)
			return
		}

		if art.Truncated {
			c.Header(TruncatedHeader, "true")
		}
		if kind.IsFile() {
			c.Header("Content-Disposition", contentDisposition(art.Filename))
			c.Header("Cache-Control", "no-store")
			c.Data(http.StatusOK, art.ContentType, art.Body)
			return
		}
		c.JSON(http.StatusOK, art.Payload)
	}
}

func (a *API) maxPageSize() int {
	if a.MaxPageSize > 0 {
		return a.MaxPageSize
	}
	return domain.MaxPageSize
}

func lastPage(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

func contentDisposition(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "attachment"
	}
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
