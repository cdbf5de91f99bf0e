package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
)

// ArticleStore is the persistence surface of the article routes.
type ArticleStore interface {
	ListArticles(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, int64, error)
	ListSourcesByArticle(ctx context.Context, articleID int64) ([]domain.ArticleSource, error)
}

type ArticleRouter struct {
	e     *echo.Echo
	store ArticleStore
}

func NewArticleRouter(e *echo.Echo, store ArticleStore) *ArticleRouter {
	return &ArticleRouter{e: e, store: store}
}

func (r *ArticleRouter) Bind() {
	r.e.GET("/api/articles", r.listHandler)
	r.e.GET("/api/articles/:id/sources", r.sourcesHandler)
}

type articleListResponse struct {
	Items []domain.Article `json:"items"`
	Total int64            `json:"total"`
}

func (r *ArticleRouter) listHandler(c echo.Context) error {
	filter, err := parseArticleFilter(c)
	if err != nil {
		return err
	}

	articles, total, err := r.store.ListArticles(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	return c.JSON(http.StatusOK, articleListResponse{Items: articles, Total: total})
}

func parseArticleFilter(c echo.Context) (domain.ArticleFilter, error) {
	var filter domain.ArticleFilter

	if from := c.QueryParam("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, apperr.NewValidation("from must be RFC3339")
		}
		filter.From = &ts
	}
	if to := c.QueryParam("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, apperr.NewValidation("to must be RFC3339")
		}
		filter.To = &ts
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.ParseInt(limit, 10, 64)
		if err != nil || n < 1 {
			return filter, apperr.NewValidation("limit must be a positive integer")
		}
		filter.Limit = n
	}
	if offset := c.QueryParam("offset"); offset != "" {
		n, err := strconv.ParseInt(offset, 10, 64)
		if err != nil || n < 0 {
			return filter, apperr.NewValidation("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func (r *ArticleRouter) sourcesHandler(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return apperr.NewValidation("article id must be an integer")
	}

	sources, err := r.store.ListSourcesByArticle(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if sources == nil {
		sources = []domain.ArticleSource{}
	}
	return c.JSON(http.StatusOK, sources)
}
