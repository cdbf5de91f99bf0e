package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
	"github.com/DjordjeVuckovic/news-ingest/internal/settings"
	"github.com/DjordjeVuckovic/news-ingest/internal/translate"
)

type SettingsRouter struct {
	e      *echo.Echo
	store  *settings.Store
	engine *translate.Engine
}

func NewSettingsRouter(e *echo.Echo, store *settings.Store, engine *translate.Engine) *SettingsRouter {
	return &SettingsRouter{e: e, store: store, engine: engine}
}

func (r *SettingsRouter) Bind() {
	r.e.GET("/api/settings/ai-dedup", r.getAIDedupHandler)
	r.e.PUT("/api/settings/ai-dedup", r.updateAIDedupHandler)
	r.e.GET("/api/settings/translation", r.getTranslationHandler)
	r.e.PUT("/api/settings/translation", r.updateTranslationHandler)
	r.e.POST("/api/settings/translation/test", r.testProviderHandler)
}

func (r *SettingsRouter) getAIDedupHandler(c echo.Context) error {
	ai, err := r.store.AIDedup(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ai)
}

type aiDedupRequest struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"`
}

func (r *SettingsRouter) updateAIDedupHandler(c echo.Context) error {
	var req aiDedupRequest
	if err := c.Bind(&req); err != nil {
		return apperr.NewValidationWrap("invalid ai dedup payload", err)
	}

	ctx := c.Request().Context()
	if err := r.store.UpdateAIDedup(ctx, req.Enabled, req.Provider); err != nil {
		return err
	}

	ai, err := r.store.AIDedup(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ai)
}

func (r *SettingsRouter) getTranslationHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, r.engine.Snapshot())
}

type translationRequest struct {
	Provider              string `json:"provider"`
	DeepseekAPIKey        string `json:"deepseek_api_key"`
	DeepseekBaseURL       string `json:"deepseek_base_url"`
	DeepseekModel         string `json:"deepseek_model"`
	OllamaBaseURL         string `json:"ollama_base_url"`
	OllamaModel           string `json:"ollama_model"`
	TranslateDescriptions bool   `json:"translate_descriptions"`
	TargetLanguage        string `json:"target_language"`
}

func (r *SettingsRouter) updateTranslationHandler(c echo.Context) error {
	var req translationRequest
	if err := c.Bind(&req); err != nil {
		return apperr.NewValidationWrap("invalid translation payload", err)
	}

	creds := translate.Credentials{
		Provider:              req.Provider,
		DeepseekAPIKey:        req.DeepseekAPIKey,
		DeepseekBaseURL:       req.DeepseekBaseURL,
		DeepseekModel:         req.DeepseekModel,
		OllamaBaseURL:         req.OllamaBaseURL,
		OllamaModel:           req.OllamaModel,
		TranslateDescriptions: req.TranslateDescriptions,
		TargetLanguage:        req.TargetLanguage,
	}

	if err := r.engine.UpdateCredentials(creds); err != nil {
		return err
	}
	// Persisting a masked key is skipped by the store, so a snapshot
	// round-trip cannot wipe the stored secret.
	if err := r.store.SaveTranslation(c.Request().Context(), creds); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r.engine.Snapshot())
}

type providerTestRequest struct {
	Provider string `json:"provider"`
}

type providerTestResponse struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

func (r *SettingsRouter) testProviderHandler(c echo.Context) error {
	var req providerTestRequest
	if err := c.Bind(&req); err != nil {
		return apperr.NewValidationWrap("invalid provider test payload", err)
	}
	if req.Provider == "" {
		return apperr.NewValidation("provider is required")
	}

	resp := providerTestResponse{Provider: req.Provider, OK: true}
	if err := r.engine.Probe(c.Request().Context(), req.Provider); err != nil {
		resp.OK = false
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}
