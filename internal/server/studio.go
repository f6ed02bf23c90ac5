package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/auth"
	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"github.com/MarcoPoloResearchLab/sundae/internal/leads"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	"github.com/MarcoPoloResearchLab/sundae/internal/render"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	opStudioCreateBlock = "studio.create_block"
	opStudioUpdateBlock = "studio.update_block"
	opStudioMoveBlock   = "studio.move_block"
	opStudioSettings    = "studio.settings"
	opE2ELogin          = "auth.e2e_login"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type createBlockRequest struct {
	Type string `json:"type" form:"type"`
}

type moveBlockRequest struct {
	Direction string `json:"direction" form:"direction"`
}

type profileSettingsRequest struct {
	DisplayName string `json:"displayName" form:"displayName"`
	Bio         string `json:"bio" form:"bio"`
	AvatarURL   string `json:"avatarUrl" form:"avatarUrl"`
}

type handleSettingsRequest struct {
	Handle string `json:"handle" form:"handle"`
}

type themeSettingsRequest struct {
	Background       string `json:"background" form:"background"`
	Effects          string `json:"effects" form:"effects"`
	Layout           string `json:"layout" form:"layout"`
	CardBackground   string `json:"cardBackground" form:"cardBackground"`
	Text             string `json:"text" form:"text"`
	MutedText        string `json:"mutedText" form:"mutedText"`
	ButtonBackground string `json:"buttonBackground" form:"buttonBackground"`
	ButtonText       string `json:"buttonText" form:"buttonText"`
	Accent           string `json:"accent" form:"accent"`
}

type presetRequest struct {
	PresetID string `json:"presetId" form:"presetId"`
}

type e2eLoginRequest struct {
	Email string `json:"email" form:"email"`
	Name  string `json:"name" form:"name"`
}

type userPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type editorPayload struct {
	User      userPayload       `json:"user"`
	Profile   profiles.Profile  `json:"profile"`
	Theme     profiles.Theme    `json:"theme"`
	Presets   []profiles.Preset `json:"presets"`
	Blocks    []blocks.Block    `json:"blocks"`
	PublicURL string            `json:"publicUrl"`
}

type realtimeEventPayload struct {
	ProfileID string `json:"profileId"`
	LeadID    string `json:"leadId,omitempty"`
	LeadKind  string `json:"leadKind,omitempty"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

func (h *httpHandler) handleEditor(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	list, err := h.blocks.List(c.Request.Context(), creator.Profile.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, editorPayload{
		User: userPayload{
			ID:          creator.User.ID,
			Email:       creator.User.Email,
			DisplayName: creator.User.DisplayName,
			AvatarURL:   creator.User.AvatarURL,
		},
		Profile:   creator.Profile,
		Theme:     creator.Profile.ThemeSettings().WithDefaults(),
		Presets:   profiles.Presets(),
		Blocks:    list,
		PublicURL: h.baseURL(c.Request) + "/" + creator.Profile.Handle,
	})
}

func (h *httpHandler) handleCreateBlock(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request createBlockRequest
	if err := c.ShouldBind(&request); err != nil {
		h.writeError(c, apperr.Invalid(opStudioCreateBlock, "invalid_request", err))
		return
	}
	blockType, err := blocks.ParseType(request.Type)
	if err != nil {
		h.writeError(c, apperr.Invalid(opStudioCreateBlock, "invalid_block_type", err))
		return
	}
	block, err := h.blocks.Create(c.Request.Context(), creator.Profile.ID, blockType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"block": block})
}

// handleUpdateBlock replaces a block payload from the editor form.
func (h *httpHandler) handleUpdateBlock(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := c.Request.ParseForm(); err != nil {
		h.writeError(c, apperr.Invalid(opStudioUpdateBlock, "invalid_form", err))
		return
	}
	block, err := h.blocks.Update(c.Request.Context(), creator.Profile.ID, c.Param("id"), c.Request.PostForm)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"block": block})
}

func (h *httpHandler) handleToggleBlock(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	block, err := h.blocks.Toggle(c.Request.Context(), creator.Profile.ID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"block": block})
}

func (h *httpHandler) handleMoveBlock(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request moveBlockRequest
	if err := c.ShouldBind(&request); err != nil {
		h.writeError(c, apperr.Invalid(opStudioMoveBlock, "invalid_request", err))
		return
	}
	direction, err := blocks.ParseDirection(request.Direction)
	if err != nil {
		h.writeError(c, apperr.Invalid(opStudioMoveBlock, "invalid_direction", err))
		return
	}
	ctx := c.Request.Context()
	if err := h.blocks.Move(ctx, creator.Profile.ID, c.Param("id"), direction); err != nil {
		h.writeError(c, err)
		return
	}
	list, err := h.blocks.List(ctx, creator.Profile.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": list})
}

func (h *httpHandler) handleDeleteBlock(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.blocks.Delete(c.Request.Context(), creator.Profile.ID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request profileSettingsRequest
	if err := c.ShouldBind(&request); err != nil {
		h.writeError(c, apperr.Invalid(opStudioSettings, "invalid_request", err))
		return
	}
	profile, err := h.profiles.UpdateProfile(c.Request.Context(), creator.Profile.ID, profiles.ProfileInput{
		DisplayName: request.DisplayName,
		Bio:         request.Bio,
		AvatarURL:   request.AvatarURL,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// handleDeleteProfile removes the page and everything recorded against it. The next
// studio request provisions a fresh starter page.
func (h *httpHandler) handleDeleteProfile(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.accounts.DeleteProfile(c.Request.Context(), creator.Profile.ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleUpdateHandle(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request handleSettingsRequest
	if err := c.ShouldBind(&request); err != nil {
		h.writeError(c, apperr.Invalid(opStudioSettings, "invalid_request", err))
		return
	}
	profile, err := h.profiles.UpdateHandle(c.Request.Context(), creator.Profile.ID, request.Handle)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *httpHandler) handleUpdateTheme(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request themeSettingsRequest
	if err := c.ShouldBind(&request); err != nil {
		h.writeError(c, apperr.Invalid(opStudioSettings, "invalid_request", err))
		return
	}
	profile, err := h.profiles.UpdateTheme(c.Request.Context(), creator.Profile.ID, profiles.ThemeInput{
		Background:       request.Background,
		Effects:          request.Effects,
		Layout:           request.Layout,
		CardBackground:   request.CardBackground,
		Text:             request.Text,
		MutedText:        request.MutedText,
		ButtonBackground: request.ButtonBackground,
		ButtonText:       request.ButtonText,
		Accent:           request.Accent,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile, "theme": profile.ThemeSettings().WithDefaults()})
}

func (h *httpHandler) handleApplyThemePreset(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request presetRequest
	if err := c.ShouldBind(&request); err != nil {
		h.writeError(c, apperr.Invalid(opStudioSettings, "invalid_request", err))
		return
	}
	profile, err := h.profiles.ApplyThemePreset(c.Request.Context(), creator.Profile.ID, request.PresetID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile, "theme": profile.ThemeSettings().WithDefaults()})
}

func (h *httpHandler) handleListLeads(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.leads.List(c.Request.Context(), creator.Profile.ID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []leads.Lead{}
	}
	c.JSON(http.StatusOK, gin.H{"leads": list})
}

func (h *httpHandler) handleExportLeads(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	workbook, err := h.leads.ExportWorkbook(c.Request.Context(), creator.Profile.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="sundae-leads-%s.xlsx"`, creator.Profile.Handle))
	c.Data(http.StatusOK, xlsxContentType, workbook)
}

func (h *httpHandler) handleAnalyticsDashboard(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	dashboard, err := h.analytics.Dashboard(c.Request.Context(), creator.Profile.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// handlePreview renders the creator's own page with direct links and no view tracking.
func (h *httpHandler) handlePreview(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	list, err := h.blocks.ListEnabled(c.Request.Context(), creator.Profile.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	page, err := h.renderer.Render(render.Page{
		Profile:   creator.Profile,
		Blocks:    list,
		LinkMode:  render.LinkModeDirect,
		Preview:   true,
		Embed:     c.Query("embed") == "1",
		Submitted: c.Query(submittedParam) == "1",
	})
	if err != nil {
		h.logger.Error("preview render failed", zap.String("profile_id", creator.Profile.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failed"})
		return
	}
	c.Data(http.StatusOK, htmlContentType, page)
}

// handleEventStream streams lead-captured and page-updated events as server-sent events.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	creator, ok := creatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, creator.Profile.ID)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	greeted := false
	c.Stream(func(io.Writer) bool {
		if !greeted {
			greeted = true
			h.sendEvent(c, realtimeEventHeartbeat, realtimeEventPayload{ProfileID: creator.Profile.ID})
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			h.sendEvent(c, message.EventType, realtimeEventPayload{
				ProfileID: message.ProfileID,
				LeadID:    message.LeadID,
				LeadKind:  message.LeadKind,
				Timestamp: message.Timestamp.UTC().Format(time.RFC3339),
			})
			return true
		case <-heartbeat.C:
			h.sendEvent(c, realtimeEventHeartbeat, realtimeEventPayload{ProfileID: creator.Profile.ID})
			return true
		}
	})
}

func (h *httpHandler) sendEvent(c *gin.Context, eventType string, payload realtimeEventPayload) {
	payload.Source = realtimeSourceBackend
	if payload.Timestamp == "" {
		payload.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	c.SSEvent(eventType, payload)
}

// handleE2ELogin mints a session for an email address. It is only routed when e2e logins are enabled.
func (h *httpHandler) handleE2ELogin(c *gin.Context) {
	var request e2eLoginRequest
	if err := c.ShouldBind(&request); err != nil {
		h.writeError(c, apperr.Invalid(opE2ELogin, "invalid_request", err))
		return
	}
	email := normalizeEmail(request.Email)
	if email == "" {
		h.writeError(c, apperr.Invalid(opE2ELogin, "missing_email", auth.ErrMissingIdentity))
		return
	}
	token, expiresAt, err := h.issuer.Issue(auth.Identity{
		UserID:      "e2e:" + email,
		Email:       email,
		DisplayName: request.Name,
	})
	if err != nil {
		h.writeError(c, apperr.Internal(opE2ELogin, "issue_failed", err))
		return
	}
	http.SetCookie(c.Writer, h.issuer.Cookie(token, expiresAt))
	c.JSON(http.StatusOK, gin.H{"ok": true, "expiresAt": expiresAt.UTC().Format(time.RFC3339)})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.sessions.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func normalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}
