package server

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/leads"
	"github.com/MarcoPoloResearchLab/sundae/internal/monitoring"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	"github.com/MarcoPoloResearchLab/sundae/internal/render"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	publicPageVariant = "public"
	submittedParam    = "submitted"
	sitemapNamespace  = "http://www.sitemaps.org/schemas/sitemap/0.9"
)

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handlePublicPage serves /{handle} with tracked links and the view beacon.
func (h *httpHandler) handlePublicPage(c *gin.Context) {
	ctx := c.Request.Context()
	handle := profiles.NormalizeHandle(c.Param("handle"))
	profile, err := h.profiles.GetByHandle(ctx, handle)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			h.writeNotFoundPage(c, handle)
			return
		}
		h.writeError(c, err)
		return
	}

	submitted := c.Query(submittedParam) == "1"
	cacheable := !submitted
	var generation uint64
	if cacheable {
		cached, ok, err := h.cache.Get(ctx, profile.ID, publicPageVariant)
		if err != nil {
			h.logger.Warn("page cache read failed", zap.String("profile_id", profile.ID), zap.Error(err))
		}
		monitoring.RecordPageCache(ok)
		if ok {
			c.Data(http.StatusOK, htmlContentType, cached)
			return
		}
		// The generation is read before the page data so a mutation committed while
		// rendering makes the write below a no-op.
		generation, err = h.cache.Generation(ctx, profile.ID)
		if err != nil {
			h.logger.Warn("page cache read failed", zap.String("profile_id", profile.ID), zap.Error(err))
			cacheable = false
		}
		if profile, err = h.profiles.GetByID(ctx, profile.ID); err != nil {
			h.writeError(c, err)
			return
		}
	}

	pageBlocks, err := h.blocks.ListEnabled(ctx, profile.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	page, err := h.renderer.Render(render.Page{
		Profile:    profile,
		Blocks:     pageBlocks,
		LinkMode:   render.LinkModeTracked,
		TrackViews: true,
		Submitted:  submitted,
	})
	if err != nil {
		h.logger.Error("public page render failed", zap.String("profile_id", profile.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failed"})
		return
	}
	if cacheable {
		if err := h.cache.Set(ctx, profile.ID, publicPageVariant, generation, page); err != nil {
			h.logger.Warn("page cache write failed", zap.String("profile_id", profile.ID), zap.Error(err))
		}
	}
	c.Data(http.StatusOK, htmlContentType, page)
}

func (h *httpHandler) writeNotFoundPage(c *gin.Context, handle string) {
	page, err := h.renderer.RenderNotFound(handle)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found"})
		return
	}
	c.Data(http.StatusNotFound, htmlContentType, page)
}

func (h *httpHandler) handleDemo(c *gin.Context) {
	page, err := h.renderer.Render(render.DemoPage())
	if err != nil {
		h.logger.Error("demo page render failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failed"})
		return
	}
	c.Data(http.StatusOK, htmlContentType, page)
}

// handleRedirect answers /r/{blockId} with a 302 to the stored destination.
func (h *httpHandler) handleRedirect(c *gin.Context) {
	target, err := h.redirects.Resolve(c.Request.Context(), c.Param("blockId"), c.ClientIP())
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			c.String(http.StatusNotFound, "Not found")
			return
		}
		h.writeError(c, err)
		return
	}
	monitoring.RecordAnalyticsEvent("click", string(target.Click.Status))
	c.Redirect(http.StatusFound, target.URL)
}

// handleLeadCapture stores a signup or contact form post.
func (h *httpHandler) handleLeadCapture(c *gin.Context) {
	submission := leads.Submission{
		ProfileID: c.Query("profileId"),
		Kind:      c.Query("kind"),
		Email:     c.PostForm("email"),
		Name:      c.PostForm("name"),
		Message:   c.PostForm("message"),
		Honeypot:  c.PostForm("company"),
		BaseURL:   h.baseURL(c.Request),
	}
	kindLabel := "unknown"
	if kind, ok := leads.ParseKind(submission.Kind); ok {
		kindLabel = string(kind)
	}

	result, err := h.leads.Capture(c.Request.Context(), submission)
	if err != nil {
		monitoring.RecordLead(kindLabel, "rejected")
		h.writeError(c, err)
		return
	}
	if result.Honeypot {
		monitoring.RecordLead(kindLabel, "honeypot")
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	monitoring.RecordLead(kindLabel, "stored")
	monitoring.RecordNotification(string(result.Notification.Status))

	if location, ok := sameOriginReferrer(c.Request); ok {
		c.Redirect(http.StatusSeeOther, location)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type viewRequest struct {
	Handle string `json:"handle"`
}

// handleAnalyticsView records a page view. It always answers {"ok": true}.
func (h *httpHandler) handleAnalyticsView(c *gin.Context) {
	var request viewRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		request = viewRequest{}
	}
	result := h.analytics.RecordView(c.Request.Context(), request.Handle, c.ClientIP())
	monitoring.RecordAnalyticsEvent("view", string(result.Status))
	result.Log(h.logger, "view recording", zap.String("handle", request.Handle))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleRobots(c *gin.Context) {
	body := fmt.Sprintf("User-agent: *\nAllow: /\n\nSitemap: %s/sitemap.xml\n", h.canonicalBaseURL())
	c.String(http.StatusOK, body)
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Location string `xml:"loc"`
}

func (h *httpHandler) handleSitemap(c *gin.Context) {
	handles, err := h.profiles.ListHandles(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	base := h.canonicalBaseURL()
	set := sitemapURLSet{XMLNS: sitemapNamespace, URLs: []sitemapURL{{Location: base + "/"}, {Location: base + "/demo"}}}
	for _, handle := range handles {
		set.URLs = append(set.URLs, sitemapURL{Location: base + "/" + url.PathEscape(handle)})
	}
	encoded, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sitemap_failed"})
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", append([]byte(xml.Header), encoded...))
}

func (h *httpHandler) canonicalBaseURL() string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	return h.appURL
}

// baseURL is the configured app URL, or the origin the request arrived on.
func (h *httpHandler) baseURL(r *http.Request) string {
	if h.appURL != "" {
		return h.appURL
	}
	return requestOrigin(r)
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0]); forwarded != "" {
		scheme = strings.ToLower(forwarded)
	}
	return scheme + "://" + r.Host
}

// sameOriginReferrer returns the Referer with submitted=1 when it shares the request origin.
func sameOriginReferrer(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Referer())
	if raw == "" {
		return "", false
	}
	referrer, err := url.Parse(raw)
	if err != nil || referrer.Host == "" {
		return "", false
	}
	origin := strings.ToLower(referrer.Scheme) + "://" + strings.ToLower(referrer.Host)
	if origin != strings.ToLower(requestOrigin(r)) {
		return "", false
	}
	query := referrer.Query()
	query.Set(submittedParam, "1")
	referrer.RawQuery = query.Encode()
	return referrer.String(), true
}
