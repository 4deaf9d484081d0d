// Package guard protects member-only pages: it decides which pages need the
// member-area capability, sends anonymous visitors to the login form and
// answers authenticated but unauthorised users with a 403.
package guard

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/metrics"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
)

const (
	CurrentUserKey = "current_user"
	PageKey        = "page"
	HomeSlug       = "accueil"

	// DeniedTemplate is the theme object rendered in place of the generic 403 page.
	DeniedTemplate = "403.html"
)

type Checker interface {
	UserCan(ctx context.Context, user models.User, requested capability.Capability) bool
}

type PageFinder interface {
	GetBySlug(ctx context.Context, slug string) (models.Page, error)
}

// TemplateSource serves theme overrides. A nil source means no theme is installed.
type TemplateSource interface {
	Template(ctx context.Context, name string) (string, error)
}

type Guard struct {
	checker   Checker
	pages     PageFinder
	themes    TemplateSource
	slugs     map[string]struct{}
	loginPath string
	log       zerolog.Logger
}

func New(checker Checker, pages PageFinder, themes TemplateSource, protectedSlugs []string, loginPath string, log zerolog.Logger) *Guard {
	slugs := make(map[string]struct{}, len(protectedSlugs))
	for _, s := range protectedSlugs {
		s = strings.ToLower(strings.Trim(strings.TrimSpace(s), "/"))
		if s != "" {
			slugs[s] = struct{}{}
		}
	}
	if loginPath == "" {
		loginPath = "/connexion"
	}
	return &Guard{
		checker:   checker,
		pages:     pages,
		themes:    themes,
		slugs:     slugs,
		loginPath: loginPath,
		log:       log,
	}
}

// CurrentUser returns the authenticated user attached to the request, if any.
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok && user.ID > 0
}

func (g *Guard) IsProtectedPage(page models.Page) bool {
	if page.MembersOnly {
		return true
	}
	_, ok := g.slugs[strings.ToLower(page.Slug)]
	return ok
}

// IsAsync reports requests that must never be redirected to the login form.
func IsAsync(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func isAdmin(r *http.Request) bool {
	return r.URL.Path == "/admin" || strings.HasPrefix(r.URL.Path, "/admin/")
}

// Protect loads the page named by the :slug parameter, stores it on the
// context and enforces the member-area capability on protected pages.
func (g *Guard) Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdmin(c.Request) || IsAsync(c.Request) {
			c.Next()
			return
		}

		slug := strings.ToLower(strings.Trim(c.Param("slug"), "/"))
		if slug == "" {
			slug = HomeSlug
		}
		page, err := g.pages.GetBySlug(c.Request.Context(), slug)
		switch {
		case errors.Is(err, repository.ErrPageNotFound):
			page = models.Page{Slug: slug}
		case err != nil:
			g.log.Error().Err(err).Str("slug", slug).Msg("load page")
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		default:
			c.Set(PageKey, page)
		}

		if !g.IsProtectedPage(page) {
			c.Next()
			return
		}

		SetNoCacheHeaders(c)

		user, ok := CurrentUser(c)
		if !ok {
			g.HandleAccessDenied(c, ReasonNotLoggedIn)
			return
		}
		if !g.checker.UserCan(c.Request.Context(), user, capability.ReadMemberArea) {
			g.HandleAccessDenied(c, ReasonInsufficientPermissions)
			return
		}
		c.Next()
	}
}

// SetNoCacheHeaders keeps member pages out of shared caches and search indexes.
func SetNoCacheHeaders(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0, private")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Robots-Tag", "noindex, nofollow")
}

// LoginURL builds the login redirect carrying the requested URL and reason.
func (g *Guard) LoginURL(requested string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	if requested != "" {
		params.Set("redirect_to", requested)
	}
	if len(params) == 0 {
		return g.loginPath
	}
	return g.loginPath + "?" + params.Encode()
}

// HandleAccessDenied ends the request: anonymous visitors are redirected to
// login, authenticated users get a 403 page.
func (g *Guard) HandleAccessDenied(c *gin.Context, reason string) {
	reason = NormalizeReason(reason)
	metrics.AccessDeniedTotal.WithLabelValues(reason).Inc()

	if _, ok := CurrentUser(c); !ok {
		target := g.LoginURL(c.Request.URL.RequestURI(), url.Values{"reason": {reason}})
		c.Redirect(http.StatusFound, target)
		c.Abort()
		return
	}

	c.Data(http.StatusForbidden, "text/html; charset=utf-8", g.renderDenied(c.Request.Context(), reason))
	c.Abort()
}

type deniedView struct {
	Reason   string
	Message  string
	LoginURL string
}

var genericDenied = template.Must(template.New("denied").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<meta name="robots" content="noindex, nofollow">
<title>Accès refusé</title>
</head>
<body>
<main class="lemur-access-denied">
<h1>Accès refusé</h1>
<p>{{.Message}}</p>
<p><a href="/">Retour à l'accueil</a></p>
</main>
</body>
</html>
`))

func (g *Guard) renderDenied(ctx context.Context, reason string) []byte {
	view := deniedView{
		Reason:   reason,
		Message:  Message(reason),
		LoginURL: g.loginPath,
	}

	if g.themes != nil {
		if body, ok := g.renderThemed(ctx, view); ok {
			return body
		}
	}

	var buf bytes.Buffer
	if err := genericDenied.Execute(&buf, view); err != nil {
		return []byte(view.Message)
	}
	return buf.Bytes()
}

// ValidateTemplate reports whether body parses as a 403 page template.
func ValidateTemplate(body string) error {
	_, err := template.New(DeniedTemplate).Parse(body)
	return err
}

func (g *Guard) renderThemed(ctx context.Context, view deniedView) ([]byte, bool) {
	raw, err := g.themes.Template(ctx, DeniedTemplate)
	if err != nil {
		g.log.Debug().Err(err).Msg("no themed 403 template")
		return nil, false
	}
	tpl, err := template.New(DeniedTemplate).Parse(raw)
	if err != nil {
		g.log.Warn().Err(err).Msg("parse themed 403 template")
		return nil, false
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, view); err != nil {
		g.log.Warn().Err(err).Msg("render themed 403 template")
		return nil, false
	}
	return buf.Bytes(), true
}
