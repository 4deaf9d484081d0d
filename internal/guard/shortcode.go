package guard

import (
	"html"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/roles"
)

// Viewer is what the shortcodes need to know about the reader of a page.
type Viewer struct {
	LoggedIn      bool
	Member        bool
	Bureau        bool
	Administrator bool
	Collectifs    []string
}

func (g *Guard) ViewerFor(c *gin.Context) Viewer {
	user, ok := CurrentUser(c)
	if !ok {
		return Viewer{}
	}
	ctx := c.Request.Context()
	return Viewer{
		LoggedIn:      true,
		Member:        g.checker.UserCan(ctx, user, capability.ReadMemberArea),
		Bureau:        g.checker.UserCan(ctx, user, capability.ManageMembers),
		Administrator: capability.IsAdministrator(user.Roles),
		Collectifs:    user.Collectifs,
	}
}

var (
	reMembre        = regexp.MustCompile(`(?s)\[lemur_membre\](.*?)\[/lemur_membre\]`)
	reMembreMessage = regexp.MustCompile(`(?s)\[lemur_membre_message(?:\s+message="([^"]*)")?\s*\](.*?)\[/lemur_membre_message\]`)
	reBureau        = regexp.MustCompile(`(?s)\[lemur_bureau\](.*?)\[/lemur_bureau\]`)
	reCollectif     = regexp.MustCompile(`(?s)\[lemur_collectif(?:\s+nom="([^"]*)")?\s*\](.*?)\[/lemur_collectif\]`)
)

// RenderShortcodes expands the member-area shortcodes in page content for v.
// Hidden blocks disappear except the member blocks, which leave a notice.
func RenderShortcodes(content string, v Viewer, loginURL string) string {
	content = reCollectif.ReplaceAllStringFunc(content, func(m string) string {
		sub := reCollectif.FindStringSubmatch(m)
		name := strings.TrimSpace(sub[1])
		if name == "" || !(v.Administrator || roles.InCollectif(v.Collectifs, name)) {
			return ""
		}
		return RenderShortcodes(sub[2], v, loginURL)
	})

	content = reBureau.ReplaceAllStringFunc(content, func(m string) string {
		if !v.Bureau {
			return ""
		}
		return RenderShortcodes(reBureau.FindStringSubmatch(m)[1], v, loginURL)
	})

	content = reMembreMessage.ReplaceAllStringFunc(content, func(m string) string {
		sub := reMembreMessage.FindStringSubmatch(m)
		if v.Member {
			return RenderShortcodes(sub[2], v, loginURL)
		}
		msg := sub[1]
		if msg == "" {
			msg = "Ce contenu est réservé aux membres."
		}
		return `<div class="lemur-members-only">` + html.EscapeString(msg) + `</div>`
	})

	content = reMembre.ReplaceAllStringFunc(content, func(m string) string {
		if v.Member {
			return RenderShortcodes(reMembre.FindStringSubmatch(m)[1], v, loginURL)
		}
		if !v.LoggedIn {
			return `<div class="lemur-members-only"><p>Ce contenu est réservé aux membres. <a href="` +
				html.EscapeString(loginURL) + `">Se connecter</a></p></div>`
		}
		return `<div class="lemur-members-only"><p>Ce contenu est réservé aux membres de l'association.</p></div>`
	})

	return content
}
