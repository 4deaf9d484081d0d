package guard

const (
	ReasonNotLoggedIn             = "not_logged_in"
	ReasonInsufficientPermissions = "insufficient_permissions"
	ReasonSessionExpired          = "session_expired"
	ReasonBureauRequired          = "bureau_required"
	ReasonCollectifRequired       = "collectif_required"
)

var messages = map[string]string{
	ReasonNotLoggedIn:             "Vous devez être connecté pour accéder à cette page.",
	ReasonInsufficientPermissions: "Vous n'avez pas les permissions nécessaires pour accéder à cette page.",
	ReasonSessionExpired:          "Votre session a expiré. Veuillez vous reconnecter.",
	ReasonBureauRequired:          "Cette page est réservée aux membres du bureau.",
	ReasonCollectifRequired:       "Cette page est réservée aux membres du collectif concerné.",
}

// NormalizeReason maps unknown codes to insufficient_permissions.
func NormalizeReason(reason string) string {
	if _, ok := messages[reason]; ok {
		return reason
	}
	return ReasonInsufficientPermissions
}

func Message(reason string) string {
	return messages[NormalizeReason(reason)]
}
