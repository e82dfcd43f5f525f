package roster

import "github.com/ignite/listkeeper/internal/domain"

// EffectivePreferences resolves the preferences in force for a membership by
// walking membership, subscribing address, subscribing user, and finally the
// system defaults, taking the first non-nil value for each field. Either
// addr or user may be nil when that layer does not apply.
func EffectivePreferences(m *domain.Membership, addr *domain.Address, user *domain.User) domain.Preferences {
	layers := []domain.Preferences{m.Preferences}
	if addr != nil {
		layers = append(layers, addr.Preferences)
	}
	if user != nil {
		layers = append(layers, user.Preferences)
	}
	layers = append(layers, domain.DefaultPreferences())

	var out domain.Preferences
	for _, l := range layers {
		if out.DeliveryMode == nil {
			out.DeliveryMode = l.DeliveryMode
		}
		if out.DeliveryStatus == nil {
			out.DeliveryStatus = l.DeliveryStatus
		}
		if out.PreferredLanguage == nil {
			out.PreferredLanguage = l.PreferredLanguage
		}
		if out.AcknowledgePosts == nil {
			out.AcknowledgePosts = l.AcknowledgePosts
		}
		if out.HideAddress == nil {
			out.HideAddress = l.HideAddress
		}
		if out.ReceiveOwnPostings == nil {
			out.ReceiveOwnPostings = l.ReceiveOwnPostings
		}
		if out.ReceiveListCopy == nil {
			out.ReceiveListCopy = l.ReceiveListCopy
		}
	}
	return out
}
