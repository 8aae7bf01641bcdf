package models

// Session is the verified caller identity handed to every service operation.
// Handlers build it from the capability token; services never look it up.
type Session struct {
	PartnerID int64       `json:"partner_id"`
	UserID    string      `json:"userid"`
	Type      PartnerType `json:"partner_type"`
}

func (s Session) IsAdmin() bool {
	return s.Type == PartnerTypeAdmin
}

// CanActFor reports whether the session may act on partnerID's behalf
func (s Session) CanActFor(partnerID int64) bool {
	return s.IsAdmin() || s.PartnerID == partnerID
}

// CanSetDiscount is reserved to admins
func (s Session) CanSetDiscount() bool {
	return s.IsAdmin()
}
