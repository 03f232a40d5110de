package types

// ShieldReference pulls the components of a shield module into a profile
type ShieldReference struct {
	Module string `json:"module"`
	Prefix string `json:"prefix,omitempty"`
	// PinOffset shifts every pin of the shield, for stacked or remapped headers
	PinOffset int `json:"pin_offset,omitempty"`
}

// ShieldDefinition is a reusable set of components, e.g. a button/LED add-on board
type ShieldDefinition struct {
	Shield     ShieldInfo            `json:"shield"`
	Components []ComponentDefinition `json:"components"`
}

type ShieldInfo struct {
	ID          string `json:"id"`
	Vendor      string `json:"vendor,omitempty"`
	Model       string `json:"model,omitempty"`
	Description string `json:"description,omitempty"`
}
