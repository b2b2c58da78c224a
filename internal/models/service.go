package models

// Service is one entry of the catalog offered by the join form.
type Service struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

const ServiceOther = "other"

var ServiceCatalog = []Service{
	{Key: "general", Label: "General Inquiry"},
	{Key: "account", Label: "Account Services"},
	{Key: "payments", Label: "Payments & Billing"},
	{Key: "documents", Label: "Document Submission"},
	{Key: "support", Label: "Technical Support"},
	{Key: ServiceOther, Label: "Other"},
}

// LookupService returns the catalog entry for key.
func LookupService(key string) (Service, bool) {
	for _, s := range ServiceCatalog {
		if s.Key == key {
			return s, true
		}
	}
	return Service{}, false
}
