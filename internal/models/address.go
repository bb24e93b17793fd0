package models

import "strings"

type Address struct {
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	Street      string `json:"street"`
	City        string `json:"city"`
	Governorate string `json:"governorate,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Country     string `json:"country,omitempty"`
}

// MissingFields retourne la liste des champs obligatoires absents
func (a Address) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(a.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(a.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(a.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	return missing
}
