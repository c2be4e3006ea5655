// Package accounts is the tenant registry: one row per contractor
// company, keyed by admin username, carrying the crew access PIN and
// credentials. It also issues and verifies the bearer tokens the action
// endpoint trusts.
package accounts

import "time"

// Account is one registered company.
type Account struct {
	Username     string
	PasswordHash string
	CompanyName  string
	TenantID     string
	CrewPin      string
	Email        string
	CreatedAt    time.Time
}

// Session is the login response shipped to clients.
type Session struct {
	Username    string `json:"username"`
	CompanyName string `json:"companyName"`
	TenantID    string `json:"tenantId"`
	Role        string `json:"role"`
	Token       string `json:"token"`
	CrewPin     string `json:"crewPin,omitempty"`
}

// TrialLead is one trial interest submission.
type TrialLead struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
