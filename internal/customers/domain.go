// Package customers tracks the customer registry synced by office clients.
package customers

// Profile is one customer record. Field names follow the client wire
// format.
type Profile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Notes   string `json:"notes,omitempty"`
	Status  string `json:"status,omitempty"`
}
