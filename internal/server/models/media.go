package models

// Media is a stored attachment as returned to the client.
type Media struct {
	URL  string
	Type string
}
