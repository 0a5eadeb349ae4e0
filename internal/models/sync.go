package models

import "time"

// SyncSnapshot is the authoritative state a terminal mirrors on every pull
type SyncSnapshot struct {
	ServerTime time.Time `json:"server_time"`
	Products   []Product `json:"products"`
	Khatas     []Khata   `json:"khatas"`
	Sales      []Sale    `json:"sales"`
}
