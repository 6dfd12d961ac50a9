package model

import "time"

type Family struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	RootCode    string    `json:"root_code,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Public hides the root code from non-root members.
func (f Family) Public() Family {
	f.RootCode = ""
	return f
}
