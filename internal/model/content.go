package model

import (
	"encoding/json"
	"fmt"
)

// Post is a news/blog post as returned by the backend.
type Post struct {
	ID           json.Number `json:"id"`
	Title        string      `json:"title"`
	Slug         string      `json:"slug"`
	Excerpt      string      `json:"excerpt"`
	Content      string      `json:"content"`
	Image        string      `json:"image"`
	CategoryName string      `json:"category_name"`
	CreatedAt    string      `json:"created_at"`
	UpdatedAt    string      `json:"updated_at"`
}

// Settings holds the subset of site settings the feed needs.
type Settings struct {
	SiteName        string `json:"site_name"`
	SiteDescription string `json:"site_description"`
	SiteLanguage    string `json:"site_language"`
}

// User is the authenticated account returned by the backend /me call.
type User struct {
	ID          json.Number `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	Roles       NameList    `json:"roles"`
	Permissions NameList    `json:"permissions"`
}

// NameList decodes either ["a","b"] or [{"name":"a"},{"name":"b"}].
type NameList []string

// UnmarshalJSON implements json.Unmarshaler.
func (n *NameList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		if string(data) == "null" {
			*n = nil
			return nil
		}
		return fmt.Errorf("name list: %w", err)
	}
	out := make(NameList, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("name list item: %w", err)
		}
		out = append(out, obj.Name)
	}
	*n = out
	return nil
}

// Has reports whether name is in the list.
func (n NameList) Has(name string) bool {
	for _, v := range n {
		if v == name {
			return true
		}
	}
	return false
}
