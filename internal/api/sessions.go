package api

import (
	"net/http"
	"sort"
	"time"
)

type sessionUser struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joinedAt"`
}

type sessionListItem struct {
	DocumentID   string        `json:"documentId"`
	Title        string        `json:"title,omitempty"`
	Users        []sessionUser `json:"users"`
	UserCount    int           `json:"userCount"`
	TextLength   int           `json:"textLength"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity"`
}

func (h *Handler) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := h.registry.List()

	items := make([]sessionListItem, 0, len(sessions))
	for _, s := range sessions {
		view := s.DocumentView()
		title, _ := view.Metadata["title"].(string)

		users := s.Users()
		apiUsers := make([]sessionUser, 0, len(users))
		for _, u := range users {
			apiUsers = append(apiUsers, sessionUser{
				UserID:   u.ID,
				UserName: u.Name,
				Color:    u.Color,
				JoinedAt: u.JoinedAt,
			})
		}

		items = append(items, sessionListItem{
			DocumentID:   s.DocumentID(),
			Title:        title,
			Users:        apiUsers,
			UserCount:    len(apiUsers),
			TextLength:   len(view.Text),
			CreatedAt:    s.CreatedAt(),
			LastActivity: s.LastActivity(),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].DocumentID < items[j].DocumentID })

	writeJSON(w, http.StatusOK, items)
}
