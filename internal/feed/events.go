package feed

// EventType names a feed mutation.
type EventType string

const (
	EventPostCreated     EventType = "moment_created"
	EventPostDeleted     EventType = "moment_deleted"
	EventLikeChanged     EventType = "like"
	EventCommentAdded    EventType = "comment"
	EventCommentsDeleted EventType = "comments_deleted"
	EventCleared         EventType = "cleared"
	EventRestored        EventType = "restored"
)

// Event describes a mutation that has already been applied to the store.
type Event struct {
	Type   EventType `json:"type"`
	PostID int64     `json:"postId,omitempty"`
	Data   any       `json:"data,omitempty"`
}

// Listener receives store events. Listeners are called synchronously after
// the store lock is released and must not block for long.
type Listener func(Event)

// Subscribe registers l for every subsequent event.
func (s *Store) Subscribe(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) emit(ev Event) {
	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
