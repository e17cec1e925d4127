package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
)

const DefaultTypingTimeout = 5 * time.Second

type typingKey struct {
	channelID uuid.UUID
	userID    uuid.UUID
}

type typingState struct {
	who   domain.Identity
	conn  string
	gen   uint64
	timer *time.Timer
}

// TypingService tracks who is typing where. A key is present in active
// exactly while that user is typing in that channel. State is process-local
// and never persisted.
type TypingService struct {
	mu       sync.Mutex
	active   map[typingKey]*typingState
	gen      uint64
	timeout  time.Duration
	notifier Notifier
}

func NewTypingService(timeout time.Duration) *TypingService {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingService{
		active:   make(map[typingKey]*typingState),
		timeout:  timeout,
		notifier: nopNotifier{},
	}
}

func (s *TypingService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Start broadcasts typing.started on the idle to typing edge and (re)arms
// the expiry timer on every call.
func (s *TypingService) Start(channelID uuid.UUID, who domain.Identity, connID string) {
	key := typingKey{channelID: channelID, userID: who.UserID}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	st, ok := s.active[key]
	if ok {
		st.timer.Stop()
		st.conn = connID
	} else {
		st = &typingState{who: who, conn: connID}
		s.active[key] = st
		s.notifier.NotifyTyping(channelID, who, true, connID)
	}

	st.gen = s.gen
	gen := st.gen
	st.timer = time.AfterFunc(s.timeout, func() { s.expire(key, gen) })
}

// Stop always broadcasts typing.stopped, even when the user was idle.
func (s *TypingService) Stop(channelID uuid.UUID, who domain.Identity, connID string) {
	key := typingKey{channelID: channelID, userID: who.UserID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.active[key]; ok {
		st.timer.Stop()
		delete(s.active, key)
	}
	s.notifier.NotifyTyping(channelID, who, false, connID)
}

// StopAllForUser ends every typing state of the user. It runs on
// disconnect and logout, so there is no originating connection to skip.
func (s *TypingService) StopAllForUser(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, st := range s.active {
		if key.userID != userID {
			continue
		}
		st.timer.Stop()
		delete(s.active, key)
		s.notifier.NotifyTyping(key.channelID, st.who, false, "")
	}
}

func (s *TypingService) IsTyping(channelID, userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[typingKey{channelID: channelID, userID: userID}]
	return ok
}

// expire fires from the timer goroutine. Generations are unique per Start
// call, so a stale one means Start or Stop won the race.
func (s *TypingService) expire(key typingKey, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.active[key]
	if !ok || st.gen != gen {
		return
	}
	delete(s.active, key)
	s.notifier.NotifyTyping(key.channelID, st.who, false, st.conn)
}
