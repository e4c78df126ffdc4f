package widget

import (
	"sync"
	"time"

	"github.com/kbdesk/backend/internal/models"
)

// DefaultNoticeTTL is how long a status notice stays visible.
const DefaultNoticeTTL = 5 * time.Second

// noticeBoard keeps the latest notice and hides it after ttl. A newer notice
// replaces the older one and restarts the timer.
type noticeBoard struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	current  *models.Notice
	timer    *time.Timer
	onExpire func()
}

func newNoticeBoard(ttl time.Duration, now func() time.Time, onExpire func()) *noticeBoard {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	return &noticeBoard{ttl: ttl, now: now, onExpire: onExpire}
}

func (b *noticeBoard) post(kind models.NoticeKind, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = &models.Notice{Kind: kind, Message: message, ExpiresAt: b.now().Add(b.ttl)}
	if b.timer != nil {
		b.timer.Stop()
	}
	if b.onExpire != nil {
		b.timer = time.AfterFunc(b.ttl, b.onExpire)
	}
}

// visible returns the current notice unless it has expired.
func (b *noticeBoard) visible() *models.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil || !b.now().Before(b.current.ExpiresAt) {
		return nil
	}
	n := *b.current
	return &n
}

func (b *noticeBoard) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}
