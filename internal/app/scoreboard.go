package app

import (
	"sync"

	"gameday-service/internal/domain"
)

// ScoreboardHub fans campaign scoreboard snapshots out to live subscribers
// (websocket clients, mostly). Publishing never blocks on a slow consumer.
type ScoreboardHub struct {
	mu     sync.Mutex
	boards map[int64]*board
}

type board struct {
	mu          sync.Mutex
	subscribers map[chan domain.Scoreboard]struct{}
	last        domain.Scoreboard
	seeded      bool
}

func NewScoreboardHub() *ScoreboardHub {
	return &ScoreboardHub{boards: make(map[int64]*board)}
}

// Subscribe returns a channel receiving scoreboard updates for a campaign,
// primed with the last known snapshot if one exists. The caller must invoke
// the returned cancel function to avoid leaks.
func (h *ScoreboardHub) Subscribe(campaignID int64) (<-chan domain.Scoreboard, func()) {
	b := h.board(campaignID)

	ch := make(chan domain.Scoreboard, 8)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	if b.seeded {
		ch <- b.last
	}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish pushes a new snapshot to every subscriber, replacing a stale
// undelivered update rather than waiting on a full channel.
func (h *ScoreboardHub) Publish(sb domain.Scoreboard) {
	b := h.board(sb.CampaignID)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = sb
	b.seeded = true
	for ch := range b.subscribers {
		select {
		case ch <- sb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- sb
		}
	}
}

func (h *ScoreboardHub) board(campaignID int64) *board {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.boards[campaignID]
	if !ok {
		b = &board{subscribers: make(map[chan domain.Scoreboard]struct{})}
		h.boards[campaignID] = b
	}
	return b
}
