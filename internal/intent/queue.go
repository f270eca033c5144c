// Package intent holds player-authored movement intents between the moment
// the UI produces them and the moment the server confirms or invalidates
// them. Intents chain into tracks (contiguous paths); only the head track's
// first move is ever eligible to be sent, and a broken link discards the
// whole track it belongs to.
package intent

import "time"

// Move is a single-step movement intent. ID is the correlation id the server
// echoes back in successful_move_sends; it is unique and monotonically
// increasing for the lifetime of the connection.
type Move struct {
	FromX     int
	FromY     int
	ToX       int
	ToY       int
	ID        int64
	CreatedAt time.Time
	Sent      bool
}

// Track is an ordered chain of moves where each move starts on the previous
// move's destination.
type Track struct {
	ID        int
	Moves     []Move
	CreatedAt time.Time
}

// end returns the coordinates the track currently finishes on.
func (t *Track) end() (int, int, bool) {
	if len(t.Moves) == 0 {
		return 0, 0, false
	}
	last := t.Moves[len(t.Moves)-1]
	return last.ToX, last.ToY, true
}

// Queue is the ordered collection of tracks. It is not safe for concurrent
// use; the engine loop is its only caller.
type Queue struct {
	tracks      []*Track
	nextTrackID int
	nextMoveID  int64
	now         func() time.Time
}

// NewQueue builds an empty queue.
func NewQueue() *Queue {
	return &Queue{nextTrackID: 1, nextMoveID: 1, now: time.Now}
}

// Enqueue appends a movement intent, chaining onto the last track when the
// new move starts where that track ends and opening a new track otherwise.
func (q *Queue) Enqueue(fromX, fromY, toX, toY int) Move {
	move := Move{
		FromX:     fromX,
		FromY:     fromY,
		ToX:       toX,
		ToY:       toY,
		ID:        q.nextMoveID,
		CreatedAt: q.now(),
	}
	q.nextMoveID++

	if n := len(q.tracks); n > 0 {
		last := q.tracks[n-1]
		if endX, endY, ok := last.end(); ok && endX == fromX && endY == fromY {
			last.Moves = append(last.Moves, move)
			return move
		}
	}

	track := &Track{
		ID:        q.nextTrackID,
		Moves:     []Move{move},
		CreatedAt: move.CreatedAt,
	}
	q.nextTrackID++
	q.tracks = append(q.tracks, track)
	return move
}

// Head returns the first move of the head track. Empty tracks are pruned on
// the way.
func (q *Queue) Head() (Move, bool) {
	q.prune()
	if len(q.tracks) == 0 {
		return Move{}, false
	}
	return q.tracks[0].Moves[0], true
}

// MarkHeadSent flags the head move as transmitted. It stays queued until a
// map snapshot confirms it; the server decides whether it executed.
func (q *Queue) MarkHeadSent() {
	q.prune()
	if len(q.tracks) == 0 {
		return
	}
	q.tracks[0].Moves[0].Sent = true
}

// DropHeadTrack discards the entire head track and reports what was dropped.
func (q *Queue) DropHeadTrack() (Track, bool) {
	q.prune()
	if len(q.tracks) == 0 {
		return Track{}, false
	}
	dropped := *q.tracks[0]
	q.tracks = q.tracks[1:]
	return dropped, true
}

// Confirm removes every move whose correlation id the server reported as
// applied, wherever it sits in the queue, and prunes emptied tracks. It
// returns the number of moves removed.
func (q *Queue) Confirm(ids []int64) int {
	if len(ids) == 0 {
		return 0
	}
	confirmed := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		confirmed[id] = struct{}{}
	}

	removed := 0
	for _, track := range q.tracks {
		kept := track.Moves[:0]
		for _, move := range track.Moves {
			if _, ok := confirmed[move.ID]; ok {
				removed++
				continue
			}
			kept = append(kept, move)
		}
		track.Moves = kept
	}
	q.prune()
	return removed
}

// Clear drops every queued track.
func (q *Queue) Clear() {
	q.tracks = nil
}

// Len reports the number of queued tracks.
func (q *Queue) Len() int {
	q.prune()
	return len(q.tracks)
}

// Pending reports the number of queued moves across all tracks.
func (q *Queue) Pending() int {
	q.prune()
	n := 0
	for _, track := range q.tracks {
		n += len(track.Moves)
	}
	return n
}

// Tracks returns a copy of the queue for inspection.
func (q *Queue) Tracks() []Track {
	q.prune()
	out := make([]Track, len(q.tracks))
	for i, track := range q.tracks {
		out[i] = Track{
			ID:        track.ID,
			Moves:     append([]Move(nil), track.Moves...),
			CreatedAt: track.CreatedAt,
		}
	}
	return out
}

func (q *Queue) prune() {
	kept := q.tracks[:0]
	for _, track := range q.tracks {
		if len(track.Moves) > 0 {
			kept = append(kept, track)
		}
	}
	q.tracks = kept
}
