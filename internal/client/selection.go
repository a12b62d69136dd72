package client

import "sync"

// Selection is the set of selected record ids. It is keyed by id, never by
// row index, so it survives page changes and refreshes.
type Selection struct {
	mu     sync.RWMutex
	ids    map[int64]struct{}
	order  []int64
	across bool
}

func NewSelection() *Selection {
	return &Selection{ids: map[int64]struct{}{}}
}

// Toggle flips one id and reports whether it is now selected.
func (s *Selection) Toggle(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		s.remove(id)
		return false
	}
	s.add(id)
	return true
}

func (s *Selection) Select(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.add(id)
	}
}

func (s *Selection) Deselect(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.remove(id)
	}
}

func (s *Selection) IsSelected(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// IDs returns the selected ids in the order they were selected.
func (s *Selection) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.order...)
}

// Across reports whether the selection came from the whole filtered result.
func (s *Selection) Across() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.across
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = map[int64]struct{}{}
	s.order = nil
	s.across = false
}

// SelectVisible selects the ids of rows, nothing else.
func (s *Selection) SelectVisible(rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if id := r.ID(); id > 0 {
			s.add(id)
		}
	}
}

// DeselectVisible removes the ids of rows and keeps selections made on
// other pages.
func (s *Selection) DeselectVisible(rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.remove(r.ID())
	}
}

// AllVisibleSelected is true when rows is non-empty and every row is selected.
func (s *Selection) AllVisibleSelected(rows []Row) bool {
	if len(rows) == 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range rows {
		if _, ok := s.ids[r.ID()]; !ok {
			return false
		}
	}
	return true
}

// replaceAcross swaps the selection for the ids of a whole filtered result.
func (s *Selection) replaceAcross(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[int64]struct{}, len(ids))
	s.order = nil
	for _, id := range ids {
		s.add(id)
	}
	s.across = true
}

func (s *Selection) add(id int64) {
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *Selection) remove(id int64) {
	if _, ok := s.ids[id]; !ok {
		return
	}
	delete(s.ids, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if len(s.order) == 0 {
		s.across = false
	}
}
