package sqlite

// ExecRaw runs a statement outside the store's API, for tests that need rows
// the store would never write.
func (s *Store) ExecRaw(query string, args ...any) error {
	_, err := s.db.Exec(query, args...)
	return err
}
