package mysql

import "context"

// Transactional runs fn inside START TRANSACTION/COMMIT, rolling
// back on any error fn returns (spec.md §4.9, "Transactional
// wrapper"). Nesting on a session already inside a transaction fails
// with ClientError{NestedTransaction}.
func (s *Session) Transactional(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.inTransaction {
		s.mu.Unlock()
		return newClientError(ErrNestedTransaction)
	}
	s.inTransaction = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inTransaction = false
		s.mu.Unlock()
	}()

	if _, err := s.Execute(ctx, "START TRANSACTION"); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		if _, rerr := s.Execute(ctx, "ROLLBACK"); rerr != nil {
			return rerr
		}
		return err
	}

	if _, err := s.Execute(ctx, "COMMIT"); err != nil {
		return err
	}
	return nil
}

// InTransaction reports whether the session currently has an
// uncommitted transaction open.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTransaction
}
