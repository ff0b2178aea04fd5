package transfer

// SetCommitBarrier installs a hook that runs between the DEBIT and CREDIT
// writes inside the atomic unit. Tests use it to widen the commit window or to
// inject a storage failure mid-unit; returning an error aborts the unit.
func SetCommitBarrier(s *Service, fn func() error) {
	s.commitBarrier = fn
}
