package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

const maxNumberingAttempts = 5

// ErrNumberingExhausted means five consecutive header inserts lost the
// race for a transaction number. The sale is not recorded.
var ErrNumberingExhausted = errors.New("transaction numbering exhausted")

// nextTransactionNumber derives a candidate number of the form
// YYYYMMDD-NNNN. The date prefix is re-read on every call so a sale
// started just before midnight lands on the correct day, and the retry
// attempt is folded into the sequence so two racing callers diverge
// instead of colliding on the same candidate forever.
func (s *Service) nextTransactionNumber(ctx context.Context, attempt int) (string, error) {
	prefix := time.Now().UTC().Format("20060102")

	numbers, err := s.repo.ListTransactionNumbers(ctx, prefix+"-")
	if err != nil {
		return "", err
	}

	maxSeq := 0
	for _, number := range numbers {
		suffix, ok := strings.CutPrefix(number, prefix+"-")
		if !ok {
			continue
		}
		seq, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}

	return fmt.Sprintf("%s-%04d", prefix, maxSeq+1+attempt), nil
}

// reserveTransaction inserts the header under a freshly derived number,
// retrying on a uniqueness conflict with a fresh record id and a fresh
// candidate each time. The store's unique index on the number column is
// the arbiter; this loop never trusts its own scan.
func (s *Service) reserveTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	for attempt := 0; attempt < maxNumberingAttempts; attempt++ {
		number, err := s.nextTransactionNumber(ctx, attempt)
		if err != nil {
			return nil, err
		}

		tx.ID = uuid.NewString()
		tx.Number = number

		created, err := s.repo.CreateTransaction(ctx, tx)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicateNumber) {
			return nil, err
		}
		s.logger.WithField("number", number).Debug("service: transaction number taken, retrying")
	}
	return nil, ErrNumberingExhausted
}
