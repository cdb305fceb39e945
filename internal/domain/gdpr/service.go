package gdpr

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/platform/blobstore"
	"github.com/carebenefits/platform/internal/platform/db"
)

var ErrNotFound = errors.New("user not found")

// Result reports rows touched per step.
type Result struct {
	UserID       uuid.UUID        `json:"user_id"`
	Tables       map[string]int64 `json:"tables"`
	FilesRemoved int              `json:"files_removed"`
}

type Service struct {
	planner *Planner
	repo    Repository
	blobs   blobstore.Store
	tx      db.TxFunc
	logger  zerolog.Logger
}

func NewService(planner *Planner, repo Repository, blobs blobstore.Store, tx db.TxFunc, logger zerolog.Logger) *Service {
	return &Service{
		planner: planner,
		repo:    repo,
		blobs:   blobs,
		tx:      tx,
		logger:  logger.With().Str("component", "gdpr").Logger(),
	}
}

// DeleteUser removes every row belonging to the user in one transaction.
// Receipt files are removed after commit; a failed file delete is logged and
// does not undo the purge.
func (s *Service) DeleteUser(ctx context.Context, userID uuid.UUID) (*Result, error) {
	res := &Result{UserID: userID, Tables: map[string]int64{}}
	var keys []string
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		if keys, err = s.repo.SourceBlobKeys(ctx, userID); err != nil {
			return err
		}
		for _, st := range s.planner.Plan() {
			n, err := s.repo.Exec(ctx, st.SQL, userID)
			if err != nil {
				return fmt.Errorf("purge %s: %w", st.Name, err)
			}
			res.Tables[st.Name] = n
		}
		if res.Tables["member"] == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, k := range keys {
		if err := s.blobs.Delete(ctx, k); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", k).Msg("failed to remove receipt file")
			continue
		}
		res.FilesRemoved++
	}
	s.logger.Info().Str("user_id", userID.String()).Int("files", res.FilesRemoved).Msg("user data deleted")
	return res, nil
}
