package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/reelchat/internal/backend"
	"github.com/kalambet/reelchat/internal/logging"
)

// ErrNotFound is returned by Find when no video matches.
var ErrNotFound = errors.New("video not found")

// Backend is the subset of the backend client the library needs.
type Backend interface {
	ListVideos(ctx context.Context) ([]backend.Video, error)
	DeleteVideo(ctx context.Context, id string) error
}

// Service wraps the backend's library endpoints.
type Service struct {
	backend     Backend
	concurrency int
	logger      *slog.Logger
}

func NewService(b Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend:     b,
		concurrency: 4,
		logger:      logging.WithComponent(logger, "library"),
	}
}

func (s *Service) List(ctx context.Context) ([]Video, error) {
	raw, err := s.backend.ListVideos(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	videos := make([]Video, 0, len(raw))
	for _, v := range raw {
		videos = append(videos, fromBackend(v))
	}
	return videos, nil
}

// Find looks a video up by its public id, case-insensitively.
func (s *Service) Find(ctx context.Context, name string) (Video, error) {
	videos, err := s.List(ctx)
	if err != nil {
		return Video{}, err
	}
	for _, v := range videos {
		if strings.EqualFold(v.PublicID, name) {
			return v, nil
		}
	}
	return Video{}, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// Delete removes the video identified by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("a video id is required")
	}
	if err := s.backend.DeleteVideo(ctx, id); err != nil {
		return fmt.Errorf("deleting %q: %w", id, err)
	}
	s.logger.Info("video deleted", "id", id)
	return nil
}

// DeleteMany deletes ids concurrently. Every id is attempted; the returned
// error joins the failures.
func (s *Service) DeleteMany(ctx context.Context, ids []string) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			if err := s.Delete(gCtx, id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
