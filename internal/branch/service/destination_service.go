package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/branch/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type DestinationParams struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Dests       domain.DestinationRepository
	Broadcaster DestinationBroadcaster
}

// DestinationService owns the global destination table. Every mutation
// is broadcast to the Rater as a full destination-set replacement.
type DestinationService struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	dests       domain.DestinationRepository
	broadcaster DestinationBroadcaster
}

func NewDestinations(p DestinationParams) *DestinationService {
	return &DestinationService{
		db:          p.DB,
		log:         p.Log.Named("destination.service"),
		genID:       p.GenID,
		dests:       p.Dests,
		broadcaster: p.Broadcaster,
	}
}

type UpsertDestinationRequest struct {
	Prefix      string
	Name        string
	Code        domain.DestinationCode
	CountryCode string
}

func validCode(code domain.DestinationCode) bool {
	switch code {
	case domain.DestMobileNational, domain.DestMobileInternational,
		domain.DestLandlineNational, domain.DestLandlineInternational:
		return true
	}
	return false
}

func (s *DestinationService) Create(ctx context.Context, req UpsertDestinationRequest) (*domain.Destination, error) {
	if !validCode(req.Code) {
		return nil, domain.ErrInvalidCode
	}
	now := time.Now().UTC()
	dest := &domain.Destination{
		ID:          s.genID.Generate(),
		Prefix:      strings.TrimSpace(req.Prefix),
		Name:        strings.TrimSpace(req.Name),
		Code:        req.Code,
		CountryCode: req.CountryCode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.dests.Insert(ctx, s.db, dest); err != nil {
		return nil, err
	}
	if err := s.broadcast(ctx, dest.Name); err != nil {
		return nil, err
	}
	return dest, nil
}

func (s *DestinationService) Update(ctx context.Context, id snowflake.ID, req UpsertDestinationRequest) (*domain.Destination, error) {
	dest, err := s.dests.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	oldName := dest.Name
	if req.Prefix != "" {
		dest.Prefix = strings.TrimSpace(req.Prefix)
	}
	if req.Name != "" {
		dest.Name = strings.TrimSpace(req.Name)
	}
	if req.Code != "" {
		if !validCode(req.Code) {
			return nil, domain.ErrInvalidCode
		}
		dest.Code = req.Code
	}
	if req.CountryCode != "" {
		dest.CountryCode = req.CountryCode
	}
	dest.UpdatedAt = time.Now().UTC()
	if err := s.dests.Update(ctx, s.db, dest); err != nil {
		return nil, err
	}
	if err := s.broadcast(ctx, dest.Name); err != nil {
		return nil, err
	}
	if oldName != dest.Name {
		if err := s.broadcast(ctx, oldName); err != nil {
			return nil, err
		}
	}
	return dest, nil
}

func (s *DestinationService) Delete(ctx context.Context, id snowflake.ID) error {
	dest, err := s.dests.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if err := s.dests.Delete(ctx, s.db, id); err != nil {
		return err
	}
	return s.broadcast(ctx, dest.Name)
}

func (s *DestinationService) List(ctx context.Context, page pagination.Page, orderBy string) ([]*domain.Destination, int64, error) {
	return s.dests.List(ctx, s.db, page, orderBy)
}

func (s *DestinationService) Names(ctx context.Context) ([]string, error) {
	return s.dests.Names(ctx, s.db)
}

// broadcast replaces the Rater's prefix set for one destination name; an
// empty remainder removes the destination.
func (s *DestinationService) broadcast(ctx context.Context, name string) error {
	remaining, err := s.dests.ByName(ctx, s.db, name)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return s.broadcaster.RemoveDestination(ctx, name)
	}
	prefixes := make([]string, 0, len(remaining))
	for _, d := range remaining {
		prefixes = append(prefixes, d.Prefix)
	}
	return s.broadcaster.SetDestination(ctx, name, prefixes)
}
