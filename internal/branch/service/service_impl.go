package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/branch/domain"
	"github.com/smallbiznis/trunkgate/internal/cache"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DestinationBroadcaster is the slice of the Rater client this service
// needs: destination-set replacement and tariff reloads.
type DestinationBroadcaster interface {
	SetDestination(ctx context.Context, name string, prefixes []string) error
	RemoveDestination(ctx context.Context, name string) error
	ReloadTariffPlan(ctx context.Context, tpid string) error
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	Dests       domain.DestinationRepository
	Cache       *cache.Cache
	Broadcaster DestinationBroadcaster
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	dests       domain.DestinationRepository
	cache       *cache.Cache
	broadcaster DestinationBroadcaster
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("branch.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		dests:       p.Dests,
		cache:       p.Cache,
		broadcaster: p.Broadcaster,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Branch, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*domain.Branch, error) {
	return s.repo.FindByCode(ctx, s.db, code)
}

func (s *Service) List(ctx context.Context, page pagination.Page) ([]*domain.Branch, int64, error) {
	return s.repo.List(ctx, s.db, page)
}

type CreateBranchRequest struct {
	BranchCode string
	Name       string
	MinRate    money.Amount
	MaxRate    money.Amount
	Prefixes   map[domain.CallClass][]string
}

func (s *Service) Create(ctx context.Context, req CreateBranchRequest) (*domain.Branch, error) {
	now := time.Now().UTC()
	branch := &domain.Branch{
		ID:         s.genID.Generate(),
		BranchCode: strings.TrimSpace(req.BranchCode),
		Name:       req.Name,
		MinRate:    req.MinRate,
		MaxRate:    req.MaxRate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, s.db, branch); err != nil {
		return nil, err
	}

	var prefixes []domain.BranchPrefix
	for class, ps := range req.Prefixes {
		for _, p := range ps {
			prefixes = append(prefixes, domain.BranchPrefix{
				ID:       s.genID.Generate(),
				BranchID: branch.ID,
				Prefix:   p,
				Class:    class,
			})
		}
	}
	if err := s.repo.ReplacePrefixes(ctx, s.db, branch.ID, prefixes); err != nil {
		return nil, err
	}
	branch.Prefixes = prefixes
	return branch, nil
}

// PrefixSets resolves the five disjoint prefix sets used for CDR
// binning: corporate/local/long-distance from the branch table, mobile
// and international from the global destination table.
func (s *Service) PrefixSets(ctx context.Context, branchID snowflake.ID) (map[domain.CallClass][]string, error) {
	branch, err := s.repo.FindByID(ctx, s.db, branchID)
	if err != nil {
		return nil, err
	}

	sets := map[domain.CallClass][]string{}
	for _, p := range branch.Prefixes {
		sets[p.Class] = append(sets[p.Class], p.Prefix)
	}

	mobile, err := s.dests.ByCode(ctx, s.db, domain.DestMobileNational)
	if err != nil {
		return nil, err
	}
	for _, d := range mobile {
		sets[domain.ClassMobile] = append(sets[domain.ClassMobile], d.Prefix)
	}

	for _, code := range []domain.DestinationCode{domain.DestMobileInternational, domain.DestLandlineInternational} {
		dests, err := s.dests.ByCode(ctx, s.db, code)
		if err != nil {
			return nil, err
		}
		for _, d := range dests {
			sets[domain.ClassInternational] = append(sets[domain.ClassInternational], d.Prefix)
		}
	}

	return sets, nil
}

// Classify returns the class of a dialed number for a branch. Corporate
// wins over local when a prefix matches both patterns.
func (s *Service) Classify(ctx context.Context, branchID snowflake.ID, number string) (domain.CallClass, error) {
	sets, err := s.PrefixSets(ctx, branchID)
	if err != nil {
		return "", err
	}
	for _, class := range domain.Classes {
		for _, prefix := range sets[class] {
			if strings.HasPrefix(number, prefix) {
				return class, nil
			}
		}
	}
	return domain.ClassLongDistance, nil
}

// MinMaxRate returns the branch's per-minute rate bounds, cached until
// the next tariff reload.
func (s *Service) MinMaxRate(ctx context.Context, branchCode string) (money.Amount, money.Amount, error) {
	if minV, ok := s.cache.GetInt64(ctx, cache.KeyBranchMinRate, branchCode); ok {
		if maxV, ok := s.cache.GetInt64(ctx, cache.KeyBranchMaxRate, branchCode); ok {
			return money.Amount(minV), money.Amount(maxV), nil
		}
	}
	branch, err := s.repo.FindByCode(ctx, s.db, branchCode)
	if err != nil {
		return 0, 0, err
	}
	s.cache.SetInt64(ctx, cache.KeyBranchMinRate, branchCode, int64(branch.MinRate), 0)
	s.cache.SetInt64(ctx, cache.KeyBranchMaxRate, branchCode, int64(branch.MaxRate), 0)
	return branch.MinRate, branch.MaxRate, nil
}

// ReloadTariff pushes a tariff reload to the Rater and drops the cached
// rate bounds for every branch.
func (s *Service) ReloadTariff(ctx context.Context, tpid string) error {
	if err := s.broadcaster.ReloadTariffPlan(ctx, tpid); err != nil {
		return err
	}
	branches, _, err := s.repo.List(ctx, s.db, pagination.Page{Bypass: true})
	if err != nil {
		return err
	}
	for _, b := range branches {
		s.cache.Delete(ctx, cache.KeyBranchMinRate, b.BranchCode)
		s.cache.Delete(ctx, cache.KeyBranchMaxRate, b.BranchCode)
	}
	return nil
}
