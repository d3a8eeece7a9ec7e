package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/observability/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateStore opens a store with its own STORE wallet. The creator becomes
// a seller holding every right.
func (s *Service) CreateStore(ctx context.Context, userID snowflake.ID, req domain.CreateStoreRequest) (*domain.Store, error) {
	allowed, err := s.groups.HasPermission(ctx, userID.String(), PermissionCreateStore)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrStoreCreationForbidden
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidStoreName
	}

	now := s.clock.Now()
	wallet := &domain.Wallet{ID: uuid.New(), Type: domain.WalletTypeStore, CreatedAt: now}
	store := &domain.Store{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		WalletID:  wallet.ID,
		CreatedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertWallet(ctx, tx, wallet); err != nil {
			return err
		}
		if err := s.repo.InsertStore(ctx, tx, store); err != nil {
			return err
		}
		return s.repo.InsertSeller(ctx, tx, &domain.Seller{
			UserID:           userID,
			StoreID:          store.ID,
			CanBank:          true,
			CanSeeHistory:    true,
			CanCancel:        true,
			CanManageSellers: true,
		})
	})
	if err != nil {
		return nil, err
	}
	logger.WithContext(ctx, s.log).Info("store created",
		zap.String("store_id", store.ID.String()),
		zap.String("slug", store.Slug),
		zap.String("user_id", userID.String()),
	)
	return store, nil
}

func (s *Service) CreateSeller(ctx context.Context, userID, storeID snowflake.ID, req domain.CreateSellerRequest) (*domain.Seller, error) {
	store, err := s.repo.FindStore(ctx, s.db, storeID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, domain.ErrStoreNotFound
	}
	manager, err := s.repo.FindSeller(ctx, s.db, storeID, userID)
	if err != nil {
		return nil, err
	}
	if manager == nil || !manager.CanManageSellers {
		return nil, domain.ErrManageSellersForbidden
	}

	sellerID, err := parseUserID(strings.TrimSpace(req.UserID))
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetUserByID(ctx, sellerID.String()); err != nil {
		return nil, domain.ErrUserNotFound
	}

	seller := &domain.Seller{
		UserID:           sellerID,
		StoreID:          storeID,
		CanBank:          req.CanBank,
		CanSeeHistory:    req.CanSeeHistory,
		CanCancel:        req.CanCancel,
		CanManageSellers: req.CanManageSellers,
	}
	if err := s.repo.InsertSeller(ctx, s.db, seller); err != nil {
		return nil, err
	}
	logger.WithContext(ctx, s.log).Info("seller added",
		zap.String("store_id", storeID.String()),
		zap.String("seller_user_id", sellerID.String()),
		zap.String("user_id", userID.String()),
	)
	s.notify(ctx, sellerID, "Vendeur - "+store.Name, "Vous avez été ajouté comme vendeur")
	return seller, nil
}
