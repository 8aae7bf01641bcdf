package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"distribution-service/internal/auth"
	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const userIDAttempts = 5

// PartnerService manages accounts and issues capability tokens
type PartnerService struct {
	repo       store.Repository
	tokens     *auth.TokenIssuer
	bcryptCost int
	logger     *zap.Logger
}

func NewPartnerService(repo store.Repository, tokens *auth.TokenIssuer, bcryptCost int) *PartnerService {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &PartnerService{
		repo:       repo,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     util.GetLogger(),
	}
}

type CreatePartnerRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"omitempty,phone10"`
	Address string `json:"address" validate:"max=1024"`
}

// CreatePartnerResponse carries the generated password; it is never shown again
type CreatePartnerResponse struct {
	Partner  *models.Partner `json:"partner"`
	Password string          `json:"password"`
}

type LoginRequest struct {
	UserID   string `json:"userid" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Session   models.Session `json:"session"`
}

// CreatePartner registers a partner with a generated userid and password
func (s *PartnerService) CreatePartner(ctx context.Context, session models.Session, req *CreatePartnerRequest) (*CreatePartnerResponse, error) {
	ctx, span := util.StartSpan(ctx, "PartnerService.CreatePartner")
	defer span.End()

	if !session.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can create partners", models.ErrForbidden)
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	password, err := GeneratePassword()
	if err != nil {
		return nil, fmt.Errorf("%w: generate password: %v", models.ErrTransactionFailure, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", models.ErrTransactionFailure, err)
	}

	partner := &models.Partner{
		PasswordHash: string(hash),
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		PartnerType:  models.PartnerTypePartner,
	}

	// the random suffix can collide with an existing userid
	for attempt := 1; ; attempt++ {
		partner.UserID, err = GenerateUserID(req.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: generate userid: %v", models.ErrTransactionFailure, err)
		}
		err = s.repo.CreatePartner(ctx, partner)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrConflict) || attempt == userIDAttempts {
			util.RecordError(span, err)
			return nil, classify(err)
		}
	}

	s.logger.Info("Partner created",
		zap.Int64("partner_id", partner.ID),
		zap.String("userid", partner.UserID),
		zap.String("created_by", session.UserID))

	return &CreatePartnerResponse{Partner: partner, Password: password}, nil
}

// EnsureAdmin creates the admin account when it does not exist yet
func (s *PartnerService) EnsureAdmin(ctx context.Context, userID, password string) error {
	_, err := s.repo.GetPartnerByUserID(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return err
	}
	admin := &models.Partner{
		UserID:       userID,
		PasswordHash: string(hash),
		Name:         "Administrator",
		PartnerType:  models.PartnerTypeAdmin,
	}
	if err := s.repo.CreatePartner(ctx, admin); err != nil && !errors.Is(err, models.ErrConflict) {
		return err
	}

	s.logger.Info("Admin account seeded", zap.String("userid", userID))
	return nil
}

// Login checks credentials and returns a capability token
func (s *PartnerService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	ctx, span := util.StartSpan(ctx, "PartnerService.Login")
	defer span.End()

	if err := validateStruct(req); err != nil {
		return nil, err
	}

	partner, err := s.repo.GetPartnerByUserID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("Login failed", zap.String("userid", req.UserID), zap.String("reason", "unknown userid"))
			return nil, fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
		}
		return nil, classify(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(partner.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("Login failed", zap.String("userid", req.UserID), zap.String("reason", "bad password"))
		return nil, fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
	}

	session := models.Session{PartnerID: partner.ID, UserID: partner.UserID, Type: partner.PartnerType}
	token, exp, err := s.tokens.Issue(session)
	if err != nil {
		return nil, fmt.Errorf("%w: issue token: %v", models.ErrTransactionFailure, err)
	}

	s.logger.Info("Login succeeded", zap.String("userid", partner.UserID), zap.String("partner_type", string(partner.PartnerType)))
	return &LoginResponse{Token: token, ExpiresAt: exp, Session: session}, nil
}

func (s *PartnerService) ListPartners(ctx context.Context, session models.Session) ([]models.Partner, error) {
	if !session.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can list partners", models.ErrForbidden)
	}
	return s.repo.ListPartners(ctx)
}

// GetPartnerInventory lists the products a partner holds stock of
func (s *PartnerService) GetPartnerInventory(ctx context.Context, session models.Session, partnerID int64) ([]models.PartnerStock, error) {
	if !session.CanActFor(partnerID) {
		return nil, fmt.Errorf("%w: inventory of another partner", models.ErrForbidden)
	}
	if _, err := s.repo.GetPartnerByID(ctx, partnerID); err != nil {
		return nil, err
	}
	return s.repo.ListPartnerInventory(ctx, partnerID)
}
