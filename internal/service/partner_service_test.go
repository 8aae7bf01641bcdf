package service

import (
	"testing"
	"time"

	"distribution-service/internal/auth"
	"distribution-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newPartnerService(f *fixture) (*PartnerService, *auth.TokenIssuer) {
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	return NewPartnerService(f.repo, tokens, bcrypt.MinCost), tokens
}

func TestCreatePartnerAndLogin(t *testing.T) {
	f := newFixture(t)
	partners, tokens := newPartnerService(f)

	created, err := partners.CreatePartner(f.ctx, f.admin, &CreatePartnerRequest{
		Name:  "Sri Balaji Traders",
		Email: "balaji@example.com",
		Phone: "9123456780",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^sribalajitraders\d{1,3}$`, created.Partner.UserID)
	assert.Regexp(t, `^[A-Za-z0-9]{12}$`, created.Password)
	assert.Equal(t, models.PartnerTypePartner, created.Partner.PartnerType)
	assert.NotEqual(t, created.Password, created.Partner.PasswordHash)

	resp, err := partners.Login(f.ctx, &LoginRequest{UserID: created.Partner.UserID, Password: created.Password})
	require.NoError(t, err)
	assert.Equal(t, created.Partner.ID, resp.Session.PartnerID)
	assert.Equal(t, models.PartnerTypePartner, resp.Session.Type)

	session, err := tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Session, *session)

	_, err = partners.Login(f.ctx, &LoginRequest{UserID: created.Partner.UserID, Password: "wrong"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = partners.Login(f.ctx, &LoginRequest{UserID: "nobody", Password: "wrong"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = partners.Login(f.ctx, &LoginRequest{UserID: "nobody"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCreatePartnerRejections(t *testing.T) {
	f := newFixture(t)
	partners, _ := newPartnerService(f)
	partner := f.addPartner(t, "acme1")

	_, err := partners.CreatePartner(f.ctx, partner, &CreatePartnerRequest{Name: "Rival"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = partners.CreatePartner(f.ctx, f.admin, &CreatePartnerRequest{Name: "Rival", Phone: "12345"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = partners.CreatePartner(f.ctx, f.admin, &CreatePartnerRequest{Name: "Rival", Email: "not-an-email"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = partners.ListPartners(f.ctx, partner)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	partners, _ := newPartnerService(f)

	require.NoError(t, partners.EnsureAdmin(f.ctx, "root", "s3cret-pass"))
	require.NoError(t, partners.EnsureAdmin(f.ctx, "root", "ignored"))

	resp, err := partners.Login(f.ctx, &LoginRequest{UserID: "root", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.True(t, resp.Session.IsAdmin())

	all, err := partners.ListPartners(f.ctx, resp.Session)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetPartnerInventory(t *testing.T) {
	f := newFixture(t)
	partners, _ := newPartnerService(f)
	partner, soap := stockPartner(t, f, 4)
	other := f.addPartner(t, "other2")

	rows, err := partners.GetPartnerInventory(f.ctx, partner, partner.PartnerID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, soap, rows[0].ProductID)
	assert.Equal(t, "Soap", rows[0].ProductName)
	assert.Equal(t, 4, rows[0].Stock)

	_, err = partners.GetPartnerInventory(f.ctx, other, partner.PartnerID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = partners.GetPartnerInventory(f.ctx, f.admin, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
