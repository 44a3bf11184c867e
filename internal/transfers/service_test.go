package transfers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/notifications"
	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/orderunits"
	"github.com/prepmood/prepmood-backend/internal/users"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/db/dbtest"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
)

type capturingNotifier struct {
	notices []notifications.TransferRequest
	fail    bool
}

func (n *capturingNotifier) OrderConfirmed(context.Context, notifications.OrderConfirmation) error {
	return nil
}

func (n *capturingNotifier) TransferRequested(_ context.Context, msg notifications.TransferRequest) error {
	n.notices = append(n.notices, msg)
	if n.fail {
		return errors.New("smtp down")
	}
	return nil
}

type fixture struct {
	svc        *service
	warranties warranties.Service
	conn       *gorm.DB
	notifier   *capturingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	ws, err := warranties.NewService(warranties.ServiceParams{
		Tx:     client,
		Repo:   warranties.NewRepository(conn),
		Orders: orders.NewRepository(conn),
		Units:  orderunits.NewRepository(conn),
		Outbox: emitter,
	})
	require.NoError(t, err)
	notifier := &capturingNotifier{}
	svc, err := NewService(Params{
		Tx:         client,
		Repo:       NewRepository(conn),
		Warranties: ws,
		Users:      users.NewRepository(conn),
		Outbox:     emitter,
		Notifier:   notifier,
	})
	require.NoError(t, err)
	return fixture{svc: svc.(*service), warranties: ws, conn: conn, notifier: notifier}
}

// activeWarranty seeds a member order and activates its only warranty.
func (f fixture) activeWarranty(t *testing.T) (models.User, models.Warranty) {
	t.Helper()
	ctx := context.Background()
	owner := dbtest.SeedUser(t, f.conn, "owner@example.com")
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{UserID: &owner.ID, Lines: []dbtest.LineSeed{
		{ProductID: "watch", Quantity: 1, UnitPrice: 2900000},
	}})
	units := dbtest.SeedOrderUnits(t, f.conn, order)
	var issued []warranties.Issued
	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		var err error
		issued, err = f.warranties.IssueForUnits(ctx, tx, &order, units)
		return err
	}))
	activated, err := f.warranties.Activate(ctx, warranties.ActivateInput{
		PublicID: issued[0].Warranty.PublicID,
		UserID:   owner.ID,
		Agreed:   true,
	})
	require.NoError(t, err)
	return owner, *activated
}

func TestRequestThenAcceptMovesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, warranty := f.activeWarranty(t)
	recipient := dbtest.SeedUser(t, f.conn, "next@example.com")

	requested, err := f.svc.Request(ctx, RequestInput{PublicID: warranty.PublicID, UserID: owner.ID, ToEmail: "next@example.com"})
	require.NoError(t, err)
	require.Len(t, f.notifier.notices, 1)
	code := f.notifier.notices[0].Code
	require.Len(t, code, CodeLength)
	require.Regexp(t, `^[0-9A-Z]{7}$`, code)

	accepted, err := f.svc.Accept(ctx, AcceptInput{TransferID: requested.TransferID, Code: code, UserID: recipient.ID})
	require.NoError(t, err)
	require.Equal(t, warranty.PublicID, accepted.WarrantyPublicID)

	var reloaded models.Warranty
	require.NoError(t, f.conn.First(&reloaded, "id = ?", warranty.ID).Error)
	require.Equal(t, recipient.ID, *reloaded.OwnerUserID)
	require.Equal(t, enums.WarrantyStatusActive, reloaded.Status)

	var transfer models.WarrantyTransfer
	require.NoError(t, f.conn.First(&transfer, "transfer_id = ?", requested.TransferID).Error)
	require.Equal(t, enums.TransferStatusCompleted, transfer.Status)
	require.Equal(t, recipient.ID, *transfer.ToUserID)

	var events int64
	require.NoError(t, f.conn.Model(&models.WarrantyEvent{}).
		Where("warranty_id = ? AND event_type = ?", warranty.ID, enums.WarrantyEventOwnershipTransferred).
		Count(&events).Error)
	require.EqualValues(t, 1, events)

	_, err = f.svc.Accept(ctx, AcceptInput{TransferID: requested.TransferID, Code: code, UserID: recipient.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, warranty := f.activeWarranty(t)
	stranger := dbtest.SeedUser(t, f.conn, "stranger@example.com")

	_, err := f.svc.Request(ctx, RequestInput{PublicID: warranty.PublicID, UserID: owner.ID, ToEmail: "not-an-email"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Request(ctx, RequestInput{PublicID: warranty.PublicID, UserID: owner.ID, ToEmail: "OWNER@example.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Request(ctx, RequestInput{PublicID: warranty.PublicID, UserID: stranger.ID, ToEmail: "next@example.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Request(ctx, RequestInput{PublicID: warranty.PublicID, UserID: owner.ID, ToEmail: "next@example.com"})
	require.NoError(t, err)
	_, err = f.svc.Request(ctx, RequestInput{PublicID: warranty.PublicID, UserID: owner.ID, ToEmail: "other@example.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestRequestRequiresActiveWarranty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := dbtest.SeedUser(t, f.conn, "owner@example.com")
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{UserID: &owner.ID, Lines: []dbtest.LineSeed{
		{ProductID: "watch", Quantity: 1, UnitPrice: 2900000},
	}})
	units := dbtest.SeedOrderUnits(t, f.conn, order)
	var issued []warranties.Issued
	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		var err error
		issued, err = f.warranties.IssueForUnits(ctx, tx, &order, units)
		return err
	}))

	_, err := f.svc.Request(ctx, RequestInput{PublicID: issued[0].Warranty.PublicID, UserID: owner.ID, ToEmail: "next@example.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestNotifierFailureKeepsTransfer(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true
	owner, warranty := f.activeWarranty(t)

	requested, err := f.svc.Request(context.Background(), RequestInput{PublicID: warranty.PublicID, UserID: owner.ID, ToEmail: "next@example.com"})
	require.NoError(t, err)
	var count int64
	require.NoError(t, f.conn.Model(&models.WarrantyTransfer{}).Where("transfer_id = ?", requested.TransferID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestAcceptChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, warranty := f.activeWarranty(t)
	recipient := dbtest.SeedUser(t, f.conn, "next@example.com")
	other := dbtest.SeedUser(t, f.conn, "other@example.com")

	requested, err := f.svc.Request(ctx, RequestInput{PublicID: warranty.PublicID, UserID: owner.ID, ToEmail: "next@example.com"})
	require.NoError(t, err)
	code := f.notifier.notices[0].Code

	_, err = f.svc.Accept(ctx, AcceptInput{TransferID: requested.TransferID, Code: "ABC", UserID: recipient.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	wrong := "0000000"
	if code == wrong {
		wrong = "1111111"
	}
	_, err = f.svc.Accept(ctx, AcceptInput{TransferID: requested.TransferID, Code: wrong, UserID: recipient.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Accept(ctx, AcceptInput{TransferID: requested.TransferID, Code: code, UserID: other.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	// the owner moved the warranty elsewhere in the meantime
	require.NoError(t, f.conn.Model(&models.Warranty{}).Where("id = ?", warranty.ID).Update("owner_user_id", other.ID).Error)
	_, err = f.svc.Accept(ctx, AcceptInput{TransferID: requested.TransferID, Code: code, UserID: recipient.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, map[string]any{"reason": "OWNER_CHANGED"}, appErr.Details())
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, warranty := f.activeWarranty(t)
	recipient := dbtest.SeedUser(t, f.conn, "next@example.com")

	requested, err := f.svc.Request(ctx, RequestInput{PublicID: warranty.PublicID, UserID: owner.ID, ToEmail: "next@example.com"})
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(73 * time.Hour) }
	expired, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)

	_, err = f.svc.Accept(ctx, AcceptInput{TransferID: requested.TransferID, Code: f.notifier.notices[0].Code, UserID: recipient.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Request(ctx, RequestInput{PublicID: warranty.PublicID, UserID: owner.ID, ToEmail: "next@example.com"})
	require.NoError(t, err)
}
