package invoices

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	"github.com/prepmood/prepmood-backend/pkg/pagination"
)

// Repository persists invoices and credit notes. Rows are insert only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.Invoice) error
	NumberExists(ctx context.Context, number string) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindInvoiceForOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	LockInvoiceForOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	FindByRefundEventID(ctx context.Context, refundEventID string) (*models.Invoice, error)
	ListForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Invoice, error)
	OrderOwner(ctx context.Context, orderID uuid.UUID) (*uuid.UUID, error)
	AccountEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) NumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("invoice_number = ?", number).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindInvoiceForOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	return r.findInvoiceForOrder(r.db.WithContext(ctx), orderID)
}

// LockInvoiceForOrder is the last lock a refund takes.
func (r *repository) LockInvoiceForOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	return r.findInvoiceForOrder(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
}

func (r *repository) findInvoiceForOrder(db *gorm.DB, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := db.
		Where("order_id = ? AND type = ?", orderID, enums.InvoiceTypeInvoice).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByRefundEventID(ctx context.Context, refundEventID string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Where("refund_event_id = ?", refundEventID).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Invoice, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Joins("JOIN orders ON orders.id = invoices.order_id").
		Where("orders.user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(invoices.created_at < ?) OR (invoices.created_at = ? AND invoices.id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Invoice
	err := query.
		Select("invoices.*").
		Order("invoices.created_at DESC").
		Order("invoices.id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) OrderOwner(ctx context.Context, orderID uuid.UUID) (*uuid.UUID, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Select("id", "user_id").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return order.UserID, nil
}

// AccountEmail returns "" when the account no longer exists.
func (r *repository) AccountEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Select("id", "email").
		Where("id = ?", userID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
