package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/merchline/api/internal/domain"
	pfirestore "github.com/merchline/api/internal/platform/firestore"
	"github.com/merchline/api/internal/platform/pagination"
	"github.com/merchline/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	transactionsCollection = "transactions"
)

// OrderRepository persists orders and runs the transactional lifecycle
// mutations. Every mutating method re-reads the touched documents inside a
// single Firestore transaction before writing, so concurrent checkouts,
// cancellations and webhook deliveries serialise at the store.
type OrderRepository struct {
	provider     *pfirestore.Provider
	orders       *pfirestore.BaseRepository[orderDocument]
	variants     *pfirestore.BaseRepository[variantDocument]
	vouchers     *pfirestore.BaseRepository[voucherDocument]
	transactions *pfirestore.BaseRepository[transactionDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider:     provider,
		orders:       pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		variants:     pfirestore.NewBaseRepository[variantDocument](provider, variantsCollection, nil, nil),
		vouchers:     pfirestore.NewBaseRepository[voucherDocument](provider, vouchersCollection, nil, nil),
		transactions: pfirestore.NewBaseRepository[transactionDocument](provider, transactionsCollection, nil, nil),
	}, nil
}

func (r *OrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.Order.ID) == "" {
		return domain.Order{}, errors.New("order place: order id is required")
	}
	if len(req.Order.Items) == 0 {
		return domain.Order{}, errors.New("order place: at least one item is required")
	}

	now := req.Now.UTC()
	order := req.Order
	order.CreatedAt = now
	order.UpdatedAt = now

	var placed domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}

		// Firestore requires all reads before the first write, so the
		// variant and voucher documents are loaded up front.
		type stockWrite struct {
			ref *firestore.DocumentRef
			doc variantDocument
		}
		stockWrites := make([]stockWrite, 0, len(req.StockDeltas))
		var short []string
		for _, delta := range req.StockDeltas {
			ref, err := r.variants.DocumentRef(ctx, delta.VariantID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewInventoryError(repositories.InventoryErrorVariantNotFound, fmt.Sprintf("variant %s not found", delta.VariantID), []string{delta.VariantID}, err)
				}
				return err
			}
			var doc variantDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode variant %s: %w", delta.VariantID, err)
			}
			if doc.Stock+delta.Delta < 0 {
				short = append(short, delta.VariantID)
				continue
			}
			doc.Stock += delta.Delta
			doc.UpdatedAt = now
			stockWrites = append(stockWrites, stockWrite{ref: ref, doc: doc})
		}
		if len(short) > 0 {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s", strings.Join(short, ", ")), short, nil)
		}

		type usageWrite struct {
			ref *firestore.DocumentRef
			doc voucherDocument
		}
		usageWrites := make([]usageWrite, 0, len(req.VoucherUsageDeltas))
		for _, delta := range req.VoucherUsageDeltas {
			ref, err := r.vouchers.DocumentRef(ctx, delta.VoucherID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewVoucherError(repositories.VoucherErrorNotFound, fmt.Sprintf("voucher %s not found", delta.VoucherID), nil, err)
				}
				return err
			}
			var doc voucherDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode voucher %s: %w", delta.VoucherID, err)
			}
			doc.UsedCount += delta.Delta
			doc.UpdatedAt = now
			usageWrites = append(usageWrites, usageWrite{ref: ref, doc: doc})
		}

		for _, write := range stockWrites {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}
		for _, write := range usageWrites {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}

		orderDoc := newOrderDocument(order)
		if err := tx.Create(orderRef, orderDoc); err != nil {
			return err
		}

		placed = orderDoc.toDomain(order.ID)
		return nil
	})
	if err != nil {
		// Create preconditions are checked at commit, so a colliding order
		// id surfaces here rather than inside the transaction closure.
		if status.Code(err) == codes.AlreadyExists {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorStatusConflict, fmt.Sprintf("order %s already exists", order.ID), order.ID, err)
		}
		return domain.Order{}, wrapOrderError("orders.place", err)
	}
	return placed, nil
}

func (r *OrderRepository) TransitionStatus(ctx context.Context, req repositories.OrderStatusTransitionRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order transition: order id is required")
	}

	now := req.Now.UTC()
	var updated domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), orderID, err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		// Another writer won the race when the re-read state no longer
		// matches what the caller decided the transition against.
		if doc.Status != string(req.ExpectedStatus) || doc.PaymentStatus != string(req.ExpectedPaymentStatus) {
			return repositories.NewOrderError(repositories.OrderErrorStatusConflict, fmt.Sprintf("order %s changed concurrently", orderID), orderID, nil)
		}

		type stockWrite struct {
			ref *firestore.DocumentRef
			doc variantDocument
		}
		stockWrites := make([]stockWrite, 0, len(req.StockDeltas))
		for _, delta := range req.StockDeltas {
			ref, err := r.variants.DocumentRef(ctx, delta.VariantID)
			if err != nil {
				return err
			}
			stockSnap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					// The variant was removed after the order was
					// placed; the restoration credit has nowhere to
					// land and is skipped.
					continue
				}
				return err
			}
			var stockDoc variantDocument
			if err := stockSnap.DataTo(&stockDoc); err != nil {
				return fmt.Errorf("decode variant %s: %w", delta.VariantID, err)
			}
			stockDoc.Stock += delta.Delta
			stockDoc.UpdatedAt = now
			stockWrites = append(stockWrites, stockWrite{ref: ref, doc: stockDoc})
		}

		doc.Status = string(req.Status)
		if req.PaymentStatus != nil {
			doc.PaymentStatus = string(*req.PaymentStatus)
		}
		if req.Feedback != nil {
			doc.Feedback = *req.Feedback
		}
		if req.Rating != nil {
			doc.Rating = req.Rating
		}
		doc.UpdatedAt = now
		if domain.OrderStatus(doc.Status).Terminal() && doc.ClosedAt == nil {
			doc.ClosedAt = &now
		}

		for _, write := range stockWrites {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}

		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.transition", err)
	}
	return updated, nil
}

func (r *OrderRepository) ConfirmPayment(ctx context.Context, req repositories.PaymentConfirmationRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order confirm payment: order id is required")
	}
	externalID := strings.TrimSpace(req.Transaction.ExternalID)
	if externalID == "" {
		return domain.Order{}, errors.New("order confirm payment: external transaction id is required")
	}

	now := req.Now.UTC()
	var updated domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), orderID, err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		if doc.PaymentStatus != string(domain.PaymentStatusAwaiting) {
			return repositories.NewOrderError(repositories.OrderErrorStatusConflict, fmt.Sprintf("order %s is not awaiting payment", orderID), orderID, nil)
		}

		doc.PaymentStatus = string(domain.PaymentStatusPaid)
		doc.PaidAt = &now
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}

		txRef, err := r.transactions.DocumentRef(ctx, externalID)
		if err != nil {
			return err
		}
		// The external payment id is the document key; a replayed webhook
		// delivery collides here and the whole transaction rolls back.
		if err := tx.Create(txRef, newTransactionDocument(req.Transaction, now)); err != nil {
			return err
		}

		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		// Create preconditions are checked at commit, so a replayed
		// external transaction id surfaces here rather than inside the
		// transaction closure.
		if status.Code(err) == codes.AlreadyExists {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorDuplicateTransaction, fmt.Sprintf("transaction %s already recorded", externalID), orderID, err)
		}
		return domain.Order{}, wrapOrderError("orders.confirmPayment", err)
	}
	return updated, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", orderID, nil)
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), orderID, err)
		}
		return domain.Order{}, wrapOrderError("orders.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) FindByPaymentCode(ctx context.Context, paymentCode string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	paymentCode = strings.TrimSpace(paymentCode)
	if paymentCode == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "payment code is required", "", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.findByPaymentCode", err)
	}

	iter := client.Collection(ordersCollection).Where("paymentCode", "==", paymentCode).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("no order carries payment code %s", paymentCode), "", nil)
	}
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.findByPaymentCode", err)
	}

	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter domain.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if filter.UserID != "" {
		query = query.Where("userRef", "==", filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status", "==", string(*filter.Status))
	}
	if filter.PaymentStatus != nil {
		query = query.Where("paymentStatus", "==", string(*filter.PaymentStatus))
	}
	if filter.CreatedAt.From != nil {
		query = query.Where("createdAt", ">=", filter.CreatedAt.From.UTC())
	}
	if filter.CreatedAt.To != nil {
		query = query.Where("createdAt", "<=", filter.CreatedAt.To.UTC())
	}

	direction := firestore.Desc
	if filter.Sort == domain.SortAsc {
		direction = firestore.Asc
	}
	query = query.OrderBy("createdAt", direction).OrderBy(firestore.DocumentID, direction).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		createdAt, id, err := orderCursorValues(cursor)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		query = query.StartAfter(createdAt, id)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	OrderNumber   string              `firestore:"orderNumber"`
	UserRef       string              `firestore:"userRef"`
	Status        string              `firestore:"status"`
	PaymentStatus string              `firestore:"paymentStatus"`
	PaymentMethod string              `firestore:"paymentMethod"`
	PaymentCode   string              `firestore:"paymentCode"`
	Recipient     recipientDocument   `firestore:"recipient"`
	Locale        string              `firestore:"locale,omitempty"`
	Subtotal      int64               `firestore:"subtotal"`
	Discount      int64               `firestore:"discount"`
	Total         int64               `firestore:"total"`
	Feedback      string              `firestore:"feedback,omitempty"`
	Rating        *int                `firestore:"rating,omitempty"`
	Items         []orderItemDocument `firestore:"items"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
	PaidAt        *time.Time          `firestore:"paidAt,omitempty"`
	ClosedAt      *time.Time          `firestore:"closedAt,omitempty"`
}

type recipientDocument struct {
	Name    string `firestore:"name"`
	Phone   string `firestore:"phone"`
	Address string `firestore:"address"`
}

type orderItemDocument struct {
	ID             string `firestore:"id"`
	VariantRef     string `firestore:"variantRef"`
	DesignRef      string `firestore:"designRef,omitempty"`
	VoucherRef     string `firestore:"voucherRef,omitempty"`
	VoucherCode    string `firestore:"voucherCode,omitempty"`
	ProductName    string `firestore:"productName"`
	SKU            string `firestore:"sku"`
	ImageURL       string `firestore:"imageUrl,omitempty"`
	UnitPrice      int64  `firestore:"unitPrice"`
	Quantity       int64  `firestore:"qty"`
	Subtotal       int64  `firestore:"subtotal"`
	DiscountAmount int64  `firestore:"discountAmount"`
	TotalAmount    int64  `firestore:"totalAmount"`
}

type transactionDocument struct {
	OrderRef        string    `firestore:"orderRef"`
	UserRef         string    `firestore:"userRef"`
	Code            string    `firestore:"code"`
	Gateway         string    `firestore:"gateway,omitempty"`
	AccountNumber   string    `firestore:"accountNumber,omitempty"`
	Amount          int64     `firestore:"amount"`
	Content         string    `firestore:"content,omitempty"`
	TransactionDate time.Time `firestore:"transactionDate"`
	RecordedAt      time.Time `firestore:"recordedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ID:             item.ID,
			VariantRef:     item.VariantID,
			DesignRef:      item.DesignID,
			VoucherRef:     item.VoucherID,
			VoucherCode:    item.VoucherCode,
			ProductName:    item.ProductName,
			SKU:            item.SKU,
			ImageURL:       item.ImageURL,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal,
			DiscountAmount: item.DiscountAmount,
			TotalAmount:    item.TotalAmount,
		}
	}
	return orderDocument{
		OrderNumber:   order.OrderNumber,
		UserRef:       order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		PaymentCode:   order.PaymentCode,
		Recipient: recipientDocument{
			Name:    order.Recipient.Name,
			Phone:   order.Recipient.Phone,
			Address: order.Recipient.Address,
		},
		Locale:    order.Locale,
		Subtotal:  order.Subtotal,
		Discount:  order.Discount,
		Total:     order.Total,
		Feedback:  order.Feedback,
		Rating:    order.Rating,
		Items:     items,
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
		PaidAt:    order.PaidAt,
		ClosedAt:  order.ClosedAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ID:             item.ID,
			VariantID:      item.VariantRef,
			DesignID:       item.DesignRef,
			VoucherID:      item.VoucherRef,
			VoucherCode:    item.VoucherCode,
			ProductName:    item.ProductName,
			SKU:            item.SKU,
			ImageURL:       item.ImageURL,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal,
			DiscountAmount: item.DiscountAmount,
			TotalAmount:    item.TotalAmount,
		}
	}
	return domain.Order{
		ID:            id,
		OrderNumber:   d.OrderNumber,
		UserID:        d.UserRef,
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		PaymentCode:   d.PaymentCode,
		Recipient: domain.Recipient{
			Name:    d.Recipient.Name,
			Phone:   d.Recipient.Phone,
			Address: d.Recipient.Address,
		},
		Locale:    d.Locale,
		Subtotal:  d.Subtotal,
		Discount:  d.Discount,
		Total:     d.Total,
		Feedback:  d.Feedback,
		Rating:    d.Rating,
		Items:     items,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		PaidAt:    d.PaidAt,
		ClosedAt:  d.ClosedAt,
	}
}

func newTransactionDocument(tx domain.Transaction, now time.Time) transactionDocument {
	recordedAt := tx.RecordedAt.UTC()
	if recordedAt.IsZero() {
		recordedAt = now
	}
	return transactionDocument{
		OrderRef:        tx.OrderID,
		UserRef:         tx.UserID,
		Code:            tx.Code,
		Gateway:         tx.Gateway,
		AccountNumber:   tx.AccountNumber,
		Amount:          tx.Amount,
		Content:         tx.Content,
		TransactionDate: tx.TransactionDate.UTC(),
		RecordedAt:      recordedAt,
	}
}

// orderCursorValues unpacks the [createdAt, documentID] pair carried by order
// list page tokens.
func orderCursorValues(cursor pagination.Cursor) (time.Time, string, error) {
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", pagination.ErrInvalidPageToken
	}
	rawCreatedAt, ok := cursor.StartAfter[0].(string)
	if !ok {
		return time.Time{}, "", pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreatedAt)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return time.Time{}, "", pagination.ErrInvalidPageToken
	}
	return createdAt, id, nil
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		if orderErr.Op == "" {
			orderErr.Op = op
		}
		return orderErr
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	var vchErr *repositories.VoucherError
	if errors.As(err, &vchErr) {
		if vchErr.Op == "" {
			vchErr.Op = op
		}
		return vchErr
	}
	return pfirestore.WrapError(op, err)
}
