package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusNew       = "new"
	OrderStatusPreparing = "preparing"
	OrderStatusServed    = "served"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

const (
	PaymentStatusCreated        = "created"
	PaymentStatusRequiresAction = "requires_action"
	PaymentStatusProcessing     = "processing"
	PaymentStatusSucceeded      = "succeeded"
	PaymentStatusFailed         = "failed"
	PaymentStatusCanceled       = "canceled"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleAdmin    = "admin"
	UserRoleManager  = "manager"
	UserRoleWaiter   = "waiter"
	UserRoleCustomer = "customer"
)

// ── Group B: Labels (no DB constraint) ──

// Payment gateway event kinds, as delivered to the payment reconciler.
const (
	PaymentEventSucceeded = "succeeded"
	PaymentEventFailed    = "payment_failed"
	PaymentEventCanceled  = "canceled"
)

// WebSocket event types.
const (
	EventOrderCreated   = "order.created"
	EventOrderUpdated   = "order.updated"
	EventOrderPaid      = "order.paid"
	EventOrderCancelled = "order.cancelled"
	EventOrderDeleted   = "order.deleted"
)

const DefaultCurrency = "eur"
