package ledger

const (
	operationApplyBalanceChange = "apply_balance_change"
	operationAdjustBalance      = "adjust_balance"
	operationFreezeAccount      = "freeze_account"
	operationUnfreezeAccount    = "unfreeze_account"
	operationReconcileDeposit   = "reconcile_deposit"
	operationDepositWebhook     = "deposit_webhook"
	operationTestDeposit        = "test_deposit"
	operationCreateDepositOrder = "create_deposit_order"
	operationWithdrawalCreate   = "withdrawal_create"
	operationWithdrawalApprove  = "withdrawal_approve"
	operationWithdrawalReject   = "withdrawal_reject"

	operationStatusOK      = "ok"
	operationStatusError   = "error"
	operationStatusSkipped = "skipped"

	detailNonAtomicFallback = "non_atomic_fallback"
	detailUnknownOrder      = "unknown_order"
	detailAlreadySettled    = "already_settled"
	detailAmountMismatch    = "amount_mismatch"
	detailIgnoredEvent      = "ignored_event"
	detailIncompletePayload = "incomplete_payload"

	webhookEventPaymentCaptured = "payment.captured"

	testDepositReferencePrefix = "test_"
	adminReferencePrefix       = "admin "

	metadataKeyOrderID = "order_id"
	metadataKeyAdminID = "admin_id"
	metadataKeyReason  = "reason"
	metadataKeySource  = "source"
	metadataSourceTest = "test_deposit"

	// DefaultCurrency is assigned to wallets created without an explicit currency.
	DefaultCurrency Currency = "INR"

	// DefaultPageLimit and MaxPageLimit bound transaction history pages.
	DefaultPageLimit = 20
	MaxPageLimit     = 100

	// MaxPage keeps Offset far from integer overflow.
	MaxPage = 1_000_000

	minorUnitsPerMajorUnit = 100
)
