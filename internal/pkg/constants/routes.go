package constants

// Static route constants. The payment pages are both registered under these
// prefixes and embedded in the share URLs handed back to client apps.
const (
	PayInvoiceRoute  = "/pay/invoice/"
	PayCustomerRoute = "/pay/customer/"
)
