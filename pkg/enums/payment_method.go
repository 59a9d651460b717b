package enums

// PaymentMethod is the payout rail an affiliate chose for a withdrawal.
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodWise         PaymentMethod = "wise"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodBankTransfer,
	PaymentMethodMobileMoney,
	PaymentMethodPayPal,
	PaymentMethodWise,
}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return isOneOf(validPaymentMethods, p) }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parseOneOf(validPaymentMethods, value, "payment method")
}
