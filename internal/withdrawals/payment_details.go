package withdrawals

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
)

// BankTransferDetails are the payout instructions for a bank transfer.
type BankTransferDetails struct {
	AccountHolderName string `json:"accountHolderName" validate:"required,min=2,max=140"`
	BankName          string `json:"bankName" validate:"required,max=140"`
	AccountNumber     string `json:"accountNumber" validate:"required_without=IBAN,max=34"`
	IBAN              string `json:"iban" validate:"omitempty,alphanum,min=15,max=34"`
	SwiftCode         string `json:"swiftCode" validate:"omitempty,bic"`
	Country           string `json:"country" validate:"required,iso3166_1_alpha2"`
}

type MobileMoneyDetails struct {
	Provider    string `json:"provider" validate:"required,oneof=mtn orange airtel mpesa wave moov"`
	PhoneNumber string `json:"phoneNumber" validate:"required,e164"`
	AccountName string `json:"accountName" validate:"required,min=2,max=140"`
	Country     string `json:"country" validate:"required,iso3166_1_alpha2"`
}

type PayPalDetails struct {
	Email string `json:"email" validate:"required,email"`
}

type WiseDetails struct {
	Email             string `json:"email" validate:"required,email"`
	AccountHolderName string `json:"accountHolderName" validate:"required,min=2,max=140"`
	Currency          string `json:"currency" validate:"required,iso4217"`
}

var detailSchemas = map[enums.PaymentMethod]func() any{
	enums.PaymentMethodBankTransfer: func() any { return &BankTransferDetails{} },
	enums.PaymentMethodMobileMoney:  func() any { return &MobileMoneyDetails{} },
	enums.PaymentMethodPayPal:       func() any { return &PayPalDetails{} },
	enums.PaymentMethodWise:         func() any { return &WiseDetails{} },
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// NormalizePaymentDetails checks raw against the schema of method and returns
// the canonical JSON stored on the withdrawal.
func NormalizePaymentDetails(method enums.PaymentMethod, raw json.RawMessage) (json.RawMessage, error) {
	factory, ok := detailSchemas[method]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", method)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment details are required")
	}

	dest := factory()
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment details do not match payment method").
			WithDetails(map[string]any{"paymentMethod": method, "error": err.Error()})
	}
	if err := validate.Struct(dest); err != nil {
		return nil, detailErrors(method, err)
	}

	normalized, err := json.Marshal(dest)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payment details")
	}
	return normalized, nil
}

func detailErrors(method enums.PaymentMethod, err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment details")
	}
	fields := map[string]string{}
	for _, fe := range errs {
		fields[fe.Field()] = detailMessage(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment details").
		WithDetails(map[string]any{"paymentMethod": method, "fields": fields})
}

func detailMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "must be a valid email"
	case "e164":
		return "must be an E.164 phone number"
	case "oneof":
		return "must be one of " + fe.Param()
	case "iso3166_1_alpha2":
		return "must be an ISO 3166 country code"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	}
	return "is invalid"
}
