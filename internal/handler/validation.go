package handler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/fee-ledger/pkg/errors"
	"github.com/segyhp/fee-ledger/pkg/money"
)

// custom validation tags
const (
	decimalGT0Tag = "decimal_gt0"
	maxAmountLen  = 40
	currencyTag   = "currency"
)

// newValidator builds a validator that reports JSON field names with
// English messages.
func newValidator() (*validator.Validate, ut.Translator) {
	v := validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(decimalGT0Tag, positiveDecimal)
	_ = v.RegisterValidation(currencyTag, supportedCurrency)

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{decimalGT0Tag, currencyTag} {
		_ = v.RegisterTranslation(tag, trans, registerFn, translateCustom)
	}
	return v, trans
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case decimalGT0Tag:
		return fe.Field() + " must be a decimal amount greater than zero"
	case currencyTag:
		return fe.Field() + " must be one of " + supportedCodes()
	default:
		return ""
	}
}

func positiveDecimal(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	if len(s) > maxAmountLen {
		return false
	}
	d, err := decimal.NewFromString(s)
	return err == nil && d.IsPositive()
}

func supportedCurrency(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := money.ParseCurrency(s)
	return err == nil
}

func supportedCodes() string {
	codes := make([]string, 0, len(money.Supported()))
	for _, c := range money.Supported() {
		codes = append(codes, c.String())
	}
	return strings.Join(codes, ", ")
}

// validateRequest runs struct validation and reports the first failing
// field as a validation BusinessError.
func (h *FeeLedgerHandler) validateRequest(request interface{}) error {
	err := h.validator.Struct(request)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return customError.WrapValidation("", "", err.Error())
	}

	fe := fieldErrs[0]
	field := fe.Field()
	if ns := fe.Namespace(); strings.Contains(ns, ".") {
		// drop the struct name, keep nested json paths such as fee_plan.total_amount
		field = ns[strings.Index(ns, ".")+1:]
	}
	return customError.WrapValidation(field, fmt.Sprint(fe.Value()), fe.Translate(h.translator))
}
