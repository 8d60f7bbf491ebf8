package wompi

import (
	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/AndesTrek-Travel/service-payments/internal/provider"
)

// Payment sub-method tags supported by the Wompi adapter.
const (
	MethodCard                = "CARD"
	MethodNequi               = "NEQUI"
	MethodPSE                 = "PSE"
	MethodBancolombiaTransfer = "BANCOLOMBIA_TRANSFER"
)

// methodStrategy builds the gateway payment_method payload for one sub-method.
type methodStrategy interface {
	Build(intent provider.Intent) (map[string]any, error)
}

// methodFactory dispatches to the strategy for a sub-method tag.
type methodFactory struct {
	strategies map[string]methodStrategy
}

func newMethodFactory() *methodFactory {
	return &methodFactory{strategies: map[string]methodStrategy{
		MethodCard:                cardStrategy{},
		MethodNequi:               nequiStrategy{},
		MethodPSE:                 pseStrategy{},
		MethodBancolombiaTransfer: bancolombiaStrategy{},
	}}
}

func (f *methodFactory) Get(tag string) (methodStrategy, error) {
	s, ok := f.strategies[tag]
	if !ok {
		return nil, domainerr.NewValidationError("unsupported wompi payment method: " + tag)
	}
	return s, nil
}

func (f *methodFactory) Tags() []string {
	return []string{MethodCard, MethodNequi, MethodPSE, MethodBancolombiaTransfer}
}

type cardStrategy struct{}

func (cardStrategy) Build(intent provider.Intent) (map[string]any, error) {
	token := intent.MethodData["card_token"]
	if token == "" {
		return nil, domainerr.NewValidationError("card payments require a card_token")
	}
	installments := intent.MethodData["installments"]
	if installments == "" {
		installments = "1"
	}
	return map[string]any{
		"type":         MethodCard,
		"token":        token,
		"installments": installments,
	}, nil
}

type nequiStrategy struct{}

func (nequiStrategy) Build(intent provider.Intent) (map[string]any, error) {
	phone := intent.MethodData["phone_number"]
	if phone == "" {
		return nil, domainerr.NewValidationError("nequi payments require a phone_number")
	}
	return map[string]any{
		"type":         MethodNequi,
		"phone_number": phone,
	}, nil
}

type pseStrategy struct{}

func (pseStrategy) Build(intent provider.Intent) (map[string]any, error) {
	bankCode := intent.MethodData["financial_institution_code"]
	if bankCode == "" {
		return nil, domainerr.NewValidationError("pse payments require a financial_institution_code")
	}
	legalID := intent.MethodData["user_legal_id"]
	if legalID == "" {
		return nil, domainerr.NewValidationError("pse payments require a user_legal_id")
	}
	userType := intent.MethodData["user_type"]
	if userType == "" {
		userType = "0" // natural person
	}
	legalIDType := intent.MethodData["user_legal_id_type"]
	if legalIDType == "" {
		legalIDType = "CC"
	}
	return map[string]any{
		"type":                       MethodPSE,
		"user_type":                  userType,
		"user_legal_id_type":         legalIDType,
		"user_legal_id":              legalID,
		"financial_institution_code": bankCode,
		"payment_description":        "Booking " + intent.Reference,
	}, nil
}

type bancolombiaStrategy struct{}

func (bancolombiaStrategy) Build(intent provider.Intent) (map[string]any, error) {
	userType := intent.MethodData["user_type"]
	if userType == "" {
		userType = "PERSON"
	}
	return map[string]any{
		"type":                MethodBancolombiaTransfer,
		"user_type":           userType,
		"payment_description": "Booking " + intent.Reference,
	}, nil
}

// SupportedMethods lists the sub-method tags the Wompi adapter accepts.
func SupportedMethods() []string {
	return newMethodFactory().Tags()
}

// PSEBanks lists the PSE financial institutions selectable at checkout.
func PSEBanks() []PSEBank {
	banks := make([]PSEBank, len(pseBanks))
	copy(banks, pseBanks)
	return banks
}

// PSEBank is a PSE financial institution selectable at checkout.
type PSEBank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var pseBanks = []PSEBank{
	{Code: "1007", Name: "Bancolombia"},
	{Code: "1001", Name: "Banco de Bogotá"},
	{Code: "1013", Name: "BBVA Colombia"},
	{Code: "1019", Name: "Scotiabank Colpatria"},
	{Code: "1023", Name: "Banco de Occidente"},
	{Code: "1032", Name: "Banco Caja Social"},
	{Code: "1051", Name: "Davivienda"},
	{Code: "1052", Name: "Banco AV Villas"},
	{Code: "1062", Name: "Banco Falabella"},
	{Code: "1507", Name: "Nequi"},
	{Code: "1551", Name: "Daviplata"},
	{Code: "1801", Name: "Movii"},
}
