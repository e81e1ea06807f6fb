package service

import "github.com/Freeeeeet/booking_engine/internal/model"

// PaymentPolicy: для каких видов ресурсов бронирование подтверждается только после оплаты
type PaymentPolicy struct {
	Required map[model.ResourceKind]bool
}

func (p PaymentPolicy) RequiresPayment(kind model.ResourceKind) bool {
	return p.Required[kind]
}
