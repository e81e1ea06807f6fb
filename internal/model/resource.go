package model

import (
	"time"

	"github.com/google/uuid"
)

type ResourceKind string

const (
	ResourceKindClass   ResourceKind = "class"   // Групповое занятие с общей ёмкостью
	ResourceKindService ResourceKind = "service" // Индивидуальная услуга провайдера
)

func (k ResourceKind) Valid() bool {
	return k == ResourceKindClass || k == ResourceKindService
}

// Resource ресурс, на который резервируется ёмкость
type Resource struct {
	ID               uuid.UUID    `json:"id"`
	Kind             ResourceKind `json:"kind"`
	ProviderID       uuid.UUID    `json:"provider_id"`
	Name             string       `json:"name"`
	Capacity         int          `json:"capacity"`
	Reserved         int          `json:"reserved"` // сумма участников занимающих бронирований
	RequiresApproval bool         `json:"requires_approval"`
	Timezone         string       `json:"timezone"`
	CreatedAt        time.Time    `json:"created_at"`
}

func (r *Resource) Ref() ResourceRef {
	return ResourceRef{Kind: r.Kind, ID: r.ID}
}

func (r *Resource) Remaining() int {
	return RemainingCapacity(r.Capacity, r.Reserved)
}

// ResourceRef ссылается ровно на одно занятие или одну услугу
type ResourceRef struct {
	Kind ResourceKind `json:"kind"`
	ID   uuid.UUID    `json:"id"`
}

// ClassID возвращает ID занятия или false для услуги
func (r ResourceRef) ClassID() (uuid.UUID, bool) {
	if r.Kind != ResourceKindClass {
		return uuid.Nil, false
	}
	return r.ID, true
}

// ServiceID возвращает ID услуги или false для занятия
func (r ResourceRef) ServiceID() (uuid.UUID, bool) {
	if r.Kind != ResourceKindService {
		return uuid.Nil, false
	}
	return r.ID, true
}

func (r ResourceRef) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}
