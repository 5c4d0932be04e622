package models

import "fmt"

type ActorRole string

const (
	ActorCustomer   ActorRole = "customer"
	ActorTechnician ActorRole = "technician"
	ActorSystem     ActorRole = "system"
	ActorAdmin      ActorRole = "admin"
)

func ParseActorRole(s string) (ActorRole, error) {
	switch ActorRole(s) {
	case ActorCustomer, ActorTechnician, ActorSystem, ActorAdmin:
		return ActorRole(s), nil
	default:
		return "", fmt.Errorf("unknown actor role: %q", s)
	}
}

// CanForce reports whether the role may bypass the transition table.
// The bypass is an explicit escape hatch for operators, never the default.
func (r ActorRole) CanForce() bool {
	return r == ActorAdmin || r == ActorSystem
}

type ServiceType string

const (
	ServiceMobileRepair ServiceType = "mobile_repair"
	ServicePCRepair     ServiceType = "pc_repair"
	ServiceTabletRepair ServiceType = "tablet_repair"
	ServiceLaptopRepair ServiceType = "laptop_repair"
	ServiceOther        ServiceType = "other"
)

func ParseServiceType(s string) (ServiceType, error) {
	switch ServiceType(s) {
	case ServiceMobileRepair, ServicePCRepair, ServiceTabletRepair, ServiceLaptopRepair, ServiceOther:
		return ServiceType(s), nil
	default:
		return "", fmt.Errorf("unknown service type: %q", s)
	}
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

func ParseUrgency(s string) (Urgency, error) {
	switch Urgency(s) {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyUrgent:
		return Urgency(s), nil
	default:
		return "", fmt.Errorf("unknown urgency: %q", s)
	}
}

// PaymentStatus is an independent sub-state, not part of the lifecycle table.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentPaid, PaymentRefunded:
		return PaymentStatus(s), nil
	default:
		return "", fmt.Errorf("unknown payment status: %q", s)
	}
}

const (
	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// RateLimitRPS / RateLimitBurst defaults for the HTTP API
	RateLimitRPS   = 10
	RateLimitBurst = 20

	// DefaultExportRangeMonths export window when no range is given
	DefaultExportRangeMonthsBefore = 1
	DefaultExportRangeMonthsAfter  = 2
)
